package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsUnknownKeys(t *testing.T) {
	out := FilterAttributes(
		attribute.String("outcome", "attributed"),
		attribute.String("partner_id", "partner-a"),
		attribute.String("reason", ""),
	)

	assert.Len(t, out, 1)
	assert.Equal(t, attribute.Key("outcome"), out[0].Key)
}

func TestNewHTTPMetricsRegistersCollectors(t *testing.T) {
	m := NewHTTPMetrics()

	families, err := m.Registry().Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
