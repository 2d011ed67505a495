package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultAttributionConfigIsValid(t *testing.T) {
	assert.NoError(t, validateAttributionConfig(DefaultAttributionConfig()))
}

func TestValidateAttributionConfig(t *testing.T) {
	base := DefaultAttributionConfig()

	badPolicy := base
	badPolicy.FallbackPolicy = "coin_flip"
	assert.Error(t, validateAttributionConfig(badPolicy))

	none := base
	none.FallbackPolicy = "none"
	assert.NoError(t, validateAttributionConfig(none))

	badHalfLife := base
	badHalfLife.Inference.HalfLifeDays = 0
	assert.Error(t, validateAttributionConfig(badHalfLife))

	badThreshold := base
	badThreshold.Inference.MatchThreshold = 1.5
	assert.Error(t, validateAttributionConfig(badThreshold))

	badWeight := base
	badWeight.Inference.ActivityTypeWeights = map[string]float64{"meeting": 2.0}
	assert.Error(t, validateAttributionConfig(badWeight))
}
