package rule

import (
	"go.uber.org/fx"

	"github.com/dylan3796/attribution-mvp/internal/rule/service"
)

var Module = fx.Module("rule.service",
	fx.Provide(service.NewService),
)
