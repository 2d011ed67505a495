package attribution

import (
	"go.uber.org/fx"

	"github.com/dylan3796/attribution-mvp/internal/attribution/service"
)

var Module = fx.Module("attribution.service",
	fx.Provide(service.NewService),
)
