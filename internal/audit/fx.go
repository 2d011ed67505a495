package audit

import (
	"go.uber.org/fx"

	"github.com/dylan3796/attribution-mvp/internal/audit/service"
)

var Module = fx.Module("audit",
	fx.Provide(
		service.NewService,
	),
)
