package ledger

import (
	"go.uber.org/fx"

	"github.com/dylan3796/attribution-mvp/internal/ledger/service"
)

var Module = fx.Module("ledger",
	fx.Provide(
		service.NewService,
	),
)
