package inference

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dylan3796/attribution-mvp/internal/config"
	"github.com/dylan3796/attribution-mvp/internal/inference/engine"
	"github.com/dylan3796/attribution-mvp/internal/inference/service"
)

var Module = fx.Module("inference.service",
	fx.Provide(provideEngine, service.NewService),
)

func provideEngine(holder *config.AttributionConfigHolder, log *zap.Logger) *engine.Engine {
	inf := holder.Get().Inference
	return engine.New(engine.Config{
		HalfLifeDays:          inf.HalfLifeDays,
		ProximityWindowDays:   inf.ProximityWindowDays,
		ProximityBonus:        inf.ProximityBonus,
		DecayWeight:           inf.DecayWeight,
		TypeWeight:            inf.TypeWeight,
		ActivityTypeWeights:   inf.ActivityTypeWeights,
		DefaultActivityWeight: inf.DefaultActivityWeight,
		MatchThreshold:        inf.MatchThreshold,
		MinConfidence:         inf.MinConfidence,
	}, log)
}
