package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AttributionConfig is the hot-reloadable tuning surface for the attribution
// and inference engines. Rule definitions live in the database; this file
// carries the knobs that are deployment policy rather than business data.
type AttributionConfig struct {
	// FallbackPolicy decides what happens to a target no rule matches:
	// "equal_split" applies the built-in default rule, "none" emits zero
	// ledger entries.
	FallbackPolicy string `mapstructure:"fallbackPolicy"`

	Inference InferenceConfig `mapstructure:"inference"`
}

// InferenceConfig tunes touchpoint inference scoring.
type InferenceConfig struct {
	HalfLifeDays          float64            `mapstructure:"halfLifeDays"`
	ProximityWindowDays   float64            `mapstructure:"proximityWindowDays"`
	ProximityBonus        float64            `mapstructure:"proximityBonus"`
	DecayWeight           float64            `mapstructure:"decayWeight"`
	TypeWeight            float64            `mapstructure:"typeWeight"`
	ActivityTypeWeights   map[string]float64 `mapstructure:"activityTypeWeights"`
	DefaultActivityWeight float64            `mapstructure:"defaultActivityWeight"`
	MatchThreshold        float64            `mapstructure:"matchThreshold"`
	MinConfidence         float64            `mapstructure:"minConfidence"`
}

func DefaultAttributionConfig() AttributionConfig {
	return AttributionConfig{
		FallbackPolicy: "equal_split",
		Inference: InferenceConfig{
			HalfLifeDays:        90,
			ProximityWindowDays: 14,
			ProximityBonus:      0.15,
			DecayWeight:         0.6,
			TypeWeight:          0.4,
			ActivityTypeWeights: map[string]float64{
				"meeting":            1.0,
				"call":               0.7,
				"email":              0.5,
				"demo":               0.9,
				"technical_workshop": 1.0,
				"referral":           1.0,
				"introduction":       0.8,
			},
			DefaultActivityWeight: 0.5,
			MatchThreshold:        0.6,
			MinConfidence:         0.3,
		},
	}
}

type AttributionConfigHolder struct {
	current atomic.Value // holds AttributionConfig
}

func NewAttributionConfigHolder() (*AttributionConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("attribution")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/attribution/config") // Volume-mounted config
	v.AddConfigPath("/etc/attribution")            // System config
	v.AddConfigPath(".")                           // Current directory (dev mode)

	v.SetEnvPrefix("ATTRIBUTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultAttributionConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("attribution.fallbackPolicy", defaults.FallbackPolicy)
		v.SetDefault("attribution.inference", defaults.Inference)
	}

	cfg := defaults
	if err := v.UnmarshalKey("attribution", &cfg); err != nil {
		return nil, err
	}
	if err := validateAttributionConfig(cfg); err != nil {
		return nil, err
	}

	holder := &AttributionConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultAttributionConfig()
		if err := v.UnmarshalKey("attribution", &updated); err != nil {
			log.Printf("[attribution-config] reload failed: %v", err)
			return
		}
		if err := validateAttributionConfig(updated); err != nil {
			log.Printf("[attribution-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[attribution-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticAttributionConfigHolder wraps a fixed config with no file
// watching, for tests and embedded use.
func NewStaticAttributionConfigHolder(cfg AttributionConfig) (*AttributionConfigHolder, error) {
	if err := validateAttributionConfig(cfg); err != nil {
		return nil, err
	}
	holder := &AttributionConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func (h *AttributionConfigHolder) Get() AttributionConfig {
	return h.current.Load().(AttributionConfig)
}

func validateAttributionConfig(cfg AttributionConfig) error {
	switch cfg.FallbackPolicy {
	case "equal_split", "none":
	default:
		return fmt.Errorf("attribution.fallbackPolicy must be equal_split or none, got %q", cfg.FallbackPolicy)
	}

	inf := cfg.Inference
	if inf.HalfLifeDays <= 0 {
		return errors.New("attribution.inference.halfLifeDays must be positive")
	}
	if inf.MatchThreshold <= 0 || inf.MatchThreshold > 1 {
		return errors.New("attribution.inference.matchThreshold must be in (0,1]")
	}
	if inf.MinConfidence < 0 || inf.MinConfidence > 1 {
		return errors.New("attribution.inference.minConfidence must be in [0,1]")
	}
	if inf.DecayWeight < 0 || inf.TypeWeight < 0 {
		return errors.New("attribution.inference factor weights must be non-negative")
	}
	for name, w := range inf.ActivityTypeWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("attribution.inference.activityTypeWeights[%s] must be in [0,1]", name)
		}
	}
	return nil
}
