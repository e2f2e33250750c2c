package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EngineConfig carries the tunables of the obligation engine. It is hot
// reloaded from engine.yml.
type EngineConfig struct {
	// SystemOwnerID owns every record the engine creates on its own.
	SystemOwnerID int64            `mapstructure:"systemOwnerId"`
	Commission    CommissionConfig `mapstructure:"commission"`
	Recurrence    RecurrenceConfig `mapstructure:"recurrence"`
	Reconcile     ReconcileConfig  `mapstructure:"reconcile"`
	Sync          SyncConfig       `mapstructure:"sync"`
}

type CommissionConfig struct {
	DefaultRate   float64       `mapstructure:"defaultRate"`
	CategoryName  string        `mapstructure:"categoryName"`
	CategoryColor string        `mapstructure:"categoryColor"`
	LockTTL       time.Duration `mapstructure:"lockTTL"`
}

type RecurrenceConfig struct {
	HorizonMonths     int `mapstructure:"horizonMonths"`
	TemplateLookahead int `mapstructure:"templateLookahead"`
}

type ReconcileConfig struct {
	BatchSize int `mapstructure:"batchSize"`
}

type SyncConfig struct {
	Concurrency   int     `mapstructure:"concurrency"`
	RatePerSecond float64 `mapstructure:"ratePerSecond"`
	Burst         int     `mapstructure:"burst"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Commission: CommissionConfig{
			DefaultRate:   5,
			CategoryName:  "Sales Commissions",
			CategoryColor: "#f59e0b",
			LockTTL:       30 * time.Second,
		},
		Recurrence: RecurrenceConfig{
			HorizonMonths:     12,
			TemplateLookahead: 3,
		},
		Reconcile: ReconcileConfig{
			BatchSize: 200,
		},
		Sync: SyncConfig{
			Concurrency:   4,
			RatePerSecond: 10,
			Burst:         5,
		},
	}
}

type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

// NewStaticEngineConfig wraps a fixed config, mostly for tests and one-shot commands.
func NewStaticEngineConfig(cfg EngineConfig) *EngineConfigHolder {
	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewEngineConfigHolder(log *zap.Logger) (*EngineConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.engine")

	v := viper.New()

	v.SetConfigName("engine")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/obligo/config")
	v.AddConfigPath("/etc/obligo")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OBLIGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setEngineDefaults(v, DefaultEngineConfig())

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
		log.Info("engine config file not found, using defaults and environment")
	}

	var cfg EngineConfig
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated EngineConfig
			if err := v.UnmarshalKey("engine", &updated); err != nil {
				log.Warn("engine config reload failed", zap.Error(err))
				return
			}
			if err := ValidateEngineConfig(updated); err != nil {
				log.Warn("invalid engine config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("engine config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *EngineConfigHolder) Get() EngineConfig {
	if h == nil {
		return DefaultEngineConfig()
	}
	cfg, ok := h.current.Load().(EngineConfig)
	if !ok {
		return DefaultEngineConfig()
	}
	return cfg
}

func setEngineDefaults(v *viper.Viper, defaults EngineConfig) {
	v.SetDefault("engine.systemOwnerId", defaults.SystemOwnerID)
	v.SetDefault("engine.commission.defaultRate", defaults.Commission.DefaultRate)
	v.SetDefault("engine.commission.categoryName", defaults.Commission.CategoryName)
	v.SetDefault("engine.commission.categoryColor", defaults.Commission.CategoryColor)
	v.SetDefault("engine.commission.lockTTL", defaults.Commission.LockTTL)
	v.SetDefault("engine.recurrence.horizonMonths", defaults.Recurrence.HorizonMonths)
	v.SetDefault("engine.recurrence.templateLookahead", defaults.Recurrence.TemplateLookahead)
	v.SetDefault("engine.reconcile.batchSize", defaults.Reconcile.BatchSize)
	v.SetDefault("engine.sync.concurrency", defaults.Sync.Concurrency)
	v.SetDefault("engine.sync.ratePerSecond", defaults.Sync.RatePerSecond)
	v.SetDefault("engine.sync.burst", defaults.Sync.Burst)
}

func ValidateEngineConfig(cfg EngineConfig) error {
	if cfg.SystemOwnerID <= 0 {
		return errors.New("engine.systemOwnerId is required")
	}
	if cfg.Commission.DefaultRate < 0 || cfg.Commission.DefaultRate > 100 {
		return errors.New("engine.commission.defaultRate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.Commission.CategoryName) == "" {
		return errors.New("engine.commission.categoryName cannot be empty")
	}
	if cfg.Recurrence.HorizonMonths <= 0 {
		return errors.New("engine.recurrence.horizonMonths must be positive")
	}
	if cfg.Recurrence.TemplateLookahead <= 0 {
		return errors.New("engine.recurrence.templateLookahead must be positive")
	}
	if cfg.Reconcile.BatchSize <= 0 {
		return errors.New("engine.reconcile.batchSize must be positive")
	}
	if cfg.Sync.Concurrency <= 0 {
		return errors.New("engine.sync.concurrency must be positive")
	}
	if cfg.Sync.RatePerSecond <= 0 || cfg.Sync.Burst <= 0 {
		return errors.New("engine.sync rate limit must be positive")
	}
	return nil
}
