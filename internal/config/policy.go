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

// PolicyConfig is the operator-tunable money policy.
type PolicyConfig struct {
	FeeRateBps      int64            `mapstructure:"feeRateBps"`
	RoleFeeRateBps  map[string]int64 `mapstructure:"roleFeeRateBps"`
	SettlementDelay time.Duration    `mapstructure:"settlementDelay"`
	WeeklyWindow    time.Duration    `mapstructure:"weeklyWindow"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		FeeRateBps:      500,
		RoleFeeRateBps:  map[string]int64{},
		SettlementDelay: 72 * time.Hour,
		WeeklyWindow:    7 * 24 * time.Hour,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds PolicyConfig
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(cfg PolicyConfig) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("policy")

	v := viper.New()
	if cfg.PolicyFile != "" {
		v.SetConfigFile(cfg.PolicyFile)
	} else {
		v.SetConfigName("policy")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/payflow")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PAYFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicyConfig()
	v.SetDefault("policy.feeRateBps", defaults.FeeRateBps)
	v.SetDefault("policy.roleFeeRateBps", defaults.RoleFeeRateBps)
	v.SetDefault("policy.settlementDelay", defaults.SettlementDelay)
	v.SetDefault("policy.weeklyWindow", defaults.WeeklyWindow)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	var policy PolicyConfig
	if err := v.UnmarshalKey("policy", &policy); err != nil {
		return nil, err
	}
	if err := validatePolicyConfig(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !fileFound {
		log.Info("policy file not found, using defaults",
			zap.Int64("fee_rate_bps", policy.FeeRateBps),
			zap.Duration("settlement_delay", policy.SettlementDelay),
		)
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PolicyConfig
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Warn("policy.reload.failed", zap.Error(err))
			return
		}
		if err := validatePolicyConfig(updated); err != nil {
			log.Warn("policy.reload.rejected", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy.reloaded",
			zap.String("file", e.Name),
			zap.Int64("fee_rate_bps", updated.FeeRateBps),
		)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PolicyHolder) Get() PolicyConfig {
	return h.current.Load().(PolicyConfig)
}

func validatePolicyConfig(cfg PolicyConfig) error {
	if cfg.FeeRateBps < 0 || cfg.FeeRateBps > 10000 {
		return errors.New("policy.feeRateBps must be between 0 and 10000")
	}
	for role, bps := range cfg.RoleFeeRateBps {
		if bps < 0 || bps > 10000 {
			return errors.New("policy.roleFeeRateBps." + role + " must be between 0 and 10000")
		}
	}
	if cfg.SettlementDelay < 0 {
		return errors.New("policy.settlementDelay cannot be negative")
	}
	if cfg.WeeklyWindow <= 0 {
		return errors.New("policy.weeklyWindow must be positive")
	}
	return nil
}
