package fee

import (
	"github.com/smallbiznis/payflow/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("fee.policy",
	fx.Provide(NewConfigSource),
)

type configSource struct {
	holder *config.PolicyHolder
}

// NewConfigSource reads fee rates from the hot-reloaded policy file.
func NewConfigSource(holder *config.PolicyHolder) Source {
	return &configSource{holder: holder}
}

func (s *configSource) Current() Policy {
	cfg := s.holder.Get()
	roles := make(map[PayerRole]int64, len(cfg.RoleFeeRateBps))
	for role, bps := range cfg.RoleFeeRateBps {
		roles[PayerRole(role)] = bps
	}
	return Policy{RateBps: cfg.FeeRateBps, RoleRateBps: roles}
}
