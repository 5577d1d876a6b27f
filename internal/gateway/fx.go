package gateway

import (
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/gateway/adapters"
	"github.com/smallbiznis/payflow/internal/gateway/adapters/sandbox"
	"github.com/smallbiznis/payflow/internal/gateway/adapters/toss"
	"github.com/smallbiznis/payflow/internal/gateway/domain"
	obsmetrics "github.com/smallbiznis/payflow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			toss.NewFactory(),
			sandbox.NewFactory(),
		)
	}),
	fx.Provide(NewGateway),
)

type Params struct {
	fx.In

	Config   config.Config
	Registry *adapters.Registry
	Log      *zap.Logger
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

// NewGateway builds the configured provider adapter.
func NewGateway(p Params) (domain.Gateway, error) {
	gw, err := p.Registry.NewAdapter(p.Config.Gateway.Provider, domain.AdapterConfig{
		BaseURL:   p.Config.Gateway.BaseURL,
		SecretKey: p.Config.Gateway.SecretKey,
		Timeout:   p.Config.Gateway.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if p.Config.IsProduction() && gw.Provider() == "sandbox" {
		p.Log.Warn("gateway.sandbox_in_production")
	}
	return Instrument(gw, p.Log, p.Metrics), nil
}
