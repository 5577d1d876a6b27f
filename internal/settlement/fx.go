package settlement

import (
	"github.com/smallbiznis/payflow/internal/settlement/payout"
	"github.com/smallbiznis/payflow/internal/settlement/repository"
	"github.com/smallbiznis/payflow/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() payout.BankTransfer { return payout.NewSimulated() }),
	fx.Provide(service.NewService),
)
