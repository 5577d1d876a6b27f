package app

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/fee"
	"github.com/smallbiznis/payflow/internal/gateway"
	"github.com/smallbiznis/payflow/internal/job"
	"github.com/smallbiznis/payflow/internal/lock"
	"github.com/smallbiznis/payflow/internal/migration"
	"github.com/smallbiznis/payflow/internal/notification"
	"github.com/smallbiznis/payflow/internal/observability"
	"github.com/smallbiznis/payflow/internal/payment"
	"github.com/smallbiznis/payflow/internal/settlement"
	"github.com/smallbiznis/payflow/internal/wallet"
	"github.com/smallbiznis/payflow/pkg/db"
	"go.uber.org/fx"
)

// Core wires infrastructure and every domain service. Entry points add the
// scheduler or CLI on top.
func Core() fx.Option {
	return fx.Options(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(NewSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// Functional Domains
		fee.Module,
		gateway.Module,
		notification.Module,
		job.Module,
		wallet.Module,
		payment.Module,
		settlement.Module,
	)
}

// NewSnowflake builds the id generator for this replica. NODE_ID must be
// unique per running process.
func NewSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
