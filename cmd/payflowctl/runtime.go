package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/app"
	"github.com/smallbiznis/payflow/internal/observability"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/scheduler"
	settlementdomain "github.com/smallbiznis/payflow/internal/settlement/domain"
	walletdomain "github.com/smallbiznis/payflow/internal/wallet/domain"
	"go.uber.org/fx"
)

const defaultTimeout = 5 * time.Minute

type globalOptions struct {
	verbose bool
	timeout time.Duration
}

type services struct {
	Settlements settlementdomain.Service
	Wallets     walletdomain.Service
	Payments    paymentdomain.Service
	Scheduler   *scheduler.Scheduler
}

// withServices starts the application graph without the ticker, runs fn and
// stops the graph so pending notifications flush.
func withServices(ctx context.Context, opts *globalOptions, fn func(ctx context.Context, svc *services) error) (err error) {
	timeout := opts.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var svc services
	fxApp := fx.New(
		app.Core(),
		fx.Provide(scheduler.ProvideConfig, scheduler.New),
		fx.Decorate(func(cfg observability.Config) observability.Config {
			if !opts.verbose {
				cfg.LogLevel = "warn"
			}
			return cfg
		}),
		fx.NopLogger,
		fx.Populate(&svc.Settlements, &svc.Wallets, &svc.Payments, &svc.Scheduler),
	)
	if err := fxApp.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer stopCancel()
		if stopErr := fxApp.Stop(stopCtx); stopErr != nil && err == nil {
			err = fmt.Errorf("stop: %w", stopErr)
		}
	}()

	return fn(ctx, &svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return snowflake.ID(id), nil
}
