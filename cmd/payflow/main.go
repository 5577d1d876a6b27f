package main

import (
	"github.com/smallbiznis/payflow/internal/app"
	"github.com/smallbiznis/payflow/internal/scheduler"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		app.Core(),
		scheduler.Module,
	).Run()
}
