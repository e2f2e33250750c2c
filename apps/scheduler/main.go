package main

import (
	"github.com/smallbiznis/obligo/internal/bootstrap"
	"github.com/smallbiznis/obligo/internal/scheduler"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		bootstrap.Infra,
		bootstrap.Services,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}
