package main

import (
	"github.com/smallbiznis/obligo/internal/bootstrap"
	"github.com/smallbiznis/obligo/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		bootstrap.Infra,
		bootstrap.Services,

		server.Module,
	)
	app.Run()
}
