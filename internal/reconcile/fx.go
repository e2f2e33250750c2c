package reconcile

import (
	"github.com/smallbiznis/obligo/internal/reconcile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile.service",
	fx.Provide(service.New),
)
