package commissionsync

import (
	"github.com/smallbiznis/obligo/internal/commissionsync/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commissionsync.service",
	fx.Provide(service.New),
)
