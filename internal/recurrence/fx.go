package recurrence

import (
	"github.com/smallbiznis/obligo/internal/recurrence/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recurrence.service",
	fx.Provide(service.New),
)
