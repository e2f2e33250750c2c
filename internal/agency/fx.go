package agency

import (
	"github.com/smallbiznis/obligo/internal/agency/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("agency.repository",
	fx.Provide(repository.Provide),
)
