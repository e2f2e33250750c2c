package audit

import (
	"github.com/smallbiznis/obligo/internal/audit/repository"
	"github.com/smallbiznis/obligo/internal/audit/service"
	"go.uber.org/fx"
)

// Module provides the audit trail written by the obligation, commission,
// reconciliation and authorization services.
var Module = fx.Module("audit.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
