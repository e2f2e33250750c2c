// Package bootstrap collects the fx modules shared by the obligo binaries.
package bootstrap

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/obligo/internal/agency"
	"github.com/smallbiznis/obligo/internal/audit"
	"github.com/smallbiznis/obligo/internal/authorization"
	"github.com/smallbiznis/obligo/internal/clock"
	"github.com/smallbiznis/obligo/internal/commission"
	"github.com/smallbiznis/obligo/internal/commissionsync"
	"github.com/smallbiznis/obligo/internal/config"
	"github.com/smallbiznis/obligo/internal/lifecycle"
	"github.com/smallbiznis/obligo/internal/migration"
	"github.com/smallbiznis/obligo/internal/obligation"
	"github.com/smallbiznis/obligo/internal/observability"
	"github.com/smallbiznis/obligo/internal/ratelimit"
	"github.com/smallbiznis/obligo/internal/reconcile"
	"github.com/smallbiznis/obligo/internal/recurrence"
	"github.com/smallbiznis/obligo/pkg/db"
	"go.uber.org/fx"
)

// Infra wires config, logging, tracing, the database and the clock.
// Migrations run on start unless DATABASE_RUN_MIGRATIONS is false.
var Infra = fx.Options(
	config.Module,
	observability.Module,
	fx.Provide(RegisterSnowflake),
	db.Module,
	migration.Module,
	clock.Module,
)

// Services wires every domain service on top of Infra.
var Services = fx.Options(
	ratelimit.Module,
	audit.Module,
	authorization.Module,
	agency.Module,
	obligation.Module,
	commission.Module,
	recurrence.Module,
	reconcile.Module,
	commissionsync.Module,
	lifecycle.Module,
)

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// ForceMigrations overrides DATABASE_RUN_MIGRATIONS for commands that exist to migrate.
func ForceMigrations(cfg config.Config) config.Config {
	cfg.DBRunMigrations = true
	return cfg
}
