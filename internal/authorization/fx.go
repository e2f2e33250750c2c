package authorization

import (
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("authorization",
	fx.Provide(NewAdapter),
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

// NewAdapter stores casbin rules in the casbin_rule table of the main database.
func NewAdapter(db *gorm.DB) (*gormadapter.Adapter, error) {
	return gormadapter.NewAdapterByDB(db)
}
