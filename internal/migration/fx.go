package migration

import (
	"github.com/smallbiznis/obligo/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBRunMigrations {
			return nil
		}
		log = log.Named("migration")

		if conn.Dialector.Name() != "postgres" {
			log.Info("running auto migrate", zap.String("dialect", conn.Dialector.Name()))
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		if version, dirty, err := Version(sqlDB); err == nil {
			log.Info("schema up to date", zap.Uint("version", version), zap.Bool("dirty", dirty))
		}
		return nil
	}),
)
