package migration

import (
	"github.com/azerion/cloudledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		// The embedded migrations target postgres. Other dialects (sqlite in
		// tests, mysql) rely on AutoMigrate-compatible models.
		if cfg.DBType != "postgres" {
			log.Info("skipping sql migrations for non-postgres dialect",
				zap.String("dialect", cfg.DBType),
			)
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
