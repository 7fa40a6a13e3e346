package migration

import (
	"github.com/smallbiznis/crmsync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply runs the embedded migrations on startup. Other database types are
// expected to have the schema provisioned out of band.
func Apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")
	if cfg.DBType != "postgres" {
		log.Info("migration.skipped", zap.String("db_type", cfg.DBType))
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	status, err := RunMigrations(sqlDB)
	if err != nil {
		log.Error("migration.failed", zap.Uint("version", status.Version), zap.Bool("dirty", status.Dirty), zap.Error(err))
		return err
	}
	log.Info("migration.applied",
		zap.Uint("version", status.Version),
		zap.Bool("changed", status.Changed),
	)
	return nil
}
