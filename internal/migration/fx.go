package migration

import (
	"github.com/smallbiznis/insightsync/internal/account/repository"
	"github.com/smallbiznis/insightsync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

// Run brings the schema up to date. Postgres uses the embedded SQL
// migrations; mysql and sqlite are migrated from the models.
func Run(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if cfg.DBType == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
	} else if err := repository.AutoMigrate(conn); err != nil {
		return err
	}
	log.Info("database schema up to date", zap.String("type", cfg.DBType))
	return nil
}
