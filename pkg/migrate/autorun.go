package migrate

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
	"github.com/sapira-ai/pharo-backend/pkg/migrate/migrations"
)

// autoApplyDecision says whether boot-time migration runs for cfg, and why not.
func autoApplyDecision(cfg *config.Config) (bool, string) {
	switch {
	case !cfg.FeatureFlags.AutoMigrate:
		return false, "PHARO_AUTO_MIGRATE is off"
	case cfg.App.IsProd():
		return false, "production schema changes go through cmd/migrate"
	default:
		return true, ""
	}
}

// AutoApply brings the schema up to the embedded migrations on API boot when
// PHARO_AUTO_MIGRATE is set outside production. The embedded set is checked
// first so a malformed build never touches the database.
func AutoApply(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	ok, reason := autoApplyDecision(cfg)
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	if !ok {
		if cfg.FeatureFlags.AutoMigrate {
			logg.Warn(logg.WithField(ctx, "reason", reason), "migrate.autorun.skipped")
		}
		return nil
	}
	if err := Check(migrations.FS); err != nil {
		return fmt.Errorf("embedded migrations: %w", err)
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	if _, err := prepare(Source{}); err != nil {
		return err
	}
	from, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if err := Run(ctx, sqlDB, Source{}, "up"); err != nil {
		return err
	}
	to, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{"from_version": from, "to_version": to}), "migrate.autorun.applied")
	return nil
}
