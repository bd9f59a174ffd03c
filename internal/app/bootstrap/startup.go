// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"

	userstore "github.com/dalemusser/fieldhub/internal/app/store/users"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
)

// Startup runs one-time application initialization after DB connections
// and schema setup are complete, but before the HTTP handler is built.
//
// FieldHub uses it to apply deadline overrides and promote the configured
// super admin. The account is never created here: promotion only flips the
// flag on an existing user, so a typo in the config cannot conjure a
// privileged account.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("handler deadlines overridden from environment", zap.Int("overrides", n))
	}

	if appCfg.SuperAdminLoginID == "" {
		return nil
	}

	promoted, err := userstore.New(deps.MongoDatabase).PromoteSuperAdmin(ctx, appCfg.SuperAdminLoginID)
	if err != nil {
		return err
	}
	if promoted {
		logger.Info("super admin promoted", zap.String("login_id", appCfg.SuperAdminLoginID))
	} else {
		logger.Warn("super admin login ID not found; no account promoted",
			zap.String("login_id", appCfg.SuperAdminLoginID))
	}
	return nil
}
