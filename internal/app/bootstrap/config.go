// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"

	"github.com/dalemusser/fieldhub/internal/app/system/checkwindow"
	"github.com/dalemusser/fieldhub/internal/app/system/timezones"
)

// appConfigKeys defines the configuration keys for FieldHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: FIELDHUB_MONGO_URI, FIELDHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "fieldhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size"},

	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "fieldhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},

	{Name: "base_url", Default: "http://localhost:3000", Desc: "Base URL for OAuth callbacks"},

	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID (blank disables Google sign-in)"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},

	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_attendance", Default: "db", Desc: "Attendance event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_assignment", Default: "all", Desc: "Assignment event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	{Name: "attendance_window_start", Default: "06:00", Desc: "Daily check-in window opening time (HH:MM)"},
	{Name: "attendance_window_end", Default: "22:00", Desc: "Daily check-in window closing time (HH:MM)"},
	{Name: "attendance_timezone", Default: "UTC", Desc: "Campaign timezone (IANA name) for the check-in window"},

	{Name: "superadmin_login_id", Default: "", Desc: "Login ID of the super admin user (promoted on startup)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, FIELDHUB_* for app), and
// command-line flags, merging with precedence flags > env > files >
// defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "FIELDHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),

		BaseURL: appValues.String("base_url"),

		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),

		AuditLogAuth:       appValues.String("audit_log_auth"),
		AuditLogAdmin:      appValues.String("audit_log_admin"),
		AuditLogAttendance: appValues.String("audit_log_attendance"),
		AuditLogAssignment: appValues.String("audit_log_assignment"),

		AttendanceWindowStart: appValues.String("attendance_window_start"),
		AttendanceWindowEnd:   appValues.String("attendance_window_end"),
		AttendanceTimezone:    appValues.String("attendance_timezone"),

		SuperAdminLoginID: appValues.String("superadmin_login_id"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation before any
// backend is touched: the Mongo URI format and the attendance window,
// both cheap to check and expensive to discover broken at runtime.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if _, err := checkwindow.New(appCfg.AttendanceWindowStart, appCfg.AttendanceWindowEnd, appCfg.AttendanceTimezone); err != nil {
		logger.Error("invalid attendance window", zap.Error(err))
		return fmt.Errorf("invalid attendance window: %w", err)
	}

	if err := timezones.Load(); err != nil {
		logger.Error("time zone data failed to load", zap.Error(err))
		return fmt.Errorf("time zone data failed to load: %w", err)
	}

	if appCfg.GoogleClientID != "" && appCfg.GoogleClientSecret == "" {
		return fmt.Errorf("google_client_id is set but google_client_secret is empty")
	}

	return nil
}
