// internal/app/bootstrap/appconfig.go
package bootstrap

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig handles framework-level settings (ports, TLS,
// logging, CORS, body limits); AppConfig is everything specific to
// FieldHub. Values come from config files, FIELDHUB_* environment
// variables, or command-line flags, loaded in LoadConfig.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string // signing key, must be strong in production
	SessionName   string // cookie name
	SessionDomain string // cookie domain (blank means current host)

	// Base URL for OAuth callbacks.
	BaseURL string

	// Google OAuth configuration. Blank client ID disables the feature.
	GoogleClientID     string
	GoogleClientSecret string

	// Audit logging routing per category: "all" (db+log), "db", "log",
	// or "off".
	AuditLogAuth       string
	AuditLogAdmin      string
	AuditLogAttendance string
	AuditLogAssignment string

	// Attendance window: daily wall-clock bounds in the campaign
	// timezone.
	AttendanceWindowStart string // "HH:MM"
	AttendanceWindowEnd   string // "HH:MM"
	AttendanceTimezone    string // IANA name

	// SuperAdmin bootstrap: login ID promoted on startup.
	SuperAdminLoginID string
}
