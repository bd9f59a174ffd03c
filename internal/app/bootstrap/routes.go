// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	areasfeature "github.com/dalemusser/fieldhub/internal/app/features/areas"
	attendancefeature "github.com/dalemusser/fieldhub/internal/app/features/attendance"
	auditlogfeature "github.com/dalemusser/fieldhub/internal/app/features/auditlog"
	authgooglefeature "github.com/dalemusser/fieldhub/internal/app/features/authgoogle"
	citiesfeature "github.com/dalemusser/fieldhub/internal/app/features/cities"
	errorsfeature "github.com/dalemusser/fieldhub/internal/app/features/errors"
	healthfeature "github.com/dalemusser/fieldhub/internal/app/features/health"
	loginfeature "github.com/dalemusser/fieldhub/internal/app/features/login"
	logoutfeature "github.com/dalemusser/fieldhub/internal/app/features/logout"
	neighborhoodsfeature "github.com/dalemusser/fieldhub/internal/app/features/neighborhoods"
	supervisorsfeature "github.com/dalemusser/fieldhub/internal/app/features/supervisors"
	usersfeature "github.com/dalemusser/fieldhub/internal/app/features/users"
	workersfeature "github.com/dalemusser/fieldhub/internal/app/features/workers"
	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	userstore "github.com/dalemusser/fieldhub/internal/app/store/users"
	"github.com/dalemusser/fieldhub/internal/app/system/assignment"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
	"github.com/dalemusser/fieldhub/internal/app/system/auth"
	"github.com/dalemusser/fieldhub/internal/app/system/checkwindow"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE
// app.
//
// WAFFLE calls this after configuration, DB connections, schema setup,
// and Startup have completed. FieldHub builds its shared plumbing here
// (session manager, audit logger, assignment balancer) and mounts one
// JSON feature router per org-tree level plus auth, attendance, and the
// audit trail.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// LoadSessionUser fetches fresh user data on each request so role
	// changes and disabled accounts take effect immediately.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(deps.MongoDatabase))

	db := deps.MongoDatabase
	errLog := errorsfeature.NewErrorLogger(logger)

	auditLogger := auditlog.New(audit.New(db), logger, auditlog.Config{
		Auth:       appCfg.AuditLogAuth,
		Admin:      appCfg.AuditLogAdmin,
		Attendance: appCfg.AuditLogAttendance,
		Assignment: appCfg.AuditLogAssignment,
	})

	balancer := assignment.New(db, logger, auditLogger)

	// Validated at startup; an error here cannot happen with the same
	// inputs.
	window, err := checkwindow.New(appCfg.AttendanceWindowStart, appCfg.AttendanceWindowEnd, appCfg.AttendanceTimezone)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(sessionMgr.LoadSessionUser)

	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	loginHandler := loginfeature.NewHandler(db, sessionMgr, errLog, auditLogger, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, auditLogger, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler))

	if appCfg.GoogleClientID != "" {
		googleHandler := authgooglefeature.NewHandler(db, sessionMgr, auditLogger,
			appCfg.GoogleClientID, appCfg.GoogleClientSecret, appCfg.BaseURL,
			[]byte(appCfg.SessionKey), logger)
		r.Mount("/auth/google", authgooglefeature.Routes(googleHandler))
	}

	usersHandler := usersfeature.NewHandler(db, balancer, errLog, auditLogger, logger)
	r.Mount("/users", usersfeature.Routes(usersHandler))

	areasHandler := areasfeature.NewHandler(db, errLog, auditLogger, logger)
	r.Mount("/areas", areasfeature.Routes(areasHandler))

	citiesHandler := citiesfeature.NewHandler(db, errLog, auditLogger, logger)
	r.Mount("/cities", citiesfeature.Routes(citiesHandler))

	neighborhoodsHandler := neighborhoodsfeature.NewHandler(db, errLog, auditLogger, logger)
	r.Mount("/neighborhoods", neighborhoodsfeature.Routes(neighborhoodsHandler))

	supervisorsHandler := supervisorsfeature.NewHandler(db, balancer, errLog, auditLogger, logger)
	r.Mount("/supervisors", supervisorsfeature.Routes(supervisorsHandler))

	workersHandler := workersfeature.NewHandler(db, balancer, errLog, auditLogger, logger)
	r.Mount("/workers", workersfeature.Routes(workersHandler))

	attendanceHandler := attendancefeature.NewHandler(db, window, errLog, auditLogger, logger)
	r.Mount("/attendance", attendancefeature.Routes(attendanceHandler))

	auditlogHandler := auditlogfeature.NewHandler(db, errLog, logger)
	r.Mount("/auditlog", auditlogfeature.Routes(auditlogHandler))

	return r, nil
}
