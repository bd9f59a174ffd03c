// internal/app/features/users/handler.go
package users

import (
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	"github.com/dalemusser/fieldhub/internal/app/store/supervisorassign"
	userstore "github.com/dalemusser/fieldhub/internal/app/store/users"
	workerstore "github.com/dalemusser/fieldhub/internal/app/store/workers"
	"github.com/dalemusser/fieldhub/internal/app/system/assignment"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
)

// Handler serves the account endpoints: every kind of user below the
// caller's own role is created, edited, and disabled here. Supervisor
// territory changes go through the balancer so worker cascades happen.
type Handler struct {
	DB          *mongo.Database
	Log         *zap.Logger
	ErrLog      *uierrors.ErrorLogger
	AuditLog    *auditlog.Logger
	Balancer    *assignment.Balancer
	Users       *userstore.Store
	Workers     *workerstore.Store
	Assignments *supervisorassign.Store
	Audit       *audit.Store
}

func NewHandler(db *mongo.Database, balancer *assignment.Balancer, errLog *uierrors.ErrorLogger, auditLog *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		DB:          db,
		Log:         logger,
		ErrLog:      errLog,
		AuditLog:    auditLog,
		Balancer:    balancer,
		Users:       userstore.New(db),
		Workers:     workerstore.New(db),
		Assignments: supervisorassign.New(db),
		Audit:       audit.New(db),
	}
}
