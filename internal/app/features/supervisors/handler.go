// internal/app/features/supervisors/handler.go
package supervisors

import (
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	neighborhoodstore "github.com/dalemusser/fieldhub/internal/app/store/neighborhoods"
	"github.com/dalemusser/fieldhub/internal/app/store/supervisorassign"
	userstore "github.com/dalemusser/fieldhub/internal/app/store/users"
	workerstore "github.com/dalemusser/fieldhub/internal/app/store/workers"
	"github.com/dalemusser/fieldhub/internal/app/system/assignment"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
)

// Handler serves supervisor assignment: the junction between supervisors
// and neighborhoods, and the worker cascades that ride along with it.
type Handler struct {
	DB            *mongo.Database
	Log           *zap.Logger
	ErrLog        *uierrors.ErrorLogger
	AuditLog      *auditlog.Logger
	Balancer      *assignment.Balancer
	Assignments   *supervisorassign.Store
	Neighborhoods *neighborhoodstore.Store
	Users         *userstore.Store
	Workers       *workerstore.Store
}

func NewHandler(db *mongo.Database, balancer *assignment.Balancer, errLog *uierrors.ErrorLogger, auditLog *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		DB:            db,
		Log:           logger,
		ErrLog:        errLog,
		AuditLog:      auditLog,
		Balancer:      balancer,
		Assignments:   supervisorassign.New(db),
		Neighborhoods: neighborhoodstore.New(db),
		Users:         userstore.New(db),
		Workers:       workerstore.New(db),
	}
}
