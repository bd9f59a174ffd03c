// internal/app/features/workers/handler.go
package workers

import (
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	neighborhoodstore "github.com/dalemusser/fieldhub/internal/app/store/neighborhoods"
	userstore "github.com/dalemusser/fieldhub/internal/app/store/users"
	workerstore "github.com/dalemusser/fieldhub/internal/app/store/workers"
	"github.com/dalemusser/fieldhub/internal/app/system/assignment"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
)

// Handler serves the worker roster endpoints.
type Handler struct {
	DB            *mongo.Database
	Log           *zap.Logger
	ErrLog        *uierrors.ErrorLogger
	AuditLog      *auditlog.Logger
	Balancer      *assignment.Balancer
	Workers       *workerstore.Store
	Neighborhoods *neighborhoodstore.Store
	Users         *userstore.Store
}

func NewHandler(db *mongo.Database, balancer *assignment.Balancer, errLog *uierrors.ErrorLogger, auditLog *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		DB:            db,
		Log:           logger,
		ErrLog:        errLog,
		AuditLog:      auditLog,
		Balancer:      balancer,
		Workers:       workerstore.New(db),
		Neighborhoods: neighborhoodstore.New(db),
		Users:         userstore.New(db),
	}
}
