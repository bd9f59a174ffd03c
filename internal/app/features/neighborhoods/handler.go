// internal/app/features/neighborhoods/handler.go
package neighborhoods

import (
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	neighborhoodstore "github.com/dalemusser/fieldhub/internal/app/store/neighborhoods"
	"github.com/dalemusser/fieldhub/internal/app/store/supervisorassign"
	workerstore "github.com/dalemusser/fieldhub/internal/app/store/workers"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
)

// Handler serves the neighborhood endpoints.
type Handler struct {
	DB            *mongo.Database
	Log           *zap.Logger
	ErrLog        *uierrors.ErrorLogger
	AuditLog      *auditlog.Logger
	Neighborhoods *neighborhoodstore.Store
	Assignments   *supervisorassign.Store
	Workers       *workerstore.Store
}

func NewHandler(db *mongo.Database, errLog *uierrors.ErrorLogger, auditLog *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		DB:            db,
		Log:           logger,
		ErrLog:        errLog,
		AuditLog:      auditLog,
		Neighborhoods: neighborhoodstore.New(db),
		Assignments:   supervisorassign.New(db),
		Workers:       workerstore.New(db),
	}
}
