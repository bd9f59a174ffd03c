// internal/app/features/auditlog/handler.go
package auditlog

import (
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	citystore "github.com/dalemusser/fieldhub/internal/app/store/cities"
)

// Handler serves read access to the audit trail. Writing happens through
// the system auditlog logger; nothing here mutates.
type Handler struct {
	DB     *mongo.Database
	Log    *zap.Logger
	ErrLog *uierrors.ErrorLogger
	Audit  *audit.Store
	Cities *citystore.Store
}

func NewHandler(db *mongo.Database, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		DB:     db,
		Log:    logger,
		ErrLog: errLog,
		Audit:  audit.New(db),
		Cities: citystore.New(db),
	}
}
