// internal/app/features/cities/handler.go
package cities

import (
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	citystore "github.com/dalemusser/fieldhub/internal/app/store/cities"
	neighborhoodstore "github.com/dalemusser/fieldhub/internal/app/store/neighborhoods"
	userstore "github.com/dalemusser/fieldhub/internal/app/store/users"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
)

// Handler serves the city endpoints.
type Handler struct {
	DB            *mongo.Database
	Log           *zap.Logger
	ErrLog        *uierrors.ErrorLogger
	AuditLog      *auditlog.Logger
	Cities        *citystore.Store
	Neighborhoods *neighborhoodstore.Store
	Users         *userstore.Store
}

func NewHandler(db *mongo.Database, errLog *uierrors.ErrorLogger, auditLog *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		DB:            db,
		Log:           logger,
		ErrLog:        errLog,
		AuditLog:      auditLog,
		Cities:        citystore.New(db),
		Neighborhoods: neighborhoodstore.New(db),
		Users:         userstore.New(db),
	}
}
