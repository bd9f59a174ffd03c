// internal/app/features/attendance/handler.go
package attendance

import (
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	attendancestore "github.com/dalemusser/fieldhub/internal/app/store/attendance"
	neighborhoodstore "github.com/dalemusser/fieldhub/internal/app/store/neighborhoods"
	workerstore "github.com/dalemusser/fieldhub/internal/app/store/workers"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
	"github.com/dalemusser/fieldhub/internal/app/system/checkwindow"
)

// Handler serves check-in, undo, and attendance history.
type Handler struct {
	DB            *mongo.Database
	Log           *zap.Logger
	ErrLog        *uierrors.ErrorLogger
	AuditLog      *auditlog.Logger
	Window        checkwindow.Window
	Attendance    *attendancestore.Store
	Workers       *workerstore.Store
	Neighborhoods *neighborhoodstore.Store
}

func NewHandler(db *mongo.Database, window checkwindow.Window, errLog *uierrors.ErrorLogger, auditLog *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		DB:            db,
		Log:           logger,
		ErrLog:        errLog,
		AuditLog:      auditLog,
		Window:        window,
		Attendance:    attendancestore.New(db),
		Workers:       workerstore.New(db),
		Neighborhoods: neighborhoodstore.New(db),
	}
}
