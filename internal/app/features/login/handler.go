// internal/app/features/login/handler.go
package login

import (
	"context"
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	userstore "github.com/dalemusser/fieldhub/internal/app/store/users"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
	"github.com/dalemusser/fieldhub/internal/app/system/auth"
	"github.com/dalemusser/fieldhub/internal/app/system/authutil"
	"github.com/dalemusser/fieldhub/internal/app/system/payload"
	"github.com/dalemusser/fieldhub/internal/app/system/ratelimit"
	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
)

// Handler serves password sign-in.
type Handler struct {
	DB         *mongo.Database
	Log        *zap.Logger
	ErrLog     *uierrors.ErrorLogger
	SessionMgr *auth.SessionManager
	AuditLog   *auditlog.Logger
	Users      *userstore.Store
	Limiter    *ratelimit.SignInLimiter
}

func NewHandler(db *mongo.Database, sessionMgr *auth.SessionManager, errLog *uierrors.ErrorLogger, auditLog *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		DB:         db,
		Log:        logger,
		ErrLog:     errLog,
		SessionMgr: sessionMgr,
		AuditLog:   auditLog,
		Users:      userstore.New(db),
		Limiter:    ratelimit.NewSignInLimiter(),
	}
}

type loginPayload struct {
	LoginID  string `json:"login_id" validate:"required,max=200"`
	Password string `json:"password" validate:"required,max=200"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Role    string `json:"role"`
	Name    string `json:"name"`
}

// HandleLogin verifies credentials and issues the session cookie.
// POST /login
//
// All credential failures return the same message so the endpoint does not
// leak which login IDs exist; the audit log records the real reason.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var p loginPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "login: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if ok, reason := h.Limiter.Check(r, p.LoginID); !ok {
		h.AuditLog.LoginFailed(ctx, r, audit.EventLoginRateLimited, "rate limited", p.LoginID)
		uierrors.WriteError(w, http.StatusTooManyRequests, reason)
		return
	}

	u, err := h.Users.GetByLoginID(ctx, p.LoginID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			h.AuditLog.LoginFailed(ctx, r, audit.EventLoginFailedUserNotFound, "user not found", p.LoginID)
			uierrors.WriteError(w, http.StatusUnauthorized, "incorrect login or password")
			return
		}
		h.ErrLog.LogInternal(w, r, "login: user lookup failed", err)
		return
	}

	if u.Status != status.Active {
		h.AuditLog.LoginFailed(ctx, r, audit.EventLoginFailedUserDisabled, "account disabled", p.LoginID)
		uierrors.WriteError(w, http.StatusUnauthorized, "incorrect login or password")
		return
	}
	if u.PasswordHash == "" || !authutil.CheckPassword(p.Password, u.PasswordHash) {
		h.AuditLog.LoginFailed(ctx, r, audit.EventLoginFailedWrongPassword, "wrong password", p.LoginID)
		uierrors.WriteError(w, http.StatusUnauthorized, "incorrect login or password")
		return
	}

	if err := h.SessionMgr.SignIn(w, r, u.ID.Hex()); err != nil {
		h.ErrLog.LogInternal(w, r, "login: session create failed", err)
		return
	}
	h.Limiter.ResetLogin(p.LoginID)
	h.AuditLog.LoginSuccess(ctx, r, u.ID, u.LoginID)

	uierrors.WriteJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Role:    u.Role,
		Name:    u.FullName,
	})
}
