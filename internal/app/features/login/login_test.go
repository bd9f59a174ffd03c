package login_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/features/login"
	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
	"github.com/dalemusser/fieldhub/internal/app/system/auth"
	"github.com/dalemusser/fieldhub/internal/app/system/authutil"
	"github.com/dalemusser/fieldhub/internal/testutil"
)

func newHandler(t *testing.T, db *mongo.Database) *login.Handler {
	t.Helper()
	logger := zap.NewNop()
	sessionMgr, err := auth.NewSessionManager(
		"0123456789abcdef0123456789abcdef", "fieldhub-test", "", false, logger)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	auditLog := auditlog.New(audit.New(db), logger, auditlog.Config{Auth: "db"})
	return login.NewHandler(db, sessionMgr, uierrors.NewErrorLogger(logger), auditLog, logger)
}

func seedAccount(t *testing.T, f *testutil.Fixtures, ctx context.Context, db *mongo.Database, loginID, password string) {
	t.Helper()
	u := f.CreateUser(ctx, "Cory Coordinator", loginID, "coordinator")
	hash, err := authutil.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := db.Collection("users").UpdateByID(ctx, u.ID,
		bson.M{"$set": bson.M{"password_hash": hash}}); err != nil {
		t.Fatalf("set password: %v", err)
	}
}

func loginRequest(loginID, password string) *http.Request {
	body := fmt.Sprintf(`{"login_id":%q,"password":%q}`, loginID, password)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLoginSuccess(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	seedAccount(t, f, ctx, db, "cory@example.com", "correct horse battery")
	h := newHandler(t, db)

	rec := testutil.NewRecorder()
	h.HandleLogin(rec, loginRequest("cory@example.com", "correct horse battery"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"role":"coordinator"`)

	if cookies := rec.Result().Cookies(); len(cookies) == 0 {
		t.Error("no session cookie issued on successful sign-in")
	}
}

func TestLoginFailuresLookAlike(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	seedAccount(t, f, ctx, db, "cory@example.com", "correct horse battery")
	disabled := f.CreateUser(ctx, "Dana Disabled", "dana@example.com", "coordinator")
	if _, err := db.Collection("users").UpdateByID(ctx, disabled.ID,
		bson.M{"$set": bson.M{"status": "inactive"}}); err != nil {
		t.Fatalf("disable account: %v", err)
	}

	h := newHandler(t, db)
	attempts := []struct {
		name, loginID, password string
	}{
		{"wrong password", "cory@example.com", "guess"},
		{"unknown user", "nobody@example.com", "guess"},
		{"disabled user", "dana@example.com", "guess"},
	}
	for _, a := range attempts {
		t.Run(a.name, func(t *testing.T) {
			rec := testutil.NewRecorder()
			h.HandleLogin(rec, loginRequest(a.loginID, a.password))
			rec.AssertStatus(t, http.StatusUnauthorized)
			// Same message for every failure mode.
			rec.AssertContains(t, "incorrect login or password")
		})
	}
}

func TestLoginRateLimited(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	seedAccount(t, f, ctx, db, "cory@example.com", "correct horse battery")
	h := newHandler(t, db)

	// The per-account limiter allows five attempts; the sixth is blocked
	// even with the right password.
	for i := 0; i < 5; i++ {
		rec := testutil.NewRecorder()
		h.HandleLogin(rec, loginRequest("cory@example.com", "guess"))
		rec.AssertStatus(t, http.StatusUnauthorized)
	}
	rec := testutil.NewRecorder()
	h.HandleLogin(rec, loginRequest("cory@example.com", "correct horse battery"))
	rec.AssertStatus(t, http.StatusTooManyRequests)
}
