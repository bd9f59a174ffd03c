package auditlog_test

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
	"github.com/dalemusser/fieldhub/internal/testutil"
)

func TestLogRoutesPerCategory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(audit.New(db), zap.NewNop(), auditlog.Config{
		Auth:       "db",
		Admin:      "off",
		Attendance: "log",
		Assignment: "all",
	})

	events := []struct {
		category  string
		eventType string
		stored    bool
	}{
		{audit.CategoryAuth, audit.EventLoginSuccess, true},
		{audit.CategoryAdmin, audit.EventAreaCreated, false},
		{audit.CategoryAttendance, audit.EventCheckIn, false},
		{audit.CategoryAssignment, audit.EventSupervisorAssigned, true},
	}
	for _, e := range events {
		if err := logger.Log(ctx, audit.Event{
			Category:  e.category,
			EventType: e.eventType,
			Success:   true,
		}); err != nil {
			t.Fatalf("log %s: %v", e.eventType, err)
		}
	}

	for _, e := range events {
		n, err := db.Collection("audit_events").CountDocuments(ctx, bson.M{"event_type": e.eventType})
		if err != nil {
			t.Fatalf("count %s: %v", e.eventType, err)
		}
		want := int64(0)
		if e.stored {
			want = 1
		}
		if n != want {
			t.Errorf("category %s (%s): %d stored events, want %d", e.category, e.eventType, n, want)
		}
	}
}

func TestNilLoggerIsNoOp(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	var l *auditlog.Logger
	if err := l.Log(ctx, audit.Event{Category: audit.CategoryAuth, EventType: audit.EventLoginSuccess}); err != nil {
		t.Fatalf("nil logger returned error: %v", err)
	}
}
