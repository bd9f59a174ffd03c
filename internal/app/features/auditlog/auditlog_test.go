package auditlog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/dalemusser/fieldhub/internal/app/features/auditlog"
	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	"github.com/dalemusser/fieldhub/internal/testutil"
)

func newHandler(t *testing.T, db *mongo.Database) *auditlog.Handler {
	t.Helper()
	logger := zap.NewNop()
	return auditlog.NewHandler(db, uierrors.NewErrorLogger(logger), logger)
}

func seedEvent(t *testing.T, ctx context.Context, db *mongo.Database, eventType string, cityID *primitive.ObjectID, at time.Time) {
	t.Helper()
	store := audit.New(db)
	if err := store.Log(ctx, audit.Event{
		Timestamp: at,
		Category:  audit.CategoryAdmin,
		EventType: eventType,
		CityID:    cityID,
		Success:   true,
	}); err != nil {
		t.Fatalf("seed audit event: %v", err)
	}
}

func decodeEvents(t *testing.T, body []byte) []struct {
	EventType string `json:"event_type"`
} {
	t.Helper()
	var resp struct {
		Data struct {
			Events []struct {
				EventType string `json:"event_type"`
			} `json:"events"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data.Events
}

func TestListDeniedBelowAreaManager(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)

	for _, user := range []testutil.TestUser{testutil.CoordinatorUser(), testutil.SupervisorUser()} {
		req := testutil.NewAuthenticatedRequest(http.MethodGet, "/auditlog", user)
		rec := testutil.NewRecorder()
		h.HandleList(rec, req)
		rec.AssertStatus(t, http.StatusForbidden)
	}
}

func TestListAdminSeesEverything(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city := f.CreateCity(ctx, "Springfield", nil)
	now := time.Now().UTC()
	seedEvent(t, ctx, db, "city_created", &city.ID, now.Add(-time.Hour))
	seedEvent(t, ctx, db, "area_created", nil, now)

	h := newHandler(t, db)
	req := testutil.NewAuthenticatedRequest(http.MethodGet, "/auditlog", testutil.AdminUser())
	rec := testutil.NewRecorder()
	h.HandleList(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	events := decodeEvents(t, rec.Body.Bytes())
	if len(events) != 2 {
		t.Fatalf("admin sees %d events, want 2", len(events))
	}
	// Newest first.
	if events[0].EventType != "area_created" {
		t.Errorf("first event = %q, want the newest", events[0].EventType)
	}
}

func TestListScopedToAreaManagerCities(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	area := f.CreateArea(ctx, "North Region")
	inside := f.CreateCity(ctx, "Springfield", &area.ID)
	outside := f.CreateCity(ctx, "Shelbyville", nil)
	now := time.Now().UTC()
	seedEvent(t, ctx, db, "city_created", &inside.ID, now)
	seedEvent(t, ctx, db, "city_created", &outside.ID, now)
	seedEvent(t, ctx, db, "area_created", nil, now)

	h := newHandler(t, db)
	req := testutil.NewAuthenticatedRequest(http.MethodGet, "/auditlog", testutil.AreaManagerUser(area.ID))
	rec := testutil.NewRecorder()
	h.HandleList(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	events := decodeEvents(t, rec.Body.Bytes())
	if len(events) != 1 {
		t.Fatalf("area manager sees %d events, want only the in-area city event", len(events))
	}
}

func TestListAreaManagerWithNoCitiesSeesNothing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	area := f.CreateArea(ctx, "Empty Region")
	city := f.CreateCity(ctx, "Springfield", nil)
	seedEvent(t, ctx, db, "city_created", &city.ID, time.Now().UTC())

	h := newHandler(t, db)
	req := testutil.NewAuthenticatedRequest(http.MethodGet, "/auditlog", testutil.AreaManagerUser(area.ID))
	rec := testutil.NewRecorder()
	h.HandleList(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	if events := decodeEvents(t, rec.Body.Bytes()); len(events) != 0 {
		t.Fatalf("manager of an empty area sees %d events, want 0", len(events))
	}
}

func TestListEventTypeFilter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC()
	seedEvent(t, ctx, db, "area_created", nil, now)
	seedEvent(t, ctx, db, "area_updated", nil, now)

	h := newHandler(t, db)
	req := testutil.NewAuthenticatedRequest(http.MethodGet, "/auditlog?event_type=area_updated", testutil.AdminUser())
	rec := testutil.NewRecorder()
	h.HandleList(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	events := decodeEvents(t, rec.Body.Bytes())
	if len(events) != 1 || events[0].EventType != "area_updated" {
		t.Fatalf("filter returned %d events", len(events))
	}
}

func TestEntityTrailAdminOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city := f.CreateCity(ctx, "Springfield", nil)
	other := f.CreateCity(ctx, "Shelbyville", nil)
	store := audit.New(db)
	now := time.Now().UTC()
	for i, ev := range []struct {
		eventType string
		entityID  primitive.ObjectID
	}{
		{"city_created", city.ID},
		{"city_updated", city.ID},
		{"city_created", other.ID},
	} {
		if err := store.Log(ctx, audit.Event{
			Timestamp:  now.Add(time.Duration(i) * time.Minute),
			Category:   audit.CategoryAdmin,
			EventType:  ev.eventType,
			EntityType: "city",
			EntityID:   &ev.entityID,
			Success:    true,
		}); err != nil {
			t.Fatalf("seed audit event: %v", err)
		}
	}

	h := newHandler(t, db)

	req := testutil.NewAuthenticatedRequest(http.MethodGet, "/auditlog/entity/"+city.ID.Hex(), testutil.AreaManagerUser())
	req = testutil.WithChiURLParam(req, "id", city.ID.Hex())
	rec := testutil.NewRecorder()
	h.HandleEntity(rec, req)
	rec.AssertStatus(t, http.StatusForbidden)

	req = testutil.NewAuthenticatedRequest(http.MethodGet, "/auditlog/entity/"+city.ID.Hex(), testutil.AdminUser())
	req = testutil.WithChiURLParam(req, "id", city.ID.Hex())
	rec = testutil.NewRecorder()
	h.HandleEntity(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	events := decodeEvents(t, rec.Body.Bytes())
	if len(events) != 2 {
		t.Fatalf("entity trail has %d events, want the 2 for this record", len(events))
	}
}
