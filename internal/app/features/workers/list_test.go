package workers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dalemusser/fieldhub/internal/domain/models"
	"github.com/dalemusser/fieldhub/internal/testutil"
)

func decodeList(t *testing.T, body []byte) []models.Worker {
	t.Helper()
	var resp struct {
		Data struct {
			Workers []models.Worker `json:"workers"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	return resp.Data.Workers
}

func TestListScopedToSupervisor(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city := f.CreateCity(ctx, "Springfield", nil)
	mine := f.CreateNeighborhood(ctx, "Riverside", city.ID)
	other := f.CreateNeighborhood(ctx, "Hilltop", city.ID)

	me := testutil.SupervisorUser()
	myID, _ := primitive.ObjectIDFromHex(me.ID)
	f.AssignSupervisor(ctx, myID, mine.ID)

	visible := f.CreateWorker(ctx, "Wanda Worker", mine.ID, city.ID, &myID)
	f.CreateWorker(ctx, "Hidden Worker", other.ID, city.ID, nil)

	h := newHandler(t, db)
	req := testutil.NewAuthenticatedRequest(http.MethodGet, "/workers", me)
	rec := testutil.NewRecorder()

	h.HandleList(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	rows := decodeList(t, rec.Body.Bytes())
	if len(rows) != 1 {
		t.Fatalf("got %d workers, want 1 (own neighborhood only)", len(rows))
	}
	if rows[0].ID != visible.ID {
		t.Errorf("got worker %s, want %s", rows[0].ID.Hex(), visible.ID.Hex())
	}
}

func TestListNeighborhoodFilterCannotWidenScope(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city := f.CreateCity(ctx, "Springfield", nil)
	mine := f.CreateNeighborhood(ctx, "Riverside", city.ID)
	other := f.CreateNeighborhood(ctx, "Hilltop", city.ID)

	me := testutil.SupervisorUser()
	myID, _ := primitive.ObjectIDFromHex(me.ID)
	f.AssignSupervisor(ctx, myID, mine.ID)
	f.CreateWorker(ctx, "Hidden Worker", other.ID, city.ID, nil)

	h := newHandler(t, db)
	req := testutil.NewAuthenticatedRequest(http.MethodGet,
		"/workers?neighborhood_id="+other.ID.Hex(), me)
	rec := testutil.NewRecorder()

	h.HandleList(rec, req)
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestListSearchByFoldedPrefix(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city := f.CreateCity(ctx, "Springfield", nil)
	nbhd := f.CreateNeighborhood(ctx, "Riverside", city.ID)
	f.CreateWorker(ctx, "García Alvarez", nbhd.ID, city.ID, nil)
	f.CreateWorker(ctx, "Smith Jones", nbhd.ID, city.ID, nil)

	h := newHandler(t, db)
	// Folded search: plain-ascii "garcia" must match the accented name.
	req := testutil.NewAuthenticatedRequest(http.MethodGet, "/workers?search=garcia", testutil.AdminUser())
	rec := testutil.NewRecorder()

	h.HandleList(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	rows := decodeList(t, rec.Body.Bytes())
	if len(rows) != 1 {
		t.Fatalf("got %d workers for search, want 1", len(rows))
	}
	if rows[0].FullName != "García Alvarez" {
		t.Errorf("search matched %q", rows[0].FullName)
	}
}

func TestListStatusFilter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city := f.CreateCity(ctx, "Springfield", nil)
	nbhd := f.CreateNeighborhood(ctx, "Riverside", city.ID)
	f.CreateWorker(ctx, "Wanda Worker", nbhd.ID, city.ID, nil)
	idle := f.CreateInactiveWorker(ctx, "Ivy Idle", nbhd.ID, city.ID, nil)

	h := newHandler(t, db)
	req := testutil.NewAuthenticatedRequest(http.MethodGet, "/workers?status=inactive", testutil.AdminUser())
	rec := testutil.NewRecorder()

	h.HandleList(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	rows := decodeList(t, rec.Body.Bytes())
	if len(rows) != 1 || rows[0].ID != idle.ID {
		t.Fatalf("status filter returned %d rows, want just the inactive worker", len(rows))
	}

	req = testutil.NewAuthenticatedRequest(http.MethodGet, "/workers?status=retired", testutil.AdminUser())
	rec = testutil.NewRecorder()
	h.HandleList(rec, req)
	rec.AssertStatus(t, http.StatusBadRequest)
}
