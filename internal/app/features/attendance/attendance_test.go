package attendance_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/dalemusser/fieldhub/internal/app/features/attendance"
	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
	"github.com/dalemusser/fieldhub/internal/app/system/checkwindow"
	"github.com/dalemusser/fieldhub/internal/domain/models"
	"github.com/dalemusser/fieldhub/internal/testutil"
)

// noonZone returns an IANA fixed-offset zone in which the current wall
// clock reads close to midday, so tests can build windows that are
// definitely open or definitely closed right now.
func noonZone(t *testing.T) string {
	t.Helper()
	shift := 12 - time.Now().UTC().Hour()
	// Etc/GMT sign convention is inverted: Etc/GMT-5 means UTC+5.
	switch {
	case shift > 0:
		return fmt.Sprintf("Etc/GMT-%d", shift)
	case shift < 0:
		return fmt.Sprintf("Etc/GMT+%d", -shift)
	default:
		return "Etc/GMT"
	}
}

func openWindow(t *testing.T) checkwindow.Window {
	t.Helper()
	w, err := checkwindow.New("06:00", "22:00", noonZone(t))
	if err != nil {
		t.Fatalf("build open window: %v", err)
	}
	return w
}

func closedWindow(t *testing.T) checkwindow.Window {
	t.Helper()
	w, err := checkwindow.New("01:00", "02:00", noonZone(t))
	if err != nil {
		t.Fatalf("build closed window: %v", err)
	}
	return w
}

func newHandler(t *testing.T, db *mongo.Database, w checkwindow.Window) *attendance.Handler {
	t.Helper()
	logger := zap.NewNop()
	auditLog := auditlog.New(audit.New(db), logger, auditlog.Config{Attendance: "db"})
	return attendance.NewHandler(db, w, uierrors.NewErrorLogger(logger), auditLog, logger)
}

func jsonRequest(method, target, body string, user testutil.TestUser) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return testutil.WithUser(req, user)
}

func seedWorker(t *testing.T, f *testutil.Fixtures, ctx context.Context) (models.City, models.Neighborhood, models.Worker) {
	t.Helper()
	city := f.CreateCity(ctx, "Springfield", nil)
	nbhd := f.CreateNeighborhood(ctx, "Riverside", city.ID)
	worker := f.CreateWorker(ctx, "Wanda Worker", nbhd.ID, city.ID, nil)
	return city, nbhd, worker
}

func TestCheckInInsideWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city, _, worker := seedWorker(t, f, ctx)
	h := newHandler(t, db, openWindow(t))

	body := fmt.Sprintf(`{"worker_id":%q,"notes":"on time"}`, worker.ID.Hex())
	req := jsonRequest(http.MethodPost, "/attendance", body, testutil.CoordinatorUser(city.ID))
	rec := testutil.NewRecorder()

	h.HandleCheckIn(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	var resp struct {
		Data struct {
			Record  models.AttendanceRecord `json:"record"`
			Created bool                    `json:"created"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Data.Created {
		t.Errorf("created = false on first check-in")
	}
	if resp.Data.Record.Status != "present" || resp.Data.Record.Notes != "on time" {
		t.Errorf("record = %+v", resp.Data.Record)
	}
}

func TestCheckInTwiceIsAnEdit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city, _, worker := seedWorker(t, f, ctx)
	h := newHandler(t, db, openWindow(t))
	user := testutil.CoordinatorUser(city.ID)

	body := fmt.Sprintf(`{"worker_id":%q,"notes":"first"}`, worker.ID.Hex())
	rec := testutil.NewRecorder()
	h.HandleCheckIn(rec, jsonRequest(http.MethodPost, "/attendance", body, user))
	rec.AssertStatus(t, http.StatusOK)

	body = fmt.Sprintf(`{"worker_id":%q,"notes":"corrected"}`, worker.ID.Hex())
	rec = testutil.NewRecorder()
	h.HandleCheckIn(rec, jsonRequest(http.MethodPost, "/attendance", body, user))
	rec.AssertStatus(t, http.StatusOK)

	var resp struct {
		Data struct {
			Record  models.AttendanceRecord `json:"record"`
			Created bool                    `json:"created"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Created {
		t.Errorf("created = true on re-record")
	}
	if resp.Data.Record.Notes != "corrected" {
		t.Errorf("notes = %q, want the edited value", resp.Data.Record.Notes)
	}

	n, err := db.Collection("attendance").CountDocuments(ctx, bson.M{"worker_id": worker.ID})
	if err != nil {
		t.Fatalf("count records: %v", err)
	}
	if n != 1 {
		t.Errorf("%d attendance rows for one worker-day, want 1", n)
	}
}

func TestCheckInOutsideWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city, _, worker := seedWorker(t, f, ctx)
	h := newHandler(t, db, closedWindow(t))

	body := fmt.Sprintf(`{"worker_id":%q}`, worker.ID.Hex())
	rec := testutil.NewRecorder()
	h.HandleCheckIn(rec, jsonRequest(http.MethodPost, "/attendance", body, testutil.CoordinatorUser(city.ID)))
	rec.AssertStatus(t, http.StatusConflict)
}

func TestCheckInInactiveWorker(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city := f.CreateCity(ctx, "Springfield", nil)
	nbhd := f.CreateNeighborhood(ctx, "Riverside", city.ID)
	worker := f.CreateInactiveWorker(ctx, "Ivy Idle", nbhd.ID, city.ID, nil)
	h := newHandler(t, db, openWindow(t))

	body := fmt.Sprintf(`{"worker_id":%q}`, worker.ID.Hex())
	rec := testutil.NewRecorder()
	h.HandleCheckIn(rec, jsonRequest(http.MethodPost, "/attendance", body, testutil.CoordinatorUser(city.ID)))
	rec.AssertStatus(t, http.StatusConflict)
}

func TestWorkerChecksInSelfOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, _, own := seedWorker(t, f, ctx)
	other := f.CreateWorker(ctx, "Oscar Other", own.NeighborhoodID, own.CityID, nil)
	h := newHandler(t, db, openWindow(t))
	me := testutil.WorkerUser(own.ID)

	body := fmt.Sprintf(`{"worker_id":%q}`, own.ID.Hex())
	rec := testutil.NewRecorder()
	h.HandleCheckIn(rec, jsonRequest(http.MethodPost, "/attendance", body, me))
	rec.AssertStatus(t, http.StatusOK)

	body = fmt.Sprintf(`{"worker_id":%q}`, other.ID.Hex())
	rec = testutil.NewRecorder()
	h.HandleCheckIn(rec, jsonRequest(http.MethodPost, "/attendance", body, me))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestUndoRequiresReason(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city, _, worker := seedWorker(t, f, ctx)
	h := newHandler(t, db, openWindow(t))

	// Markup-only reason sanitizes to empty and must be rejected.
	body := fmt.Sprintf(`{"worker_id":%q,"date":"2026-08-01","reason":"<b></b>"}`, worker.ID.Hex())
	rec := testutil.NewRecorder()
	h.HandleUndo(rec, jsonRequest(http.MethodPost, "/attendance/undo", body, testutil.CoordinatorUser(city.ID)))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestUndoPastDate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city, nbhd, worker := seedWorker(t, f, ctx)
	// A past-date record can be undone even while the window is closed.
	past := models.AttendanceRecord{
		ID:             primitive.NewObjectID(),
		WorkerID:       worker.ID,
		NeighborhoodID: nbhd.ID,
		Date:           "2026-08-01",
		Status:         "present",
		CheckedInAt:    time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC),
	}
	if _, err := db.Collection("attendance").InsertOne(ctx, past); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	h := newHandler(t, db, closedWindow(t))
	body := fmt.Sprintf(`{"worker_id":%q,"date":"2026-08-01","reason":"recorded for the wrong person"}`, worker.ID.Hex())
	rec := testutil.NewRecorder()
	h.HandleUndo(rec, jsonRequest(http.MethodPost, "/attendance/undo", body, testutil.CoordinatorUser(city.ID)))
	rec.AssertStatus(t, http.StatusOK)

	n, err := db.Collection("attendance").CountDocuments(ctx, bson.M{"worker_id": worker.ID})
	if err != nil {
		t.Fatalf("count records: %v", err)
	}
	if n != 0 {
		t.Errorf("record still present after undo")
	}
}

func TestUndoTodayOutsideWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city, nbhd, worker := seedWorker(t, f, ctx)
	w := closedWindow(t)
	today := w.DateKey(time.Now())
	rec0 := models.AttendanceRecord{
		ID:             primitive.NewObjectID(),
		WorkerID:       worker.ID,
		NeighborhoodID: nbhd.ID,
		Date:           today,
		Status:         "present",
		CheckedInAt:    time.Now().UTC(),
	}
	if _, err := db.Collection("attendance").InsertOne(ctx, rec0); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	h := newHandler(t, db, w)
	body := fmt.Sprintf(`{"worker_id":%q,"date":%q,"reason":"mistake"}`, worker.ID.Hex(), today)
	rec := testutil.NewRecorder()
	h.HandleUndo(rec, jsonRequest(http.MethodPost, "/attendance/undo", body, testutil.CoordinatorUser(city.ID)))
	rec.AssertStatus(t, http.StatusConflict)
}

func TestUndoMissingRecord(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	city, _, worker := seedWorker(t, f, ctx)
	h := newHandler(t, db, openWindow(t))

	body := fmt.Sprintf(`{"worker_id":%q,"date":"2026-08-01","reason":"never happened"}`, worker.ID.Hex())
	rec := testutil.NewRecorder()
	h.HandleUndo(rec, jsonRequest(http.MethodPost, "/attendance/undo", body, testutil.CoordinatorUser(city.ID)))
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestHistoryScopedToWorker(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, nbhd, own := seedWorker(t, f, ctx)
	other := f.CreateWorker(ctx, "Oscar Other", own.NeighborhoodID, own.CityID, nil)
	for i, w := range []primitive.ObjectID{own.ID, other.ID} {
		rec := models.AttendanceRecord{
			ID:             primitive.NewObjectID(),
			WorkerID:       w,
			NeighborhoodID: nbhd.ID,
			Date:           fmt.Sprintf("2026-08-0%d", i+1),
			Status:         "present",
			CheckedInAt:    time.Now().UTC(),
		}
		if _, err := db.Collection("attendance").InsertOne(ctx, rec); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}

	h := newHandler(t, db, openWindow(t))
	req := testutil.NewAuthenticatedRequest(http.MethodGet, "/attendance/history", testutil.WorkerUser(own.ID))
	rec := testutil.NewRecorder()
	h.HandleHistory(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	var resp struct {
		Data struct {
			Records []models.AttendanceRecord `json:"records"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data.Records) != 1 {
		t.Fatalf("worker sees %d records, want only their own", len(resp.Data.Records))
	}
	if resp.Data.Records[0].WorkerID != own.ID {
		t.Errorf("record belongs to %s", resp.Data.Records[0].WorkerID.Hex())
	}
}
