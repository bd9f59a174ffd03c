package areas_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/dalemusser/fieldhub/internal/app/features/areas"
	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
	"github.com/dalemusser/fieldhub/internal/app/system/indexes"
	"github.com/dalemusser/fieldhub/internal/domain/models"
	"github.com/dalemusser/fieldhub/internal/testutil"
)

func newHandler(t *testing.T, db *mongo.Database) *areas.Handler {
	t.Helper()
	logger := zap.NewNop()
	auditLog := auditlog.New(audit.New(db), logger, auditlog.Config{Admin: "db"})
	return areas.NewHandler(db, uierrors.NewErrorLogger(logger), auditLog, logger)
}

func jsonRequest(method, target, body string, user testutil.TestUser) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return testutil.WithUser(req, user)
}

func TestListScopedToAreaManager(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	mine := f.CreateArea(ctx, "North Region")
	f.CreateArea(ctx, "South Region")

	h := newHandler(t, db)
	req := testutil.NewAuthenticatedRequest(http.MethodGet, "/areas", testutil.AreaManagerUser(mine.ID))
	rec := testutil.NewRecorder()

	h.HandleList(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	var resp struct {
		Data []models.Area `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != mine.ID {
		t.Fatalf("area manager sees %d areas, want only their own", len(resp.Data))
	}
}

func TestListDeniedToSupervisors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)

	req := testutil.NewAuthenticatedRequest(http.MethodGet, "/areas", testutil.SupervisorUser())
	rec := testutil.NewRecorder()
	h.HandleList(rec, req)
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestCreateAdminOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)

	rec := testutil.NewRecorder()
	h.HandleCreate(rec, jsonRequest(http.MethodPost, "/areas", `{"name":"North Region"}`, testutil.AreaManagerUser()))
	rec.AssertStatus(t, http.StatusForbidden)

	rec = testutil.NewRecorder()
	h.HandleCreate(rec, jsonRequest(http.MethodPost, "/areas", `{"name":"North Region"}`, testutil.AdminUser()))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "North Region")
}

func TestCreateDuplicateName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	f.CreateArea(ctx, "North Region")

	h := newHandler(t, db)
	// Same name after case folding counts as a duplicate.
	rec := testutil.NewRecorder()
	h.HandleCreate(rec, jsonRequest(http.MethodPost, "/areas", `{"name":"NORTH region"}`, testutil.AdminUser()))
	rec.AssertStatus(t, http.StatusConflict)
}

func TestSetManagerSyncsUserScope(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	area := f.CreateArea(ctx, "North Region")
	prev := f.CreateAreaManager(ctx, "Pat Previous", "pat@example.com", area.ID)
	if _, err := db.Collection("areas").UpdateByID(ctx, area.ID,
		bson.M{"$set": bson.M{"manager_id": prev.ID}}); err != nil {
		t.Fatalf("seed manager: %v", err)
	}
	next := f.CreateAreaManager(ctx, "Nina Next", "nina@example.com")

	h := newHandler(t, db)
	body := fmt.Sprintf(`{"manager_id":%q}`, next.ID.Hex())
	req := jsonRequest(http.MethodPut, "/areas/"+area.ID.Hex()+"/manager", body, testutil.AdminUser())
	req = testutil.WithChiURLParam(req, "id", area.ID.Hex())
	rec := testutil.NewRecorder()

	h.HandleSetManager(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	var a models.Area
	if err := db.Collection("areas").FindOne(ctx, bson.M{"_id": area.ID}).Decode(&a); err != nil {
		t.Fatalf("reload area: %v", err)
	}
	if a.ManagerID == nil || *a.ManagerID != next.ID {
		t.Errorf("area manager not updated")
	}

	var u models.User
	if err := db.Collection("users").FindOne(ctx, bson.M{"_id": next.ID}).Decode(&u); err != nil {
		t.Fatalf("reload new manager: %v", err)
	}
	if len(u.AreaIDs) != 1 || u.AreaIDs[0] != area.ID {
		t.Errorf("new manager area_ids = %v, want [%s]", u.AreaIDs, area.ID.Hex())
	}

	if err := db.Collection("users").FindOne(ctx, bson.M{"_id": prev.ID}).Decode(&u); err != nil {
		t.Fatalf("reload previous manager: %v", err)
	}
	for _, id := range u.AreaIDs {
		if id == area.ID {
			t.Errorf("previous manager still scoped to the area")
		}
	}
}

func TestSetManagerRejectsWrongRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	area := f.CreateArea(ctx, "North Region")
	sup := f.CreateUser(ctx, "Sam Super", "sam@example.com", "supervisor")

	h := newHandler(t, db)
	body := fmt.Sprintf(`{"manager_id":%q}`, sup.ID.Hex())
	req := jsonRequest(http.MethodPut, "/areas/"+area.ID.Hex()+"/manager", body, testutil.AdminUser())
	req = testutil.WithChiURLParam(req, "id", area.ID.Hex())
	rec := testutil.NewRecorder()

	h.HandleSetManager(rec, req)
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestDeleteBlockedWhileCitiesExist(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	area := f.CreateArea(ctx, "North Region")
	f.CreateCity(ctx, "Springfield", &area.ID)

	h := newHandler(t, db)
	req := testutil.NewAuthenticatedRequest(http.MethodDelete, "/areas/"+area.ID.Hex(), testutil.AdminUser())
	req = testutil.WithChiURLParam(req, "id", area.ID.Hex())
	rec := testutil.NewRecorder()

	h.HandleDelete(rec, req)
	rec.AssertStatus(t, http.StatusConflict)
}

func TestDeleteDetachesManagers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	area := f.CreateArea(ctx, "North Region")
	keep := f.CreateArea(ctx, "South Region")
	mgr := f.CreateAreaManager(ctx, "Mara Manager", "mara@example.com", area.ID, keep.ID)

	h := newHandler(t, db)
	req := testutil.NewAuthenticatedRequest(http.MethodDelete, "/areas/"+area.ID.Hex(), testutil.AdminUser())
	req = testutil.WithChiURLParam(req, "id", area.ID.Hex())
	rec := testutil.NewRecorder()

	h.HandleDelete(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	if n, err := db.Collection("areas").CountDocuments(ctx, bson.M{"_id": area.ID}); err != nil || n != 0 {
		t.Fatalf("area still present after delete (n=%d, err=%v)", n, err)
	}

	var u models.User
	if err := db.Collection("users").FindOne(ctx, bson.M{"_id": mgr.ID}).Decode(&u); err != nil {
		t.Fatalf("reload manager: %v", err)
	}
	if len(u.AreaIDs) != 1 || u.AreaIDs[0] != keep.ID {
		t.Errorf("manager area_ids = %v, want only %s", u.AreaIDs, keep.ID.Hex())
	}
}

func TestDeleteAdminOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	area := f.CreateArea(ctx, "North Region")

	h := newHandler(t, db)
	req := testutil.NewAuthenticatedRequest(http.MethodDelete, "/areas/"+area.ID.Hex(), testutil.AreaManagerUser(area.ID))
	req = testutil.WithChiURLParam(req, "id", area.ID.Hex())
	rec := testutil.NewRecorder()

	h.HandleDelete(rec, req)
	rec.AssertStatus(t, http.StatusForbidden)
}
