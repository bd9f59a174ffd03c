package scopepolicy_test

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dalemusser/fieldhub/internal/app/policy/scopepolicy"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/testutil"
)

func TestResolve_AdminUnrestricted(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sess := authz.Session{
		UserID: primitive.NewObjectID(),
		Role:   authz.RoleAdmin,
	}
	scope, err := scopepolicy.Resolve(ctx, db, sess)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if scope.Kind != scopepolicy.Unrestricted {
		t.Errorf("admin scope kind: got %v, want Unrestricted", scope.Kind)
	}
}

func TestResolve_SuperAdminOverridesRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// A worker account with the super-admin flag still sees everything.
	sess := authz.Session{
		UserID:       primitive.NewObjectID(),
		Role:         authz.RoleWorker,
		IsSuperAdmin: true,
		WorkerID:     primitive.NewObjectID(),
	}
	scope, err := scopepolicy.Resolve(ctx, db, sess)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if scope.Kind != scopepolicy.Unrestricted {
		t.Errorf("super admin scope kind: got %v, want Unrestricted", scope.Kind)
	}
}

func TestResolve_AreaManagerExpandsToCities(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)

	north := f.CreateArea(ctx, "North")
	south := f.CreateArea(ctx, "South")
	inNorth := f.CreateCity(ctx, "Springfield", &north.ID)
	alsoNorth := f.CreateCity(ctx, "Riverton", &north.ID)
	inSouth := f.CreateCity(ctx, "Lakeside", &south.ID)

	sess := authz.Session{
		UserID:  primitive.NewObjectID(),
		Role:    authz.RoleAreaManager,
		AreaIDs: []primitive.ObjectID{north.ID},
	}
	scope, err := scopepolicy.Resolve(ctx, db, sess)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if scope.Kind != scopepolicy.ByCity {
		t.Fatalf("scope kind: got %v, want ByCity", scope.Kind)
	}
	if !scope.ContainsCity(inNorth.ID) || !scope.ContainsCity(alsoNorth.ID) {
		t.Errorf("scope should contain both cities in the manager's area")
	}
	if scope.ContainsCity(inSouth.ID) {
		t.Errorf("scope should not contain a city in another area")
	}
}

func TestResolve_CoordinatorUsesAssignedCities(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	mine := primitive.NewObjectID()
	other := primitive.NewObjectID()

	sess := authz.Session{
		UserID:  primitive.NewObjectID(),
		Role:    authz.RoleCoordinator,
		CityIDs: []primitive.ObjectID{mine},
	}
	scope, err := scopepolicy.Resolve(ctx, db, sess)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if scope.Kind != scopepolicy.ByCity {
		t.Fatalf("scope kind: got %v, want ByCity", scope.Kind)
	}
	if !scope.ContainsCity(mine) {
		t.Errorf("coordinator scope should contain assigned city")
	}
	if scope.ContainsCity(other) {
		t.Errorf("coordinator scope should not contain unassigned city")
	}
}

func TestResolve_SupervisorNarrowerThanCity(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)

	city := f.CreateCity(ctx, "Springfield", nil)
	assigned := f.CreateNeighborhood(ctx, "Downtown", city.ID)
	unassigned := f.CreateNeighborhood(ctx, "Hillcrest", city.ID)
	sup := f.CreateSupervisor(ctx, "Sam Supervisor", "sam@test.com", assigned.ID)

	sess := authz.Session{UserID: sup.ID, Role: authz.RoleSupervisor}
	scope, err := scopepolicy.Resolve(ctx, db, sess)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if scope.Kind != scopepolicy.ByNeighborhood {
		t.Fatalf("scope kind: got %v, want ByNeighborhood", scope.Kind)
	}
	if !scope.ContainsNeighborhood(assigned.ID, city.ID) {
		t.Errorf("scope should contain the assigned neighborhood")
	}
	// Same city is not enough for a supervisor.
	if scope.ContainsNeighborhood(unassigned.ID, city.ID) {
		t.Errorf("scope should not contain an unassigned neighborhood in the same city")
	}
	if scope.ContainsCity(city.ID) {
		t.Errorf("a supervisor never covers a whole city")
	}
}

func TestResolve_UnassignedRolesGetEmptyScope(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cases := []struct {
		name string
		sess authz.Session
		want scopepolicy.Kind
	}{
		{"area manager without areas", authz.Session{UserID: primitive.NewObjectID(), Role: authz.RoleAreaManager}, scopepolicy.ByCity},
		{"coordinator without cities", authz.Session{UserID: primitive.NewObjectID(), Role: authz.RoleCoordinator}, scopepolicy.ByCity},
		{"supervisor without assignments", authz.Session{UserID: primitive.NewObjectID(), Role: authz.RoleSupervisor}, scopepolicy.ByNeighborhood},
	}
	for _, tc := range cases {
		scope, err := scopepolicy.Resolve(ctx, db, tc.sess)
		if err != nil {
			t.Fatalf("%s: Resolve failed: %v", tc.name, err)
		}
		if scope.Kind != tc.want {
			t.Errorf("%s: scope kind: got %v, want %v", tc.name, scope.Kind, tc.want)
		}
		if scope.ContainsCity(primitive.NewObjectID()) {
			t.Errorf("%s: empty scope must not contain any city", tc.name)
		}
		if scope.ContainsNeighborhood(primitive.NewObjectID(), primitive.NewObjectID()) {
			t.Errorf("%s: empty scope must not contain any neighborhood", tc.name)
		}
	}
}

func TestResolve_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)

	area := f.CreateArea(ctx, "North")
	f.CreateCity(ctx, "Springfield", &area.ID)

	sess := authz.Session{
		UserID:  primitive.NewObjectID(),
		Role:    authz.RoleAreaManager,
		AreaIDs: []primitive.ObjectID{area.ID},
	}
	first, err := scopepolicy.Resolve(ctx, db, sess)
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	second, err := scopepolicy.Resolve(ctx, db, sess)
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if first.Kind != second.Kind || len(first.CityIDs) != len(second.CityIDs) {
		t.Errorf("resolution is not stable: %+v vs %+v", first, second)
	}
	for i := range first.CityIDs {
		if first.CityIDs[i] != second.CityIDs[i] {
			t.Errorf("city IDs differ at %d: %s vs %s", i, first.CityIDs[i].Hex(), second.CityIDs[i].Hex())
		}
	}
}

func TestWorkerScope(t *testing.T) {
	workerID := primitive.NewObjectID()
	scope := scopepolicy.Scope{Kind: scopepolicy.BySelf, WorkerID: workerID}

	if !scope.ContainsWorker(workerID, primitive.NewObjectID(), primitive.NewObjectID()) {
		t.Errorf("self scope should contain the worker's own record")
	}
	if scope.ContainsWorker(primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()) {
		t.Errorf("self scope should not contain another worker")
	}
	if scope.ContainsCity(primitive.NewObjectID()) {
		t.Errorf("self scope should not contain any city")
	}

	// A worker account with no linked record matches nothing, not everything.
	empty := scopepolicy.Scope{Kind: scopepolicy.BySelf}
	if empty.ContainsWorker(primitive.NilObjectID, primitive.NewObjectID(), primitive.NewObjectID()) {
		t.Errorf("unlinked self scope must not match the nil worker ID")
	}
}

func TestFilters(t *testing.T) {
	cityID := primitive.NewObjectID()
	scope := scopepolicy.Scope{Kind: scopepolicy.ByCity, CityIDs: []primitive.ObjectID{cityID}}

	if f, ok := scope.CityFilter(); !ok || f == nil {
		t.Errorf("city scope should produce a city filter")
	}
	if f, ok := scope.NeighborhoodFilter(); !ok || f["city_id"] == nil {
		t.Errorf("city scope neighborhood filter should constrain city_id, got %v", f)
	}
	if f := scope.WorkerFilter(); f["city_id"] == nil {
		t.Errorf("city scope worker filter should constrain city_id, got %v", f)
	}

	nbhd := scopepolicy.Scope{Kind: scopepolicy.ByNeighborhood}
	if _, ok := nbhd.CityFilter(); ok {
		t.Errorf("neighborhood scope must not produce a city filter")
	}

	unrestricted := scopepolicy.Scope{Kind: scopepolicy.Unrestricted}
	if f := unrestricted.WorkerFilter(); len(f) != 0 {
		t.Errorf("unrestricted worker filter should be empty, got %v", f)
	}
}
