package assignment_test

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	"github.com/dalemusser/fieldhub/internal/app/system/assignment"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
	"github.com/dalemusser/fieldhub/internal/domain/models"
	"github.com/dalemusser/fieldhub/internal/testutil"
)

func newBalancer(t *testing.T, db *mongo.Database) *assignment.Balancer {
	t.Helper()
	auditLog := auditlog.New(audit.New(db), zap.NewNop(), auditlog.Config{
		Assignment: "db",
	})
	return assignment.New(db, zap.NewNop(), auditLog)
}

func testActor() assignment.Actor {
	return assignment.Actor{UserID: primitive.NewObjectID(), Name: "Test Actor"}
}

func loadWorker(t *testing.T, ctx context.Context, db *mongo.Database, id primitive.ObjectID) models.Worker {
	t.Helper()
	var w models.Worker
	if err := db.Collection("workers").FindOne(ctx, bson.M{"_id": id}).Decode(&w); err != nil {
		t.Fatalf("load worker %s: %v", id.Hex(), err)
	}
	return w
}

// checkInvariant verifies the neighborhood-level rule: no supervisors means
// no references; otherwise every active worker references an assigned
// supervisor.
func checkInvariant(t *testing.T, ctx context.Context, db *mongo.Database, neighborhoodID primitive.ObjectID) {
	t.Helper()

	assigned := make(map[primitive.ObjectID]bool)
	cur, err := db.Collection("supervisor_assignments").Find(ctx, bson.M{"neighborhood_id": neighborhoodID})
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	for cur.Next(ctx) {
		var a models.SupervisorAssignment
		if err := cur.Decode(&a); err != nil {
			t.Fatalf("decode assignment: %v", err)
		}
		assigned[a.UserID] = true
	}
	cur.Close(ctx)

	wcur, err := db.Collection("workers").Find(ctx, bson.M{"neighborhood_id": neighborhoodID, "status": "active"})
	if err != nil {
		t.Fatalf("list workers: %v", err)
	}
	defer wcur.Close(ctx)
	for wcur.Next(ctx) {
		var w models.Worker
		if err := wcur.Decode(&w); err != nil {
			t.Fatalf("decode worker: %v", err)
		}
		if len(assigned) == 0 {
			if w.SupervisorID != nil {
				t.Errorf("worker %s references a supervisor in an unsupervised neighborhood", w.FullName)
			}
			continue
		}
		if w.SupervisorID == nil {
			t.Errorf("worker %s is unassigned in a supervised neighborhood", w.FullName)
			continue
		}
		if !assigned[*w.SupervisorID] {
			t.Errorf("worker %s references supervisor %s who is not assigned here", w.FullName, w.SupervisorID.Hex())
		}
	}
}

func TestValidateAssignment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)
	b := newBalancer(t, db)

	city := f.CreateCity(ctx, "Springfield", nil)
	empty := f.CreateNeighborhood(ctx, "Pool Side", city.ID)
	staffed := f.CreateNeighborhood(ctx, "Downtown", city.ID)
	elsewhere := f.CreateNeighborhood(ctx, "Elsewhere", city.ID)
	sup := f.CreateSupervisor(ctx, "Sam Supervisor", "sam@test.com", staffed.ID)
	outsider := f.CreateSupervisor(ctx, "Olga Outsider", "olga@test.com", elsewhere.ID)

	// Unsupervised neighborhood: nil is the only valid reference.
	v, err := b.ValidateAssignment(ctx, empty.ID, nil)
	if err != nil || !v.Valid {
		t.Errorf("nil reference in unsupervised neighborhood: valid=%v err=%v reason=%q", v.Valid, err, v.Reason)
	}
	v, err = b.ValidateAssignment(ctx, empty.ID, &sup.ID)
	if err != nil {
		t.Fatalf("ValidateAssignment failed: %v", err)
	}
	if v.Valid {
		t.Errorf("non-nil reference in unsupervised neighborhood should be invalid")
	}

	// Supervised neighborhood: must point at one of its supervisors.
	v, err = b.ValidateAssignment(ctx, staffed.ID, nil)
	if err != nil {
		t.Fatalf("ValidateAssignment failed: %v", err)
	}
	if v.Valid {
		t.Errorf("nil reference in supervised neighborhood should be invalid")
	}
	v, err = b.ValidateAssignment(ctx, staffed.ID, &sup.ID)
	if err != nil || !v.Valid {
		t.Errorf("assigned supervisor rejected: valid=%v err=%v reason=%q", v.Valid, err, v.Reason)
	}
	v, err = b.ValidateAssignment(ctx, staffed.ID, &outsider.ID)
	if err != nil {
		t.Fatalf("ValidateAssignment failed: %v", err)
	}
	if v.Valid {
		t.Errorf("supervisor from another neighborhood accepted")
	}
	if v.Reason == "" {
		t.Errorf("invalid assignment must carry a reason")
	}
}

func TestAssign_FirstSupervisorAdoptsPool(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)
	b := newBalancer(t, db)

	city := f.CreateCity(ctx, "Springfield", nil)
	nbhd := f.CreateNeighborhood(ctx, "Downtown", city.ID)
	sup := f.CreateUser(ctx, "Sam Supervisor", "sam@test.com", "supervisor")

	w1 := f.CreateWorker(ctx, "Worker One", nbhd.ID, city.ID, nil)
	w2 := f.CreateWorker(ctx, "Worker Two", nbhd.ID, city.ID, nil)
	inactive := f.CreateInactiveWorker(ctx, "Worker Idle", nbhd.ID, city.ID, nil)

	res, err := b.Assign(ctx, testActor(), sup.ID, nbhd.ID)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if res.AdoptedCount != 2 {
		t.Errorf("adopted count: got %d, want 2", res.AdoptedCount)
	}
	if res.BatchID == "" {
		t.Errorf("adoption must carry a batch ID")
	}

	for _, id := range []primitive.ObjectID{w1.ID, w2.ID} {
		w := loadWorker(t, ctx, db, id)
		if w.SupervisorID == nil || *w.SupervisorID != sup.ID {
			t.Errorf("worker %s not adopted by new supervisor", w.FullName)
		}
	}
	// Inactive workers stay in place.
	if w := loadWorker(t, ctx, db, inactive.ID); w.SupervisorID != nil {
		t.Errorf("inactive worker should not be adopted")
	}
	checkInvariant(t, ctx, db, nbhd.ID)

	// One batch audit entry, not one per worker.
	n, err := db.Collection("audit_events").CountDocuments(ctx, bson.M{
		"event_type":   audit.EventWorkersAdopted,
		"batch_id":     res.BatchID,
		"worker_count": 2,
	})
	if err != nil {
		t.Fatalf("count audit events: %v", err)
	}
	if n != 1 {
		t.Errorf("adoption audit entries: got %d, want 1", n)
	}
}

func TestAssign_SecondSupervisorDoesNotDisturbWorkers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)
	b := newBalancer(t, db)

	city := f.CreateCity(ctx, "Springfield", nil)
	nbhd := f.CreateNeighborhood(ctx, "Downtown", city.ID)
	first := f.CreateUser(ctx, "First Supervisor", "first@test.com", "supervisor")
	second := f.CreateUser(ctx, "Second Supervisor", "second@test.com", "supervisor")

	f.CreateWorker(ctx, "Worker One", nbhd.ID, city.ID, nil)

	if _, err := b.Assign(ctx, testActor(), first.ID, nbhd.ID); err != nil {
		t.Fatalf("first Assign failed: %v", err)
	}
	res, err := b.Assign(ctx, testActor(), second.ID, nbhd.ID)
	if err != nil {
		t.Fatalf("second Assign failed: %v", err)
	}
	if res.AdoptedCount != 0 {
		t.Errorf("second supervisor should adopt nobody, got %d", res.AdoptedCount)
	}
	checkInvariant(t, ctx, db, nbhd.ID)
}

func TestAssign_DuplicateRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)
	b := newBalancer(t, db)

	city := f.CreateCity(ctx, "Springfield", nil)
	nbhd := f.CreateNeighborhood(ctx, "Downtown", city.ID)
	sup := f.CreateUser(ctx, "Sam Supervisor", "sam@test.com", "supervisor")

	if _, err := b.Assign(ctx, testActor(), sup.ID, nbhd.ID); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	_, err := b.Assign(ctx, testActor(), sup.ID, nbhd.ID)
	if !errors.Is(err, assignment.ErrAlreadyAssigned) {
		t.Errorf("duplicate assignment: got %v, want ErrAlreadyAssigned", err)
	}
}

func TestUnassign_LastSupervisorReturnsWorkersToPool(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)
	b := newBalancer(t, db)

	city := f.CreateCity(ctx, "Springfield", nil)
	nbhd := f.CreateNeighborhood(ctx, "Downtown", city.ID)
	sup := f.CreateUser(ctx, "Sam Supervisor", "sam@test.com", "supervisor")

	f.CreateWorker(ctx, "Worker One", nbhd.ID, city.ID, nil)
	f.CreateWorker(ctx, "Worker Two", nbhd.ID, city.ID, nil)
	f.CreateWorker(ctx, "Worker Three", nbhd.ID, city.ID, nil)

	if _, err := b.Assign(ctx, testActor(), sup.ID, nbhd.ID); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	res, err := b.Unassign(ctx, testActor(), sup.ID, nbhd.ID)
	if err != nil {
		t.Fatalf("Unassign failed: %v", err)
	}
	if res.ReturnedCount != 3 {
		t.Errorf("returned count: got %d, want 3", res.ReturnedCount)
	}
	if res.ReassignedCount != 0 {
		t.Errorf("reassigned count: got %d, want 0", res.ReassignedCount)
	}
	checkInvariant(t, ctx, db, nbhd.ID)

	n, err := db.Collection("audit_events").CountDocuments(ctx, bson.M{
		"event_type": audit.EventWorkersReturned,
		"batch_id":   res.BatchID,
	})
	if err != nil {
		t.Fatalf("count audit events: %v", err)
	}
	if n != 1 {
		t.Errorf("pool-return audit entries: got %d, want 1", n)
	}
}

func TestUnassign_SpreadsToLeastLoadedRemaining(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)
	b := newBalancer(t, db)

	city := f.CreateCity(ctx, "Springfield", nil)
	nbhd := f.CreateNeighborhood(ctx, "Downtown", city.ID)
	leaving := f.CreateUser(ctx, "Lena Leaving", "lena@test.com", "supervisor")
	light := f.CreateUser(ctx, "Luis Light", "luis@test.com", "supervisor")
	heavy := f.CreateUser(ctx, "Hana Heavy", "hana@test.com", "supervisor")

	f.AssignSupervisor(ctx, leaving.ID, nbhd.ID)
	f.AssignSupervisor(ctx, light.ID, nbhd.ID)
	f.AssignSupervisor(ctx, heavy.ID, nbhd.ID)

	// leaving holds 4, light holds 1, heavy holds 3.
	for i := 0; i < 4; i++ {
		f.CreateWorker(ctx, "Leaving Worker", nbhd.ID, city.ID, &leaving.ID)
	}
	f.CreateWorker(ctx, "Light Worker", nbhd.ID, city.ID, &light.ID)
	for i := 0; i < 3; i++ {
		f.CreateWorker(ctx, "Heavy Worker", nbhd.ID, city.ID, &heavy.ID)
	}

	res, err := b.Unassign(ctx, testActor(), leaving.ID, nbhd.ID)
	if err != nil {
		t.Fatalf("Unassign failed: %v", err)
	}
	if res.ReassignedCount != 4 {
		t.Errorf("reassigned count: got %d, want 4", res.ReassignedCount)
	}
	// Greedy least-loaded from loads {light:1, heavy:3}: light takes two
	// (1→2→3), the tie at 3 breaks toward the earlier assignment so light
	// takes a third (→4), then heavy at 3 takes the last. Final loads are
	// 4 and 4.
	if got := res.PerSupervisor[light.ID]; got != 3 {
		t.Errorf("light supervisor received %d workers, want 3", got)
	}
	if got := res.PerSupervisor[heavy.ID]; got != 1 {
		t.Errorf("heavy supervisor received %d workers, want 1", got)
	}
	checkInvariant(t, ctx, db, nbhd.ID)
}

func TestUnassign_BalancesEvenly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)
	b := newBalancer(t, db)

	city := f.CreateCity(ctx, "Springfield", nil)
	nbhd := f.CreateNeighborhood(ctx, "Downtown", city.ID)
	leaving := f.CreateUser(ctx, "Lena Leaving", "lena@test.com", "supervisor")
	a := f.CreateUser(ctx, "Supervisor A", "a@test.com", "supervisor")
	c := f.CreateUser(ctx, "Supervisor B", "b@test.com", "supervisor")

	f.AssignSupervisor(ctx, leaving.ID, nbhd.ID)
	f.AssignSupervisor(ctx, a.ID, nbhd.ID)
	f.AssignSupervisor(ctx, c.ID, nbhd.ID)

	// Equal starting loads; six workers to spread should split 3/3.
	for i := 0; i < 6; i++ {
		f.CreateWorker(ctx, "Leaving Worker", nbhd.ID, city.ID, &leaving.ID)
	}
	f.CreateWorker(ctx, "A Worker", nbhd.ID, city.ID, &a.ID)
	f.CreateWorker(ctx, "B Worker", nbhd.ID, city.ID, &c.ID)

	res, err := b.Unassign(ctx, testActor(), leaving.ID, nbhd.ID)
	if err != nil {
		t.Fatalf("Unassign failed: %v", err)
	}
	if res.PerSupervisor[a.ID] != 3 || res.PerSupervisor[c.ID] != 3 {
		t.Errorf("uneven spread: %v, want 3 each", res.PerSupervisor)
	}
	checkInvariant(t, ctx, db, nbhd.ID)
}

func TestUnassign_NotAssigned(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)
	b := newBalancer(t, db)

	city := f.CreateCity(ctx, "Springfield", nil)
	nbhd := f.CreateNeighborhood(ctx, "Downtown", city.ID)
	sup := f.CreateUser(ctx, "Sam Supervisor", "sam@test.com", "supervisor")

	_, err := b.Unassign(ctx, testActor(), sup.ID, nbhd.ID)
	if !errors.Is(err, assignment.ErrNotAssigned) {
		t.Errorf("got %v, want ErrNotAssigned", err)
	}
}

func TestRemovalImpact(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)
	b := newBalancer(t, db)

	city := f.CreateCity(ctx, "Springfield", nil)
	nbhd := f.CreateNeighborhood(ctx, "Downtown", city.ID)
	sup := f.CreateSupervisor(ctx, "Sam Supervisor", "sam@test.com", nbhd.ID)
	other := f.CreateSupervisor(ctx, "Omar Other", "omar@test.com", nbhd.ID)
	_ = other

	f.CreateWorker(ctx, "Worker One", nbhd.ID, city.ID, &sup.ID)
	f.CreateWorker(ctx, "Worker Two", nbhd.ID, city.ID, &sup.ID)
	f.CreateInactiveWorker(ctx, "Worker Idle", nbhd.ID, city.ID, &sup.ID)

	impact, err := b.RemovalImpact(ctx, sup.ID, nbhd.ID)
	if err != nil {
		t.Fatalf("RemovalImpact failed: %v", err)
	}
	if impact.AffectedWorkers != 2 {
		t.Errorf("affected workers: got %d, want 2 (inactive excluded)", impact.AffectedWorkers)
	}
	if impact.RemainingSupervisors != 1 {
		t.Errorf("remaining supervisors: got %d, want 1", impact.RemainingSupervisors)
	}

	// Preview must not change anything.
	n, err := db.Collection("supervisor_assignments").CountDocuments(ctx, bson.M{"neighborhood_id": nbhd.ID})
	if err != nil {
		t.Fatalf("count assignments: %v", err)
	}
	if n != 2 {
		t.Errorf("assignments after preview: got %d, want 2", n)
	}
}

func TestFindAndRepairOrphans(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	f := testutil.NewFixtures(t, db)
	b := newBalancer(t, db)

	city := f.CreateCity(ctx, "Springfield", nil)
	supervised := f.CreateNeighborhood(ctx, "Downtown", city.ID)
	pool := f.CreateNeighborhood(ctx, "Hillcrest", city.ID)
	sup := f.CreateSupervisor(ctx, "Sam Supervisor", "sam@test.com", supervised.ID)

	// Violates the invariant: unassigned in a supervised neighborhood.
	orphan := f.CreateWorker(ctx, "Orphaned Worker", supervised.ID, city.ID, nil)
	// Fine: unassigned in an unsupervised neighborhood is the pool.
	f.CreateWorker(ctx, "Pool Worker", pool.ID, city.ID, nil)

	found, err := b.FindOrphanWorkers(ctx, primitive.NilObjectID)
	if err != nil {
		t.Fatalf("FindOrphanWorkers failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != orphan.ID {
		t.Fatalf("orphans: got %d, want exactly the orphaned worker", len(found))
	}

	repaired, err := b.RepairOrphans(ctx, testActor(), primitive.NilObjectID)
	if err != nil {
		t.Fatalf("RepairOrphans failed: %v", err)
	}
	if repaired != 1 {
		t.Errorf("repaired: got %d, want 1", repaired)
	}
	if w := loadWorker(t, ctx, db, orphan.ID); w.SupervisorID == nil || *w.SupervisorID != sup.ID {
		t.Errorf("orphan not adopted by the neighborhood's supervisor")
	}
	checkInvariant(t, ctx, db, supervised.ID)
	checkInvariant(t, ctx, db, pool.ID)

	// A clean tree repairs nothing.
	repaired, err = b.RepairOrphans(ctx, testActor(), primitive.NilObjectID)
	if err != nil {
		t.Fatalf("second RepairOrphans failed: %v", err)
	}
	if repaired != 0 {
		t.Errorf("second repair: got %d, want 0", repaired)
	}
}
