// internal/app/system/assignment/balancer.go

// Package assignment maintains the worker↔supervisor invariant for every
// neighborhood:
//
//   - zero supervisors assigned  → every worker's supervisor is unset
//     (the "pool" state)
//   - one or more supervisors    → every active worker points at a
//     supervisor currently assigned to that same neighborhood
//
// The supervisor_assignments collection is the single source of truth for
// which supervisors a neighborhood has. The balancer owns the two events
// that change it, Assign and Unassign, plus the adoption/return/reassign
// cascades each triggers. Each event runs inside one transaction and is
// serialized per neighborhood by a keyed mutex, so the counts it reads
// stay valid for the duration of the event.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	"github.com/dalemusser/fieldhub/internal/app/store/neighborhoods"
	"github.com/dalemusser/fieldhub/internal/app/store/supervisorassign"
	"github.com/dalemusser/fieldhub/internal/app/store/workers"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
	"github.com/dalemusser/fieldhub/internal/app/system/neighborhoodlock"
	"github.com/dalemusser/fieldhub/internal/app/system/txn"
	"github.com/dalemusser/fieldhub/internal/domain/models"
)

// ErrNotAssigned is returned by Unassign when the supervisor has no
// assignment row for the neighborhood.
var ErrNotAssigned = errors.New("supervisor is not assigned to this neighborhood")

// ErrAlreadyAssigned mirrors the junction store's duplicate error so
// callers only need this package.
var ErrAlreadyAssigned = supervisorassign.ErrAlreadyAssigned

// Balancer coordinates assignment events. One instance per process; the
// lock registry inside it is what serializes events per neighborhood.
type Balancer struct {
	db     *mongo.Database
	log    *zap.Logger
	audit  *auditlog.Logger
	locks  *neighborhoodlock.Registry
	assign *supervisorassign.Store
	work   *workerstore.Store
	nbhd   *neighborhoodstore.Store
}

// New builds a Balancer on the given database.
func New(db *mongo.Database, log *zap.Logger, auditLog *auditlog.Logger) *Balancer {
	return &Balancer{
		db:     db,
		log:    log,
		audit:  auditLog,
		locks:  neighborhoodlock.NewRegistry(),
		assign: supervisorassign.New(db),
		work:   workerstore.New(db),
		nbhd:   neighborhoodstore.New(db),
	}
}

// LockNeighborhood takes the balancer's per-neighborhood mutex and returns
// the unlock func. Callers that validate a worker's supervisor reference
// and then write must hold this across both steps, otherwise an Unassign
// can commit between the check and the insert.
func (b *Balancer) LockNeighborhood(neighborhoodID primitive.ObjectID) func() {
	return b.locks.Lock(neighborhoodID)
}

// cityOf resolves a neighborhood's city for audit scoping.
func (b *Balancer) cityOf(ctx context.Context, neighborhoodID primitive.ObjectID) (primitive.ObjectID, error) {
	n, err := b.nbhd.GetByID(ctx, neighborhoodID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("resolve neighborhood city: %w", err)
	}
	return n.CityID, nil
}

// Actor identifies who triggered a balancer event, for audit rows.
type Actor struct {
	UserID primitive.ObjectID
	Name   string
}

// Validation is the structured answer to "may this worker carry this
// supervisor reference." An invalid assignment carries a reason safe to
// show the client.
type Validation struct {
	Valid  bool
	Reason string
}

// ValidateAssignment checks a proposed worker→supervisor reference against
// the neighborhood's current supervisor roster. Rules, in order:
//
//  1. neighborhood has zero supervisors → the reference must be nil
//  2. neighborhood has supervisors → the reference must be set
//  3. the referenced supervisor must be assigned to this neighborhood
//
// Workers features call this before creating or editing a worker.
func (b *Balancer) ValidateAssignment(ctx context.Context, neighborhoodID primitive.ObjectID, supervisorID *primitive.ObjectID) (Validation, error) {
	count, err := b.assign.CountByNeighborhood(ctx, neighborhoodID)
	if err != nil {
		return Validation{}, fmt.Errorf("count supervisors: %w", err)
	}

	if count == 0 {
		if supervisorID != nil {
			return Validation{Reason: "this neighborhood has no supervisors; the worker must stay unassigned"}, nil
		}
		return Validation{Valid: true}, nil
	}

	if supervisorID == nil {
		return Validation{Reason: "this neighborhood has supervisors; the worker must be assigned to one"}, nil
	}
	ok, err := b.assign.Exists(ctx, *supervisorID, neighborhoodID)
	if err != nil {
		return Validation{}, fmt.Errorf("check supervisor assignment: %w", err)
	}
	if !ok {
		return Validation{Reason: "the chosen supervisor is not assigned to this neighborhood"}, nil
	}
	return Validation{Valid: true}, nil
}

// AssignResult reports what an Assign call did beyond creating the
// junction row. AdoptedCount is non-zero only on the 0→1 transition.
type AssignResult struct {
	AdoptedCount int
	BatchID      string
}

// Assign gives a supervisor a neighborhood. On the neighborhood's 0→1
// supervisor transition every pooled active worker is adopted by the new
// supervisor in bulk, recorded as one batch audit entry rather than one
// per worker.
func (b *Balancer) Assign(ctx context.Context, actor Actor, supervisorID, neighborhoodID primitive.ObjectID) (AssignResult, error) {
	unlock := b.locks.Lock(neighborhoodID)
	defer unlock()

	cityID, err := b.cityOf(ctx, neighborhoodID)
	if err != nil {
		return AssignResult{}, err
	}

	var result AssignResult
	err = txn.Run(ctx, b.db, b.log, func(ctx context.Context) error {
		result = AssignResult{}

		before, err := b.assign.CountByNeighborhood(ctx, neighborhoodID)
		if err != nil {
			return fmt.Errorf("count supervisors: %w", err)
		}

		if _, err := b.assign.Create(ctx, models.SupervisorAssignment{
			UserID:         supervisorID,
			NeighborhoodID: neighborhoodID,
			CreatedByID:    actor.UserID,
			CreatedByName:  actor.Name,
		}); err != nil {
			return err
		}
		if err := b.audit.SupervisorAssigned(ctx, actor.UserID, supervisorID, neighborhoodID, cityID); err != nil {
			return fmt.Errorf("audit assignment: %w", err)
		}

		if before > 0 {
			return nil
		}

		// First supervisor: adopt the pool.
		orphans, err := b.work.OrphansInNeighborhood(ctx, neighborhoodID)
		if err != nil {
			return fmt.Errorf("list pooled workers: %w", err)
		}
		if len(orphans) == 0 {
			return nil
		}
		ids := workerIDs(orphans)
		if _, err := b.work.BulkSetSupervisor(ctx, ids, &supervisorID); err != nil {
			return fmt.Errorf("adopt pooled workers: %w", err)
		}

		batchID := uuid.NewString()
		if err := b.audit.CascadeSummary(ctx, audit.EventWorkersAdopted, actor.UserID, neighborhoodID, cityID, batchID, len(ids), map[string]string{
			"supervisor_id": supervisorID.Hex(),
		}); err != nil {
			return fmt.Errorf("audit adoption: %w", err)
		}
		result.AdoptedCount = len(ids)
		result.BatchID = batchID
		return nil
	})
	if err != nil {
		return AssignResult{}, err
	}

	b.log.Info("supervisor assigned",
		zap.String("supervisor_id", supervisorID.Hex()),
		zap.String("neighborhood_id", neighborhoodID.Hex()),
		zap.Int("adopted", result.AdoptedCount))
	return result, nil
}

// UnassignResult reports the cascade an Unassign call performed. Exactly
// one of ReturnedCount (last supervisor removed, workers back to the pool)
// or ReassignedCount (workers spread over the remaining supervisors) is
// non-zero when the supervisor held workers.
type UnassignResult struct {
	ReturnedCount   int
	ReassignedCount int
	// PerSupervisor holds how many workers each remaining supervisor
	// received during reassignment.
	PerSupervisor map[primitive.ObjectID]int
	BatchID       string
}

// Unassign takes a neighborhood away from a supervisor. Removal never
// blocks on the supervisor's active workers; they cascade automatically:
//
//   - no supervisors remain → workers return to the pool (unset reference)
//   - supervisors remain    → workers are spread greedily, each to the
//     least-loaded remaining supervisor at that moment
//
// Worker counts are read once at the start of the cascade and maintained
// in memory while the batch is assigned. Ties break in favor of the
// earliest-assigned supervisor, so the outcome is deterministic.
func (b *Balancer) Unassign(ctx context.Context, actor Actor, supervisorID, neighborhoodID primitive.ObjectID) (UnassignResult, error) {
	unlock := b.locks.Lock(neighborhoodID)
	defer unlock()

	cityID, err := b.cityOf(ctx, neighborhoodID)
	if err != nil {
		return UnassignResult{}, err
	}

	var result UnassignResult
	err = txn.Run(ctx, b.db, b.log, func(ctx context.Context) error {
		result = UnassignResult{}

		deleted, err := b.assign.Delete(ctx, supervisorID, neighborhoodID)
		if err != nil {
			return fmt.Errorf("delete assignment: %w", err)
		}
		if deleted == 0 {
			return ErrNotAssigned
		}
		if err := b.audit.SupervisorUnassigned(ctx, actor.UserID, supervisorID, neighborhoodID, cityID); err != nil {
			return fmt.Errorf("audit unassignment: %w", err)
		}

		affected, err := b.work.ActiveBySupervisor(ctx, neighborhoodID, supervisorID)
		if err != nil {
			return fmt.Errorf("list affected workers: %w", err)
		}
		if len(affected) == 0 {
			return nil
		}

		remaining, err := b.assign.ListByNeighborhood(ctx, neighborhoodID)
		if err != nil {
			return fmt.Errorf("list remaining supervisors: %w", err)
		}

		batchID := uuid.NewString()
		if len(remaining) == 0 {
			if _, err := b.work.BulkSetSupervisor(ctx, workerIDs(affected), nil); err != nil {
				return fmt.Errorf("return workers to pool: %w", err)
			}
			if err := b.audit.CascadeSummary(ctx, audit.EventWorkersReturned, actor.UserID, neighborhoodID, cityID, batchID, len(affected), map[string]string{
				"removed_supervisor_id": supervisorID.Hex(),
			}); err != nil {
				return fmt.Errorf("audit pool return: %w", err)
			}
			result.ReturnedCount = len(affected)
			result.BatchID = batchID
			return nil
		}

		perSupervisor, err := b.spreadLeastLoaded(ctx, neighborhoodID, affected, remaining)
		if err != nil {
			return err
		}
		details := map[string]string{"removed_supervisor_id": supervisorID.Hex()}
		for supID, n := range perSupervisor {
			details["to_"+supID.Hex()] = strconv.Itoa(n)
		}
		if err := b.audit.CascadeSummary(ctx, audit.EventWorkersReassigned, actor.UserID, neighborhoodID, cityID, batchID, len(affected), details); err != nil {
			return fmt.Errorf("audit reassignment: %w", err)
		}
		result.ReassignedCount = len(affected)
		result.PerSupervisor = perSupervisor
		result.BatchID = batchID
		return nil
	})
	if err != nil {
		return UnassignResult{}, err
	}

	b.log.Info("supervisor unassigned",
		zap.String("supervisor_id", supervisorID.Hex()),
		zap.String("neighborhood_id", neighborhoodID.Hex()),
		zap.Int("returned", result.ReturnedCount),
		zap.Int("reassigned", result.ReassignedCount))
	return result, nil
}

// RemoveSupervisor unassigns a supervisor from every neighborhood they
// hold, cascading each neighborhood's workers exactly as Unassign does.
// Used when a supervisor account changes role. Returns the number of
// neighborhoods released.
func (b *Balancer) RemoveSupervisor(ctx context.Context, actor Actor, supervisorID primitive.ObjectID) (int, error) {
	ids, err := b.assign.NeighborhoodIDsByUser(ctx, supervisorID)
	if err != nil {
		return 0, fmt.Errorf("list supervisor neighborhoods: %w", err)
	}
	removed := 0
	for _, nid := range ids {
		if _, err := b.Unassign(ctx, actor, supervisorID, nid); err != nil {
			if errors.Is(err, ErrNotAssigned) {
				continue
			}
			return removed, fmt.Errorf("unassign neighborhood %s: %w", nid.Hex(), err)
		}
		removed++
	}
	return removed, nil
}

// spreadLeastLoaded assigns each affected worker to whichever remaining
// supervisor currently holds the fewest active workers, updating the
// in-memory counts as it goes. remaining is in assignment-creation order,
// which is the tie-break order.
func (b *Balancer) spreadLeastLoaded(ctx context.Context, neighborhoodID primitive.ObjectID, affected []models.Worker, remaining []models.SupervisorAssignment) (map[primitive.ObjectID]int, error) {
	counts, err := b.work.CountActiveBySupervisor(ctx, neighborhoodID)
	if err != nil {
		return nil, fmt.Errorf("count worker loads: %w", err)
	}

	load := make(map[primitive.ObjectID]int, len(remaining))
	for _, a := range remaining {
		load[a.UserID] = counts[a.UserID]
	}

	// Batch the updates per receiving supervisor.
	buckets := make(map[primitive.ObjectID][]primitive.ObjectID)
	received := make(map[primitive.ObjectID]int, len(remaining))
	for _, w := range affected {
		target := remaining[0].UserID
		for _, a := range remaining[1:] {
			if load[a.UserID] < load[target] {
				target = a.UserID
			}
		}
		buckets[target] = append(buckets[target], w.ID)
		load[target]++
		received[target]++
	}

	for supID, ids := range buckets {
		supID := supID
		if _, err := b.work.BulkSetSupervisor(ctx, ids, &supID); err != nil {
			return nil, fmt.Errorf("reassign workers to %s: %w", supID.Hex(), err)
		}
	}
	return received, nil
}

// Impact previews what removing a supervisor from a neighborhood would
// cascade to, for confirmation screens. It takes no locks and changes
// nothing.
type Impact struct {
	AffectedWorkers      int
	RemainingSupervisors int
}

// RemovalImpact reports how many active workers would be re-homed if the
// supervisor were unassigned, and how many supervisors would remain.
func (b *Balancer) RemovalImpact(ctx context.Context, supervisorID, neighborhoodID primitive.ObjectID) (Impact, error) {
	affected, err := b.work.ActiveBySupervisor(ctx, neighborhoodID, supervisorID)
	if err != nil {
		return Impact{}, fmt.Errorf("list affected workers: %w", err)
	}
	count, err := b.assign.CountByNeighborhood(ctx, neighborhoodID)
	if err != nil {
		return Impact{}, fmt.Errorf("count supervisors: %w", err)
	}
	remaining := int(count) - 1
	if remaining < 0 {
		remaining = 0
	}
	return Impact{AffectedWorkers: len(affected), RemainingSupervisors: remaining}, nil
}

// FindOrphanWorkers returns active workers that violate the invariant:
// unassigned workers inside neighborhoods that have supervisors. Pass the
// nil ObjectID to scan every supervised neighborhood.
func (b *Balancer) FindOrphanWorkers(ctx context.Context, neighborhoodID primitive.ObjectID) ([]models.Worker, error) {
	var nbhdIDs []primitive.ObjectID
	if !neighborhoodID.IsZero() {
		count, err := b.assign.CountByNeighborhood(ctx, neighborhoodID)
		if err != nil {
			return nil, fmt.Errorf("count supervisors: %w", err)
		}
		if count == 0 {
			// Unassigned workers here are the pool, not orphans.
			return nil, nil
		}
		nbhdIDs = []primitive.ObjectID{neighborhoodID}
	} else {
		ids, err := b.assign.SupervisedNeighborhoodIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list supervised neighborhoods: %w", err)
		}
		nbhdIDs = ids
	}

	var orphans []models.Worker
	for _, id := range nbhdIDs {
		found, err := b.work.OrphansInNeighborhood(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("scan neighborhood %s: %w", id.Hex(), err)
		}
		orphans = append(orphans, found...)
	}
	return orphans, nil
}

// RepairOrphans adopts every orphan found by FindOrphanWorkers into the
// least-loaded supervisor of its neighborhood. Used by the integrity
// endpoint and the CLI. Returns the number of workers repaired.
func (b *Balancer) RepairOrphans(ctx context.Context, actor Actor, neighborhoodID primitive.ObjectID) (int, error) {
	orphans, err := b.FindOrphanWorkers(ctx, neighborhoodID)
	if err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	byNbhd := make(map[primitive.ObjectID][]models.Worker)
	for _, w := range orphans {
		byNbhd[w.NeighborhoodID] = append(byNbhd[w.NeighborhoodID], w)
	}

	repaired := 0
	for nbhd, group := range byNbhd {
		nbhd, group := nbhd, group
		groupRepaired := 0
		err := func() error {
			unlock := b.locks.Lock(nbhd)
			defer unlock()

			return txn.Run(ctx, b.db, b.log, func(ctx context.Context) error {
				groupRepaired = 0
				supervisors, err := b.assign.ListByNeighborhood(ctx, nbhd)
				if err != nil {
					return fmt.Errorf("list supervisors: %w", err)
				}
				if len(supervisors) == 0 {
					// Lost its supervisors since the scan; no longer orphans.
					return nil
				}
				if _, err := b.spreadLeastLoaded(ctx, nbhd, group, supervisors); err != nil {
					return err
				}
				batchID := uuid.NewString()
				// Workers carry the city denormalized, so no extra lookup.
				if err := b.audit.CascadeSummary(ctx, audit.EventOrphanRepair, actor.UserID, nbhd, group[0].CityID, batchID, len(group), nil); err != nil {
					return fmt.Errorf("audit repair: %w", err)
				}
				groupRepaired = len(group)
				return nil
			})
		}()
		if err != nil {
			return repaired, fmt.Errorf("repair neighborhood %s: %w", nbhd.Hex(), err)
		}
		repaired += groupRepaired
	}
	return repaired, nil
}

func workerIDs(ws []models.Worker) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(ws))
	for _, w := range ws {
		ids = append(ids, w.ID)
	}
	return ids
}
