// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureUsers(ctx, db); err != nil {
		problems = append(problems, "users: "+err.Error())
	}
	if err := ensureAreas(ctx, db); err != nil {
		problems = append(problems, "areas: "+err.Error())
	}
	if err := ensureCities(ctx, db); err != nil {
		problems = append(problems, "cities: "+err.Error())
	}
	if err := ensureNeighborhoods(ctx, db); err != nil {
		problems = append(problems, "neighborhoods: "+err.Error())
	}
	if err := ensureWorkers(ctx, db); err != nil {
		problems = append(problems, "workers: "+err.Error())
	}
	if err := ensureSupervisorAssignments(ctx, db); err != nil {
		problems = append(problems, "supervisor_assignments: "+err.Error())
	}
	if err := ensureAttendance(ctx, db); err != nil {
		problems = append(problems, "attendance_records: "+err.Error())
	}
	if err := ensureAuditEvents(ctx, db); err != nil {
		problems = append(problems, "audit_events: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func sameBoolPtr(a, b *bool) bool {
	av := false
	bv := false
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 { // E11000 duplicate key error index
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// Mongo/DocDB sometimes returns IndexOptionsConflict when an index with the
// same keys already exists under a different name (or options differ).
func isOptionsConflictErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "IndexOptionsConflict")
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		var desiredName string
		var desiredUnique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				desiredName = *m.Options.Name
			}
			if m.Options.Unique != nil {
				desiredUnique = m.Options.Unique
			}
		}
		desiredSig := keySig(m.Keys.(bson.D))

		start := time.Now()

		// Load existing indexes and match on key signature.
		existing := map[string]existingIndex{}
		cur, err := coll.Indexes().List(ctx)
		if err == nil {
			for cur.Next(ctx) {
				var idx existingIndex
				if err := cur.Decode(&idx); err != nil {
					zap.L().Warn("failed to decode existing index",
						zap.String("collection", coll.Name()),
						zap.Error(err))
					continue
				}
				existing[keySig(idx.Key)] = idx
			}
			cur.Close(ctx)
		}

		if ex, ok := existing[desiredSig]; ok {
			if sameBoolPtr(desiredUnique, ex.Unique) {
				// Same keys and options: if the name differs, drop and
				// recreate so future reconciles match by name too.
				if desiredName != "" && ex.Name != desiredName && ex.Name != "_id_" {
					if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
						errs = append(errs, fmt.Sprintf("%s(%s): rename drop failed: %v", coll.Name(), desiredName, err))
						continue
					}
					if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
						errs = append(errs, fmt.Sprintf("%s(%s): rename create failed: %v", coll.Name(), desiredName, err))
						continue
					}
					zap.L().Info("index renamed",
						zap.String("collection", coll.Name()),
						zap.String("from", ex.Name),
						zap.String("to", desiredName))
					continue
				}
				// Already exists as desired.
				continue
			}

			// Options mismatch (e.g., upgrading to unique). Drop & recreate.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), desiredName, err))
				continue
			}
			if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
				if isDuplicateKeyErr(err) && desiredUnique != nil && *desiredUnique {
					errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), desiredName))
				} else {
					errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), desiredName, err))
				}
				continue
			}
			zap.L().Info("index dropped and recreated",
				zap.String("collection", coll.Name()),
				zap.String("name", desiredName),
				zap.String("keys", desiredSig),
				zap.String("took", time.Since(start).String()))
			continue
		}

		// No existing index with the same keys: create it.
		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isOptionsConflictErr(err) {
				// A same-key index slipped in between List and CreateOne;
				// treat as ensured and let the next startup reconcile names.
				zap.L().Warn("index options conflict, deferring reconcile",
					zap.String("collection", coll.Name()),
					zap.String("name", desiredName),
					zap.Error(err))
				continue
			}
			if isDuplicateKeyErr(err) && desiredUnique != nil && *desiredUnique {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), desiredName))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), desiredName, err))
			}
			continue
		}
		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", desiredName),
			zap.String("keys", desiredSig),
			zap.Bool("unique", desiredUnique != nil && *desiredUnique),
			zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                             */
/* -------------------------------------------------------------------------- */

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("users")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Login IDs are unique case-insensitively, hence the folded field.
		{
			Keys:    bson.D{{Key: "login_id_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_loginidci"),
		},
		// Role screens list users by role + status sorted by folded name.
		{
			Keys: bson.D{
				{Key: "role", Value: 1},
				{Key: "status", Value: 1},
				{Key: "full_name_ci", Value: 1},
				{Key: "_id", Value: 1},
			},
			Options: options.Index().SetName("idx_users_role_status_fullnameci_id"),
		},
		// Area-manager and coordinator scope lookups.
		{
			Keys:    bson.D{{Key: "area_ids", Value: 1}},
			Options: options.Index().SetName("idx_users_area_ids"),
		},
		{
			Keys:    bson.D{{Key: "city_ids", Value: 1}},
			Options: options.Index().SetName("idx_users_city_ids"),
		},
		// Worker account back-reference.
		{
			Keys:    bson.D{{Key: "worker_id", Value: 1}},
			Options: options.Index().SetName("idx_users_worker"),
		},
	})
}

func ensureAreas(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("areas")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_areas_nameci"),
		},
		{
			Keys:    bson.D{{Key: "manager_id", Value: 1}},
			Options: options.Index().SetName("idx_areas_manager"),
		},
	})
}

func ensureCities(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("cities")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_cities_nameci"),
		},
		{
			Keys:    bson.D{{Key: "area_id", Value: 1}},
			Options: options.Index().SetName("idx_cities_area"),
		},
	})
}

func ensureNeighborhoods(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("neighborhoods")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Neighborhood names only need to be unique within their city.
		{
			Keys: bson.D{
				{Key: "city_id", Value: 1},
				{Key: "name_ci", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_neighborhoods_city_nameci"),
		},
	})
}

func ensureWorkers(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("workers")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Roster screens: workers of a neighborhood filtered by status.
		{
			Keys: bson.D{
				{Key: "neighborhood_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "full_name_ci", Value: 1},
				{Key: "_id", Value: 1},
			},
			Options: options.Index().SetName("idx_workers_nbhd_status_fullnameci_id"),
		},
		// Load counting and cascade scans are keyed on the supervisor.
		{
			Keys: bson.D{
				{Key: "supervisor_id", Value: 1},
				{Key: "status", Value: 1},
			},
			Options: options.Index().SetName("idx_workers_supervisor_status"),
		},
		{
			Keys:    bson.D{{Key: "city_id", Value: 1}},
			Options: options.Index().SetName("idx_workers_city"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("idx_workers_user"),
		},
	})
}

func ensureSupervisorAssignments(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("supervisor_assignments")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// One row per (supervisor, neighborhood) pair.
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "neighborhood_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_supassign_user_nbhd"),
		},
		// Balancer reads assignments by neighborhood in creation order.
		{
			Keys: bson.D{
				{Key: "neighborhood_id", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("idx_supassign_nbhd_created"),
		},
	})
}

func ensureAttendance(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("attendance_records")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// The unique pair is the sole guard against double check-ins.
		{
			Keys: bson.D{
				{Key: "worker_id", Value: 1},
				{Key: "date", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_attendance_worker_date"),
		},
		// Daily rollups per neighborhood, newest day first.
		{
			Keys: bson.D{
				{Key: "neighborhood_id", Value: 1},
				{Key: "date", Value: -1},
			},
			Options: options.Index().SetName("idx_attendance_nbhd_date"),
		},
	})
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("audit_events")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_timestamp"),
		},
		{
			Keys: bson.D{
				{Key: "actor_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_actor_ts"),
		},
		{
			Keys: bson.D{
				{Key: "entity_type", Value: 1},
				{Key: "entity_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_entity_ts"),
		},
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_category_ts"),
		},
		{
			Keys:    bson.D{{Key: "batch_id", Value: 1}},
			Options: options.Index().SetName("idx_audit_batch"),
		},
	})
}
