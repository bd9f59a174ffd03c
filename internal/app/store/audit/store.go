// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryAuth       = "auth"
	CategoryAdmin      = "admin"
	CategoryAttendance = "attendance"
	CategoryAssignment = "assignment"
)

// Auth event types
const (
	EventLoginSuccess             = "login_success"
	EventLoginFailedUserNotFound  = "login_failed_user_not_found"
	EventLoginFailedWrongPassword = "login_failed_wrong_password"
	EventLoginFailedUserDisabled  = "login_failed_user_disabled"
	EventLoginRateLimited         = "login_rate_limited"
	EventLogout                   = "logout"
)

// Admin event types (org tree and accounts)
const (
	EventUserCreated         = "user_created"
	EventUserUpdated         = "user_updated"
	EventUserDisabled        = "user_disabled"
	EventAreaCreated         = "area_created"
	EventAreaUpdated         = "area_updated"
	EventAreaDeleted         = "area_deleted"
	EventCityCreated         = "city_created"
	EventCityUpdated         = "city_updated"
	EventCityDeleted         = "city_deleted"
	EventNeighborhoodCreated = "neighborhood_created"
	EventNeighborhoodUpdated = "neighborhood_updated"
	EventNeighborhoodDeleted = "neighborhood_deleted"
	EventWorkerCreated       = "worker_created"
	EventWorkerUpdated       = "worker_updated"
	EventWorkerDeleted       = "worker_deleted"
)

// Assignment event types (supervisor junction + cascades)
const (
	EventSupervisorAssigned   = "supervisor_assigned"
	EventSupervisorUnassigned = "supervisor_unassigned"
	EventWorkersAdopted       = "workers_adopted"     // 0→1 supervisor bulk adoption
	EventWorkersReassigned    = "workers_reassigned"  // cascade to remaining supervisors
	EventWorkersReturned      = "workers_returned"    // last supervisor removed, back to pool
	EventOrphanRepair         = "orphan_repair"       // integrity tool
)

// Attendance event types
const (
	EventCheckIn       = "check_in"
	EventCheckInEdited = "check_in_edited"
	EventCheckInUndone = "check_in_undone"
)

// Event is one append-only audit row. Events are inserted and queried,
// never updated or deleted; no mutating operation exists on this store
// besides Log.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Timestamp time.Time          `bson:"timestamp"`

	// Event classification
	Category  string `bson:"category"`
	EventType string `bson:"event_type"`

	// Who performed the action and, when relevant, which user it affected.
	ActorID *primitive.ObjectID `bson:"actor_id,omitempty"`
	UserID  *primitive.ObjectID `bson:"user_id,omitempty"`

	// What was touched. Before is nil for pure creates; After is nil for
	// deletes. Both are snapshots of the document's relevant fields.
	EntityType string              `bson:"entity_type,omitempty"`
	EntityID   *primitive.ObjectID `bson:"entity_id,omitempty"`
	Before     bson.M              `bson:"before,omitempty"`
	After      bson.M              `bson:"after,omitempty"`

	// Tree context for scoped audit queries.
	CityID         *primitive.ObjectID `bson:"city_id,omitempty"`
	NeighborhoodID *primitive.ObjectID `bson:"neighborhood_id,omitempty"`

	// Cascade batches: one summary event per balancer run, not one per
	// worker. BatchID groups retries of the same logical event.
	BatchID     string `bson:"batch_id,omitempty"`
	WorkerCount int    `bson:"worker_count,omitempty"`

	// Request context
	IP        string `bson:"ip,omitempty"`
	UserAgent string `bson:"user_agent,omitempty"`

	// Outcome
	Success       bool   `bson:"success"`
	FailureReason string `bson:"failure_reason,omitempty"`

	// Additional details (varies by event type)
	Details map[string]string `bson:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	CityID          *primitive.ObjectID
	CityIDs         []primitive.ObjectID // scoped queries for area managers / coordinators
	NeighborhoodIDs []primitive.ObjectID
	ActorID         *primitive.ObjectID
	EntityID        *primitive.ObjectID
	Category        string
	EventType       string
	StartTime       *time.Time
	EndTime         *time.Time
	Limit           int64
	Offset          int64
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// EnsureIndexes creates the indexes the audit queries depend on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{
			{Key: "city_id", Value: 1},
			{Key: "timestamp", Value: -1},
		}},
		{Keys: bson.D{
			{Key: "actor_id", Value: 1},
			{Key: "timestamp", Value: -1},
		}},
		{Keys: bson.D{
			{Key: "entity_id", Value: 1},
			{Key: "timestamp", Value: -1},
		}},
		{Keys: bson.D{
			{Key: "category", Value: 1},
			{Key: "event_type", Value: 1},
			{Key: "timestamp", Value: -1},
		}},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

func (f QueryFilter) query() bson.M {
	query := bson.M{}

	if len(f.CityIDs) > 0 {
		query["city_id"] = bson.M{"$in": f.CityIDs}
	} else if f.CityID != nil {
		query["city_id"] = f.CityID
	}
	if len(f.NeighborhoodIDs) > 0 {
		query["neighborhood_id"] = bson.M{"$in": f.NeighborhoodIDs}
	}
	if f.ActorID != nil {
		query["actor_id"] = f.ActorID
	}
	if f.EntityID != nil {
		query["entity_id"] = f.EntityID
	}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if f.EventType != "" {
		query["event_type"] = f.EventType
	}

	if f.StartTime != nil || f.EndTime != nil {
		timeQuery := bson.M{}
		if f.StartTime != nil {
			timeQuery["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			timeQuery["$lte"] = *f.EndTime
		}
		query["timestamp"] = timeQuery
	}
	return query
}

// Query retrieves audit events matching the given filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := s.c.Find(ctx, filter.query(), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByFilter returns the count of events matching the filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filter.query())
}

// GetByActor retrieves recent audit events performed by a specific user.
func (s *Store) GetByActor(ctx context.Context, actorID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{ActorID: &actorID, Limit: limit})
}

// GetByEntity retrieves recent audit events touching a specific entity.
func (s *Store) GetByEntity(ctx context.Context, entityID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{EntityID: &entityID, Limit: limit})
}

// GetRecent retrieves the most recent audit events.
func (s *Store) GetRecent(ctx context.Context, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{Limit: limit})
}
