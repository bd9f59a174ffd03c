// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"

	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration. Each category is routed
// independently: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap
// only), or "off".
type Config struct {
	Auth       string
	Admin      string
	Attendance string
	Assignment string
}

// Logger provides convenience methods for recording audit events. It logs
// to MongoDB (via audit.Store) and to structured logs (via zap) per
// category config.
//
// Mutations that must be atomic pass their transaction context so the
// audit insert commits or rolls back with the rest of the writes.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// ClientIP extracts the client IP from the request, preferring
// reverse-proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.EntityID != nil {
		fields = append(fields, zap.String("entity_id", event.EntityID.Hex()))
	}
	if event.CityID != nil {
		fields = append(fields, zap.String("city_id", event.CityID.Hex()))
	}
	if event.NeighborhoodID != nil {
		fields = append(fields, zap.String("neighborhood_id", event.NeighborhoodID.Hex()))
	}
	if event.BatchID != "" {
		fields = append(fields, zap.String("batch_id", event.BatchID), zap.Int("worker_count", event.WorkerCount))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

func (l *Logger) setting(category string) string {
	switch category {
	case audit.CategoryAuth:
		return l.config.Auth
	case audit.CategoryAdmin:
		return l.config.Admin
	case audit.CategoryAttendance:
		return l.config.Attendance
	case audit.CategoryAssignment:
		return l.config.Assignment
	default:
		return "all"
	}
}

// Log records an audit event based on configuration. A nil Logger is a
// no-op so tests can skip audit wiring.
//
// The store write returns an error so transactional callers can roll back
// the whole mutation when the audit insert fails (all-or-nothing).
func (l *Logger) Log(ctx context.Context, event audit.Event) error {
	if l == nil {
		return nil
	}

	setting := l.setting(event.Category)
	if setting == "off" {
		return nil
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if setting == "all" || setting == "db" {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
			return err
		}
	}
	return nil
}

// --- Authentication events ---

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, loginID string) {
	_ = l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   map[string]string{"login_id": loginID},
	})
}

// LoginFailed logs a failed login with the given event type and reason.
func (l *Logger) LoginFailed(ctx context.Context, r *http.Request, eventType, reason, attemptedLoginID string) {
	_ = l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     eventType,
		IP:            ClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: reason,
		Details:       map[string]string{"attempted_login_id": attemptedLoginID},
	})
}

// Logout logs a sign-out.
func (l *Logger) Logout(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	_ = l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		UserID:    &userID,
		IP:        ClientIP(r),
		Success:   true,
	})
}

// --- Admin events (org tree and accounts) ---

// EntityCreated logs the creation of a tree entity. Before is absent for
// pure creates. cityID places the event in a city's audit scope; pass nil
// for entities above the city level (areas, accounts).
func (l *Logger) EntityCreated(ctx context.Context, actorID primitive.ObjectID, eventType, entityType string, entityID primitive.ObjectID, cityID *primitive.ObjectID, after bson.M) error {
	return l.Log(ctx, audit.Event{
		Category:   audit.CategoryAdmin,
		EventType:  eventType,
		ActorID:    &actorID,
		EntityType: entityType,
		EntityID:   &entityID,
		CityID:     cityID,
		After:      after,
		Success:    true,
	})
}

// EntityUpdated logs a mutation with before/after snapshots.
func (l *Logger) EntityUpdated(ctx context.Context, actorID primitive.ObjectID, eventType, entityType string, entityID primitive.ObjectID, cityID *primitive.ObjectID, before, after bson.M) error {
	return l.Log(ctx, audit.Event{
		Category:   audit.CategoryAdmin,
		EventType:  eventType,
		ActorID:    &actorID,
		EntityType: entityType,
		EntityID:   &entityID,
		CityID:     cityID,
		Before:     before,
		After:      after,
		Success:    true,
	})
}

// EntityDeleted logs a deletion; After is absent.
func (l *Logger) EntityDeleted(ctx context.Context, actorID primitive.ObjectID, eventType, entityType string, entityID primitive.ObjectID, cityID *primitive.ObjectID, before bson.M) error {
	return l.Log(ctx, audit.Event{
		Category:   audit.CategoryAdmin,
		EventType:  eventType,
		ActorID:    &actorID,
		EntityType: entityType,
		EntityID:   &entityID,
		CityID:     cityID,
		Before:     before,
		Success:    true,
	})
}

// --- Assignment events (supervisor junction + cascades) ---

// SupervisorAssigned logs a supervisor being attached to a neighborhood.
func (l *Logger) SupervisorAssigned(ctx context.Context, actorID, supervisorID, neighborhoodID, cityID primitive.ObjectID) error {
	return l.Log(ctx, audit.Event{
		Category:       audit.CategoryAssignment,
		EventType:      audit.EventSupervisorAssigned,
		ActorID:        &actorID,
		UserID:         &supervisorID,
		NeighborhoodID: &neighborhoodID,
		CityID:         &cityID,
		Success:        true,
	})
}

// SupervisorUnassigned logs a supervisor being detached from a neighborhood.
func (l *Logger) SupervisorUnassigned(ctx context.Context, actorID, supervisorID, neighborhoodID, cityID primitive.ObjectID) error {
	return l.Log(ctx, audit.Event{
		Category:       audit.CategoryAssignment,
		EventType:      audit.EventSupervisorUnassigned,
		ActorID:        &actorID,
		UserID:         &supervisorID,
		NeighborhoodID: &neighborhoodID,
		CityID:         &cityID,
		Success:        true,
	})
}

// CascadeSummary logs one summary event for a balancer batch (adoption,
// reassignment, or return-to-pool), never one event per worker.
func (l *Logger) CascadeSummary(ctx context.Context, eventType string, actorID, neighborhoodID, cityID primitive.ObjectID, batchID string, workerCount int, details map[string]string) error {
	return l.Log(ctx, audit.Event{
		Category:       audit.CategoryAssignment,
		EventType:      eventType,
		ActorID:        &actorID,
		NeighborhoodID: &neighborhoodID,
		CityID:         &cityID,
		BatchID:        batchID,
		WorkerCount:    workerCount,
		Details:        details,
		Success:        true,
	})
}

// --- Attendance events ---

// CheckIn logs a fresh check-in (no before) or an edit (before holds the
// prior record's fields).
func (l *Logger) CheckIn(ctx context.Context, actorID, workerID, neighborhoodID, cityID primitive.ObjectID, date string, before, after bson.M) error {
	eventType := audit.EventCheckIn
	if before != nil {
		eventType = audit.EventCheckInEdited
	}
	return l.Log(ctx, audit.Event{
		Category:       audit.CategoryAttendance,
		EventType:      eventType,
		ActorID:        &actorID,
		EntityType:     "attendance",
		EntityID:       &workerID,
		NeighborhoodID: &neighborhoodID,
		CityID:         &cityID,
		Before:         before,
		After:          after,
		Details:        map[string]string{"date": date},
		Success:        true,
	})
}

// CheckInUndone logs an undo with its mandatory reason and the deleted
// record snapshot.
func (l *Logger) CheckInUndone(ctx context.Context, actorID, workerID, neighborhoodID, cityID primitive.ObjectID, date, reason string, before bson.M) error {
	return l.Log(ctx, audit.Event{
		Category:       audit.CategoryAttendance,
		EventType:      audit.EventCheckInUndone,
		ActorID:        &actorID,
		EntityType:     "attendance",
		EntityID:       &workerID,
		NeighborhoodID: &neighborhoodID,
		CityID:         &cityID,
		Before:         before,
		Details:        map[string]string{"date": date, "reason": reason},
		Success:        true,
	})
}
