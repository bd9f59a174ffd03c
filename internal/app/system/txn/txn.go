// internal/app/system/txn/txn.go

// Package txn wraps multi-document MongoDB transactions with a graceful
// fallback for deployments where transactions are unavailable (standalone
// mongod without a replica set). Callers pass a function containing all the
// writes that must commit or roll back together.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Run executes fn inside a MongoDB transaction. All writes made through the
// session-bound context commit together or not at all.
//
// If the server does not support transactions (standalone mongod, common in
// dev), Run logs a warning once per call and executes fn without a
// transaction so local development still works. Production deployments are
// expected to run a replica set.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn func(ctx context.Context) error) error {
	sess, err := db.Client().StartSession()
	if err != nil {
		if IsNotSupported(err) {
			log.Warn("mongo sessions unavailable; running without transaction", zap.Error(err))
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		log.Warn("mongo transactions unavailable; running without transaction", zap.Error(err))
		return fn(ctx)
	}
	return err
}

// Transaction-unsupported server error codes:
// 20 = IllegalOperation (transaction numbers need a replica set),
// 51 = no such command / illegal operation variants,
// 263 = OperationNotSupportedInTransaction.
var notSupportedCodes = map[int32]bool{20: true, 51: true, 263: true}

// IsNotSupported reports whether err indicates the server cannot run
// multi-document transactions, as opposed to a transaction that failed.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return notSupportedCodes[cmdErr.Code]
	}

	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "transaction") && !strings.Contains(msg, "session") {
		return false
	}
	for _, hint := range []string{"replica set", "not supported", "illegal operation", "session"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
