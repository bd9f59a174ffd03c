// internal/app/system/timeouts/timeouts.go

// Package timeouts holds the per-operation deadlines handlers pass to
// context.WithTimeout. One shared set keeps the tiers consistent across
// features and adjustable in one place.
//
// Tiers, by what FieldHub does in them:
//   - Ping: health-check database connectivity
//   - Short: single-document reads and simple guarded writes
//     (a worker lookup, a check-in, an area rename)
//   - Medium: list queries and multi-collection transactional writes
//     (worker moves, manager reassignment, account changes)
//   - Long: full-tree scans such as the orphan-worker sweep
//   - Batch: repair passes that rewrite many workers across
//     neighborhoods
package timeouts

import (
	"os"
	"sync"
	"time"
)

// Defaults, used until Configure or ConfigureFromEnv overrides them.
const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
	DefaultBatch  = 60 * time.Second
)

var mu sync.RWMutex

var (
	ping   = DefaultPing
	short  = DefaultShort
	medium = DefaultMedium
	long   = DefaultLong
	batch  = DefaultBatch
)

// Ping returns the health-check deadline.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Short returns the deadline for single-document reads and simple writes.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

// Medium returns the deadline for list queries and transactional writes
// that touch several collections.
func Medium() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return medium
}

// Long returns the deadline for operations that scan every supervised
// neighborhood, like the orphan-worker sweep.
func Long() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return long
}

// Batch returns the deadline for repair passes that rewrite many worker
// documents.
func Batch() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return batch
}

// Config carries deadline overrides. Zero values keep the current value.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
	Batch  time.Duration
}

// Configure applies overrides. Call during startup, before handlers run.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Short > 0 {
		short = cfg.Short
	}
	if cfg.Medium > 0 {
		medium = cfg.Medium
	}
	if cfg.Long > 0 {
		long = cfg.Long
	}
	if cfg.Batch > 0 {
		batch = cfg.Batch
	}
}

// ConfigureFromEnv applies overrides from FIELDHUB_TIMEOUT_* environment
// variables (Go duration strings: "5s", "500ms"). Unset or unparseable
// values keep the current deadline. Returns how many were applied.
func ConfigureFromEnv() int {
	applied := 0
	cfg := Config{}
	for _, v := range []struct {
		env string
		dst *time.Duration
	}{
		{"FIELDHUB_TIMEOUT_PING", &cfg.Ping},
		{"FIELDHUB_TIMEOUT_SHORT", &cfg.Short},
		{"FIELDHUB_TIMEOUT_MEDIUM", &cfg.Medium},
		{"FIELDHUB_TIMEOUT_LONG", &cfg.Long},
		{"FIELDHUB_TIMEOUT_BATCH", &cfg.Batch},
	} {
		if raw := os.Getenv(v.env); raw != "" {
			if d, err := time.ParseDuration(raw); err == nil && d > 0 {
				*v.dst = d
				applied++
			}
		}
	}
	Configure(cfg)
	return applied
}
