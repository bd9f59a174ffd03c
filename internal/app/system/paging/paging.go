// internal/app/system/paging/paging.go

// Package paging implements the two pagination styles FieldHub lists use:
// look-ahead offset paging for attendance history and the audit trail,
// and keyset (cursor) paging for the worker roster, where coordinators
// page through thousands of names sorted case-insensitively.
package paging

import (
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PageSize is how many rows a paged list returns. Kept an int because
// call sites compare against len() and cast to int64 only for Mongo's
// SetLimit.
const PageSize = 50

// LimitPlusOne returns PageSize+1 as int64. Lists fetch one extra row so
// the presence of a next page is known without a count query.
func LimitPlusOne() int64 { return int64(PageSize + 1) }

// Result reports which neighboring pages exist after TrimPage.
type Result struct {
	HasPrev bool
	HasNext bool
}

// TrimPage trims a slice fetched with LimitPlusOne down to PageSize, in
// place, and reports the neighbors. before/after are the raw cursor
// params from the request; exactly one (or neither) is set.
//
// Paging backwards (before != ""): an overflow row means an older page
// exists, and a next page always does since we came from it. Forwards:
// an overflow row means a next page, and a previous page exists whenever
// a cursor got us here.
func TrimPage[T any](rows *[]T, before, after string) Result {
	orig := len(*rows)
	var res Result

	if before != "" {
		if orig > PageSize {
			*rows = (*rows)[1:]
			res.HasPrev = true
		}
		res.HasNext = true
		return res
	}

	if orig > PageSize {
		*rows = (*rows)[:PageSize]
		res.HasNext = true
	}
	res.HasPrev = after != ""
	return res
}

// Direction is which way a keyset page moves through the sort order.
type Direction int

const (
	Forward  Direction = iota // ascending sort, cursor condition "gt"
	Backward                  // descending sort, cursor condition "lt"
)

// KeysetConfig is the decoded paging state for one keyset request.
type KeysetConfig struct {
	Direction Direction
	SortOrder int // 1 ascending, -1 descending
	Cursor    *wafflemongo.Cursor
}

// ConfigureKeyset picks the direction and decodes the cursor from the
// request's before/after params. An undecodable cursor degrades to the
// first page rather than erroring.
func ConfigureKeyset(before, after string) KeysetConfig {
	cfg := KeysetConfig{Direction: Forward, SortOrder: 1}

	if before != "" {
		cfg.Direction = Backward
		cfg.SortOrder = -1
		if c, ok := wafflemongo.DecodeCursor(before); ok {
			cfg.Cursor = &c
		}
	} else if after != "" {
		if c, ok := wafflemongo.DecodeCursor(after); ok {
			cfg.Cursor = &c
		}
	}

	return cfg
}

// ApplyToFind sets the sort and look-ahead limit on find options. The
// _id tiebreak keeps the order total when sort keys collide, which
// folded names regularly do.
func (cfg KeysetConfig) ApplyToFind(find *options.FindOptions, sortField string) {
	find.SetSort(bson.D{
		{Key: sortField, Value: cfg.SortOrder},
		{Key: "_id", Value: cfg.SortOrder},
	}).SetLimit(LimitPlusOne())
}

// KeysetWindow returns the filter clause that starts the page at the
// cursor, or nil on the first page.
func (cfg KeysetConfig) KeysetWindow(sortField string) bson.M {
	if cfg.Cursor == nil {
		return nil
	}
	dir := "gt"
	if cfg.Direction == Backward {
		dir = "lt"
	}
	return wafflemongo.KeysetWindow(sortField, dir, cfg.Cursor.CI, cfg.Cursor.ID)
}

// Reverse restores display order after a backward fetch, which reads
// rows in reverse.
func Reverse[T any](rows []T) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

// BuildCursors encodes prev/next cursors from the page's first and last
// rows. keyFn and idFn extract the sort key and _id from a row.
func BuildCursors[T any](rows []T, keyFn func(T) string, idFn func(T) primitive.ObjectID) (prev, next string) {
	if len(rows) == 0 {
		return "", ""
	}
	first := rows[0]
	last := rows[len(rows)-1]
	prev = wafflemongo.EncodeCursor(keyFn(first), idFn(first))
	next = wafflemongo.EncodeCursor(keyFn(last), idFn(last))
	return prev, next
}
