// internal/app/system/timezones/timezones.go

// Package timezones holds the curated set of IANA zones a city may use.
// Check-in windows are evaluated in the city's local time, so the set is
// restricted to zones the campaign actually operates in rather than the
// full tz database.
package timezones

import (
	"embed"
	"encoding/json"
	"sync"
)

//go:embed timezonedata/timezones.json
var fs embed.FS

// Zone is one selectable time zone.
type Zone struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

var (
	loadOnce sync.Once
	zones    []Zone
	byID     map[string]Zone
	loadErr  error
)

func load() {
	loadOnce.Do(func() {
		data, err := fs.ReadFile("timezonedata/timezones.json")
		if err != nil {
			loadErr = err
			return
		}

		var list []Zone
		if err := json.Unmarshal(data, &list); err != nil {
			loadErr = err
			return
		}

		zones = list
		byID = make(map[string]Zone, len(list))
		for _, z := range list {
			byID[z.ID] = z
		}
	})
}

// Load parses the embedded zone list. Calling it at startup fails fast on a
// bad data file; the other functions load lazily if it was never called.
func Load() error {
	load()
	return loadErr
}

// All returns the curated zones in data-file order.
func All() ([]Zone, error) {
	load()
	if loadErr != nil {
		return nil, loadErr
	}
	return zones, nil
}

// Label returns the display label for id, or id itself when unknown.
func Label(id string) string {
	load()
	if loadErr != nil {
		return id
	}
	if z, ok := byID[id]; ok && z.Label != "" {
		return z.Label
	}
	return id
}

// Valid reports whether id is in the curated list.
func Valid(id string) bool {
	load()
	if loadErr != nil {
		return false
	}
	_, ok := byID[id]
	return ok
}
