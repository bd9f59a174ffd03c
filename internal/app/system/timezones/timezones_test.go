package timezones

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	if err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestAllZonesResolvable(t *testing.T) {
	zones, err := All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(zones) == 0 {
		t.Fatal("All() returned no zones")
	}

	// Every curated zone must resolve against the platform tz database,
	// since cities store these IDs and the check-in window loads them.
	for _, z := range zones {
		if z.ID == "" || z.Label == "" {
			t.Errorf("zone %+v missing id or label", z)
			continue
		}
		if _, err := time.LoadLocation(z.ID); err != nil {
			t.Errorf("zone %q does not resolve: %v", z.ID, err)
		}
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"America/New_York", true},
		{"America/Chicago", true},
		{"UTC", true},
		{"Europe/London", false},
		{"Invalid/Timezone", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := Valid(tt.id); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestLabel(t *testing.T) {
	if got := Label("America/Denver"); got != "Mountain Time (US)" {
		t.Errorf("Label(America/Denver) = %q", got)
	}
	if got := Label("Not/A_Zone"); got != "Not/A_Zone" {
		t.Errorf("Label falls back to the id for unknown zones, got %q", got)
	}
}
