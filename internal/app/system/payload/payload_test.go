package payload

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
)

type createThing struct {
	Name           string `json:"name" validate:"required,min=2,max=100"`
	NeighborhoodID string `json:"neighborhood_id" validate:"required,objectid"`
	SupervisorID   string `json:"supervisor_id" validate:"omitempty,objectid"`
	Date           string `json:"date" validate:"omitempty,dateonly"`
}

func decode(t *testing.T, body string) (createThing, map[string]string, error) {
	t.Helper()
	r := httptest.NewRequest("POST", "/things", strings.NewReader(body))
	var dst createThing
	fields, err := Decode(r, &dst)
	return dst, fields, err
}

func TestDecode_Valid(t *testing.T) {
	dst, fields, err := decode(t, `{"name":"Downtown","neighborhood_id":"507f1f77bcf86cd799439011"}`)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(fields) != 0 {
		t.Fatalf("unexpected field errors: %v", fields)
	}
	if dst.Name != "Downtown" {
		t.Errorf("name: got %q", dst.Name)
	}
}

func TestDecode_FieldErrorsUseJSONNames(t *testing.T) {
	_, fields, err := decode(t, `{"name":"x","neighborhood_id":"nope"}`)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := fields["name"]; !ok {
		t.Errorf("expected error keyed by json name %q, got %v", "name", fields)
	}
	if _, ok := fields["neighborhood_id"]; !ok {
		t.Errorf("expected objectid error for neighborhood_id, got %v", fields)
	}
}

func TestDecode_MissingRequired(t *testing.T) {
	_, fields, err := decode(t, `{}`)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(fields) == 0 {
		t.Fatal("expected field errors for empty payload")
	}
}

func TestDecode_OptionalFieldsMayBeEmpty(t *testing.T) {
	_, fields, err := decode(t, `{"name":"Downtown","neighborhood_id":"507f1f77bcf86cd799439011","supervisor_id":"","date":""}`)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(fields) != 0 {
		t.Errorf("empty optional fields should pass, got %v", fields)
	}
}

func TestDecode_DateMustBeRealCalendarDate(t *testing.T) {
	tests := []struct {
		date string
		ok   bool
	}{
		{"2026-08-30", true},
		{"2026-01-01", true},
		{"2026-12-31", true},
		{"2026-99-99", false},
		{"2026-13-01", false},
		{"2026-04-31", false},
		{"2026-02-29", false}, // not a leap year
		{"26-08-30", false},
		{"2026/08/30", false},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			body := fmt.Sprintf(`{"name":"Downtown","neighborhood_id":"507f1f77bcf86cd799439011","date":%q}`, tt.date)
			_, fields, err := decode(t, body)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			_, flagged := fields["date"]
			if tt.ok && flagged {
				t.Errorf("%q rejected: %v", tt.date, fields)
			}
			if !tt.ok && !flagged {
				t.Errorf("%q accepted, want dateonly error", tt.date)
			}
		})
	}
}

func TestDecode_MalformedJSON(t *testing.T) {
	_, _, err := decode(t, `{"name":`)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("got %v, want ErrMalformed", err)
	}
}

func TestDecode_UnknownFieldRejected(t *testing.T) {
	_, _, err := decode(t, `{"name":"Downtown","neighborhood_id":"507f1f77bcf86cd799439011","bogus":true}`)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("got %v, want ErrMalformed for unknown field", err)
	}
}
