package item

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/trackback/matchengine/internal/domain"
)

var (
	eventDate  = time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)
	reportedAt = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
)

func newItem(t *testing.T) Item {
	t.Helper()
	it, err := New(
		"item-1", KindLost, "reporter-1", "Black wallet", "Leather, several cards",
		"Accessories", NewLocation("Central Mall"), eventDate, reportedAt,
		[]string{"Black", "leather"}, Contact{Email: "a@example.com", Preferred: "email"},
	)
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	return it
}

func TestNew_Validation(t *testing.T) {
	loc := NewLocation("somewhere")
	tests := []struct {
		name string
		fn   func() (Item, error)
	}{
		{"missing id", func() (Item, error) {
			return New("", KindLost, "r", "t", "", "", loc, eventDate, reportedAt, nil, Contact{})
		}},
		{"unknown kind", func() (Item, error) {
			return New("i", Kind("stolen"), "r", "t", "", "", loc, eventDate, reportedAt, nil, Contact{})
		}},
		{"missing reporter", func() (Item, error) {
			return New("i", KindLost, "", "t", "", "", loc, eventDate, reportedAt, nil, Contact{})
		}},
		{"missing title", func() (Item, error) {
			return New("i", KindLost, "r", "", "", "", loc, eventDate, reportedAt, nil, Contact{})
		}},
		{"unknown category", func() (Item, error) {
			return New("i", KindLost, "r", "t", "", "Vehicles", loc, eventDate, reportedAt, nil, Contact{})
		}},
		{"event date after report", func() (Item, error) {
			return New("i", KindLost, "r", "t", "", "", loc, reportedAt.Add(time.Hour), reportedAt, nil, Contact{})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	it := newItem(t)
	if it.Status() != StatusActive {
		t.Errorf("status: got %s, want %s", it.Status(), StatusActive)
	}
	if !it.Active() {
		t.Error("new item must be active")
	}
	if got := it.Tags(); !reflect.DeepEqual(got, []string{"black", "leather"}) {
		t.Errorf("tags: got %v, want normalized [black leather]", got)
	}
}

func TestNew_ZeroEventDateFallsBackToReportedAt(t *testing.T) {
	it, err := New("i", KindFound, "r", "Keys", "", "", NewLocation(""),
		time.Time{}, reportedAt, nil, Contact{})
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	if !it.EventDate().Equal(reportedAt) {
		t.Errorf("event date: got %v, want %v", it.EventDate(), reportedAt)
	}
}

func TestKind_Opposite(t *testing.T) {
	if KindLost.Opposite() != KindFound || KindFound.Opposite() != KindLost {
		t.Error("opposite kinds must swap")
	}
}

func TestNewGeoLocation_RejectsInvalidCoordinates(t *testing.T) {
	for _, c := range [][2]float64{{91, 0}, {-91, 0}, {0, 181}, {0, -181}} {
		if _, err := NewGeoLocation("x", c[0], c[1]); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("lat=%f lon=%f: got %v, want ErrValidation", c[0], c[1], err)
		}
	}
	loc, err := NewGeoLocation("x", 52.23, 21.01)
	if err != nil {
		t.Fatalf("valid coordinates rejected: %v", err)
	}
	if _, _, ok := loc.Coordinates(); !ok {
		t.Error("coordinates must be present")
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" Black ", "LEATHER", "black", "", "wallet"})
	want := []string{"black", "leather", "wallet"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestScoringFingerprint_ReflectsScoringFields(t *testing.T) {
	it := newItem(t)
	base := it.ScoringFingerprint()

	changed := Reconstruct(
		it.ID(), it.Kind(), it.ReporterID(), "Brown wallet", it.Description(),
		it.Category(), it.Location(), it.EventDate(), it.ReportedAt(), it.Tags(),
		it.Status(), it.Contact(), it.Reward(), it.Images(), it.OrganizationID(),
	)
	if changed.ScoringFingerprint() == base {
		t.Error("title change must alter the scoring fingerprint")
	}

	// A reward change does not affect scoring.
	richer := it.WithReward(50)
	if richer.ScoringFingerprint() != base {
		t.Error("reward change must not alter the scoring fingerprint")
	}
}

func TestWithStatus_CopiesWithoutMutating(t *testing.T) {
	it := newItem(t)
	archived := it.WithStatus(StatusArchived)

	if archived.Status() != StatusArchived {
		t.Errorf("copy status: got %s, want %s", archived.Status(), StatusArchived)
	}
	if it.Status() != StatusActive {
		t.Errorf("original mutated to %s", it.Status())
	}
}

func TestKnownCategory(t *testing.T) {
	for _, c := range Categories {
		if !KnownCategory(c) {
			t.Errorf("category %q must be known", c)
		}
	}
	if KnownCategory("Vehicles") {
		t.Error("unlisted category must be unknown")
	}
}
