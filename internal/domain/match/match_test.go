package match

import (
	"errors"
	"testing"
	"time"

	"github.com/trackback/matchengine/internal/domain"
)

var createdAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func pendingMatch(t *testing.T) Match {
	t.Helper()
	m, err := New("match-1", "lost-1", "found-1", 75, createdAt)
	if err != nil {
		t.Fatalf("new match: %v", err)
	}
	return m
}

func TestPairKey_OrderIndependent(t *testing.T) {
	if PairKey("a", "b") != PairKey("b", "a") {
		t.Error("pair key must not depend on argument order")
	}
	if PairKey("a", "b") != "a:b" {
		t.Errorf("got %q, want %q", PairKey("a", "b"), "a:b")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name          string
		id, lost, fnd string
		score         int
	}{
		{"missing id", "", "l", "f", 50},
		{"missing lost item", "m", "", "f", 50},
		{"missing found item", "m", "l", "", 50},
		{"self pair", "m", "x", "x", 50},
		{"score below range", "m", "l", "f", -1},
		{"score above range", "m", "l", "f", 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.id, tt.lost, tt.fnd, tt.score, createdAt)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestNew_StartsPending(t *testing.T) {
	m := pendingMatch(t)
	if m.Status() != StatusPending {
		t.Errorf("status: got %s, want %s", m.Status(), StatusPending)
	}
	if m.VerifiedBy() != "" {
		t.Errorf("verified by: got %q, want empty", m.VerifiedBy())
	}
}

func TestConfirm(t *testing.T) {
	m := pendingMatch(t)

	c, err := m.Confirm("reviewer-1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if c.Status() != StatusConfirmed {
		t.Errorf("status: got %s, want %s", c.Status(), StatusConfirmed)
	}
	if c.VerifiedBy() != "reviewer-1" {
		t.Errorf("verified by: got %q, want reviewer-1", c.VerifiedBy())
	}
	// The original value is untouched.
	if m.Status() != StatusPending {
		t.Errorf("original mutated to %s", m.Status())
	}
}

func TestConfirm_RequiresVerifier(t *testing.T) {
	m := pendingMatch(t)
	if _, err := m.Confirm(""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestTransitions_TerminalStatesAreImmutable(t *testing.T) {
	m := pendingMatch(t)
	confirmed, _ := m.Confirm("reviewer-1")
	rejected, _ := m.Reject("reviewer-1")

	for _, terminal := range []Match{confirmed, rejected} {
		if _, err := terminal.Confirm("reviewer-2"); !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Errorf("confirm from %s: got %v, want ErrInvalidStateTransition", terminal.Status(), err)
		}
		if _, err := terminal.Reject("reviewer-2"); !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Errorf("reject from %s: got %v, want ErrInvalidStateTransition", terminal.Status(), err)
		}
		if _, err := terminal.Rescored(10); !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Errorf("rescore from %s: got %v, want ErrInvalidStateTransition", terminal.Status(), err)
		}
	}
}

func TestInvalidTransition_CarriesDetail(t *testing.T) {
	m := pendingMatch(t)
	confirmed, _ := m.Confirm("reviewer-1")

	_, err := confirmed.Reject("reviewer-2")
	var ite *domain.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("got %T, want *domain.InvalidTransitionError", err)
	}
	if ite.From != string(StatusConfirmed) || ite.To != string(StatusRejected) {
		t.Errorf("got %s -> %s, want confirmed -> rejected", ite.From, ite.To)
	}
	if ite.MatchID != "match-1" {
		t.Errorf("match ID: got %q, want match-1", ite.MatchID)
	}
}

func TestRescored(t *testing.T) {
	m := pendingMatch(t)

	r, err := m.Rescored(45)
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if r.Score() != 45 {
		t.Errorf("score: got %d, want 45", r.Score())
	}
	if r.Status() != StatusPending {
		t.Errorf("status: got %s, want %s", r.Status(), StatusPending)
	}

	if _, err := m.Rescored(150); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("out of range score: got %v, want ErrValidation", err)
	}
}

func TestStatus_Terminal(t *testing.T) {
	if StatusPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	if !StatusConfirmed.Terminal() || !StatusRejected.Terminal() {
		t.Error("confirmed and rejected must be terminal")
	}
}
