package match

import (
	"fmt"
	"time"

	"github.com/trackback/matchengine/internal/domain"
)

// SystemVerifier marks transitions performed by the engine rather than a reviewer.
const SystemVerifier = "system"

// Status is the match review state. Confirmed and rejected are terminal.
type Status string

// Match statuses.
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool { return s == StatusConfirmed || s == StatusRejected }

// PairKey canonicalizes an unordered (lost, found) item pair into a stable
// key. The same two items always produce the same key regardless of
// argument order, which backs the at-most-one-active-match invariant.
func PairKey(itemA, itemB string) string {
	if itemA > itemB {
		itemA, itemB = itemB, itemA
	}
	return itemA + ":" + itemB
}

// Match is a proposed pairing between one lost and one found item
// (aggregate, immutable value object — transitions return copies).
type Match struct {
	id          string
	lostItemID  string
	foundItemID string
	score       int
	status      Status
	createdAt   time.Time
	verifiedBy  string
}

// New validates and creates a pending Match.
func New(id, lostItemID, foundItemID string, score int, createdAt time.Time) (Match, error) {
	if id == "" {
		return Match{}, fmt.Errorf("match ID is required: %w", domain.ErrValidation)
	}
	if lostItemID == "" || foundItemID == "" {
		return Match{}, fmt.Errorf("both item IDs are required: %w", domain.ErrValidation)
	}
	if lostItemID == foundItemID {
		return Match{}, fmt.Errorf("match cannot pair an item with itself: %w", domain.ErrValidation)
	}
	if score < 0 || score > 100 {
		return Match{}, fmt.Errorf("score %d outside [0,100]: %w", score, domain.ErrValidation)
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return Match{
		id:          id,
		lostItemID:  lostItemID,
		foundItemID: foundItemID,
		score:       score,
		status:      StatusPending,
		createdAt:   createdAt,
	}, nil
}

// Reconstruct creates a Match without validation (storage hydration).
func Reconstruct(
	id, lostItemID, foundItemID string, score int,
	status Status, createdAt time.Time, verifiedBy string,
) Match {
	return Match{
		id: id, lostItemID: lostItemID, foundItemID: foundItemID,
		score: score, status: status, createdAt: createdAt, verifiedBy: verifiedBy,
	}
}

// ID returns the match identifier.
func (m *Match) ID() string { return m.id }

// LostItemID returns the lost item reference.
func (m *Match) LostItemID() string { return m.lostItemID }

// FoundItemID returns the found item reference.
func (m *Match) FoundItemID() string { return m.foundItemID }

// Score returns the similarity score in [0,100].
func (m *Match) Score() int { return m.score }

// Status returns the review state.
func (m *Match) Status() Status { return m.status }

// CreatedAt returns when the match was generated.
func (m *Match) CreatedAt() time.Time { return m.createdAt }

// VerifiedBy returns the reviewer that closed the match, empty while pending.
func (m *Match) VerifiedBy() string { return m.verifiedBy }

// PairKey returns the canonical key for the referenced item pair.
func (m *Match) PairKey() string { return PairKey(m.lostItemID, m.foundItemID) }

// Confirm transitions pending → confirmed. Any other starting state fails
// with ErrInvalidStateTransition.
func (m *Match) Confirm(verifierID string) (Match, error) {
	if m.status != StatusPending {
		return Match{}, domain.NewInvalidTransition(m.id, string(m.status), string(StatusConfirmed))
	}
	if verifierID == "" {
		return Match{}, fmt.Errorf("verifier ID is required: %w", domain.ErrValidation)
	}
	c := *m
	c.status = StatusConfirmed
	c.verifiedBy = verifierID
	return c, nil
}

// Reject transitions pending → rejected. Any other starting state fails
// with ErrInvalidStateTransition.
func (m *Match) Reject(verifierID string) (Match, error) {
	if m.status != StatusPending {
		return Match{}, domain.NewInvalidTransition(m.id, string(m.status), string(StatusRejected))
	}
	if verifierID == "" {
		return Match{}, fmt.Errorf("verifier ID is required: %w", domain.ErrValidation)
	}
	c := *m
	c.status = StatusRejected
	c.verifiedBy = verifierID
	return c, nil
}

// Rescored returns a pending match with its score updated in place.
// Terminal matches are immutable.
func (m *Match) Rescored(score int) (Match, error) {
	if m.status != StatusPending {
		return Match{}, domain.NewInvalidTransition(m.id, string(m.status), string(StatusPending))
	}
	if score < 0 || score > 100 {
		return Match{}, fmt.Errorf("score %d outside [0,100]: %w", score, domain.ErrValidation)
	}
	c := *m
	c.score = score
	return c, nil
}
