// Package match drives the match record lifecycle: creation with pair
// deduplication, reviewer confirm/reject transitions and re-evaluation
// when a referenced item is edited.
package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackback/matchengine/internal/domain"
	domitem "github.com/trackback/matchengine/internal/domain/item"
	dommatch "github.com/trackback/matchengine/internal/domain/match"
	"github.com/trackback/matchengine/internal/metrics"
)

// Config tunes lifecycle thresholds and the confirmation policy.
type Config struct {
	// CreateThreshold is the minimum score for a new pending match.
	CreateThreshold int
	// RetainThreshold is the score under which a rescored pending match is
	// auto-rejected. Deliberately below CreateThreshold so a match
	// hovering at the creation boundary does not flicker.
	RetainThreshold int
	// ConfirmedItemStatus is applied to both items on confirm.
	ConfirmedItemStatus domitem.Status
}

// Service is the match lifecycle manager.
type Service struct {
	repo   Repository
	items  ItemStore
	scorer Scorer
	gate   DisclosureGate
	cfg    Config
	logger *zap.Logger

	// pairLocks serializes create/confirm/reject per unordered item pair
	// so concurrent attempts resolve to exactly one winner.
	pairLocks *keyedMutex

	now   func() time.Time
	newID func() string
}

// New creates a lifecycle manager.
func New(repo Repository, items ItemStore, scorer Scorer, gate DisclosureGate, cfg Config, logger *zap.Logger) *Service {
	if cfg.CreateThreshold <= 0 {
		cfg.CreateThreshold = 60
	}
	if cfg.RetainThreshold <= 0 || cfg.RetainThreshold >= cfg.CreateThreshold {
		cfg.RetainThreshold = 40
	}
	if cfg.ConfirmedItemStatus != domitem.StatusMatched {
		cfg.ConfirmedItemStatus = domitem.StatusResolved
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		items:     items,
		scorer:    scorer,
		gate:      gate,
		cfg:       cfg,
		logger:    logger,
		pairLocks: newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// WithClock overrides time and ID sources (tests).
func (s *Service) WithClock(now func() time.Time, newID func() string) *Service {
	if now != nil {
		s.now = now
	}
	if newID != nil {
		s.newID = newID
	}
	return s
}

// CreateThreshold returns the minimum score for match creation.
func (s *Service) CreateThreshold() int { return s.cfg.CreateThreshold }

// Create records a pending match between a lost and a found item. A pair
// already covered by a pending or confirmed match is a silent no-op:
// created is false and err is nil. Scores below the creation threshold
// are likewise a no-op.
func (s *Service) Create(
	ctx context.Context, lost, found *domitem.Item, score int,
) (dommatch.Match, bool, error) {
	if lost.Kind() != domitem.KindLost || found.Kind() != domitem.KindFound {
		return dommatch.Match{}, false, fmt.Errorf(
			"got kinds %s/%s: %w", lost.Kind(), found.Kind(), domain.ErrKindMismatch,
		)
	}
	if score < s.cfg.CreateThreshold {
		return dommatch.Match{}, false, nil
	}

	pair := dommatch.PairKey(lost.ID(), found.ID())
	unlock := s.pairLocks.Lock(pair)
	defer unlock()

	m, err := dommatch.New(s.newID(), lost.ID(), found.ID(), score, s.now())
	if err != nil {
		return dommatch.Match{}, false, fmt.Errorf("new match: %w", err)
	}

	if err := s.repo.Create(ctx, &m); err != nil {
		if errors.Is(err, domain.ErrDuplicateMatch) {
			return dommatch.Match{}, false, nil
		}
		return dommatch.Match{}, false, fmt.Errorf("create match: %w", err)
	}

	s.logger.Info("match created",
		zap.String("match_id", m.ID()),
		zap.String("lost_item_id", lost.ID()),
		zap.String("found_item_id", found.ID()),
		zap.Int("score", score),
	)
	return m, true, nil
}

// Confirm transitions a pending match to confirmed, marks both items per
// the confirmation policy and releases contact details through the
// disclosure gate. A non-pending match fails with ErrInvalidStateTransition.
func (s *Service) Confirm(ctx context.Context, matchID, verifierID string) (dommatch.Match, error) {
	return s.transition(ctx, matchID, func(m *dommatch.Match) (dommatch.Match, error) {
		return m.Confirm(verifierID)
	}, s.confirmSideEffects)
}

// Reject transitions a pending match to rejected. Item statuses are left
// untouched. A non-pending match fails with ErrInvalidStateTransition.
func (s *Service) Reject(ctx context.Context, matchID, verifierID string) (dommatch.Match, error) {
	return s.transition(ctx, matchID, func(m *dommatch.Match) (dommatch.Match, error) {
		return m.Reject(verifierID)
	}, nil)
}

// transition applies a state change under the pair lock. The match is
// re-read inside the lock so a transition racing another sees the
// winner's write and fails the pending check.
func (s *Service) transition(
	ctx context.Context, matchID string,
	apply func(*dommatch.Match) (dommatch.Match, error),
	after func(ctx context.Context, m *dommatch.Match) error,
) (dommatch.Match, error) {
	ref, err := s.repo.Get(ctx, matchID)
	if err != nil {
		return dommatch.Match{}, fmt.Errorf("get match: %w", err)
	}

	unlock := s.pairLocks.Lock(ref.PairKey())
	defer unlock()

	m, err := s.repo.Get(ctx, matchID)
	if err != nil {
		return dommatch.Match{}, fmt.Errorf("get match: %w", err)
	}
	prev := m.Status()

	next, err := apply(&m)
	if err != nil {
		return dommatch.Match{}, err
	}

	// Side effects run before the status write: if they fail the match
	// stays pending and the caller can retry the whole transition. The
	// reverse order would strand a terminal match with its side effects
	// undone and no transition left to redo them.
	if after != nil {
		if err := after(ctx, &next); err != nil {
			return dommatch.Match{}, err
		}
	}

	if err := s.repo.Update(ctx, &next, prev); err != nil {
		return dommatch.Match{}, fmt.Errorf("update match: %w", err)
	}

	verifier := "user"
	if next.VerifiedBy() == dommatch.SystemVerifier {
		verifier = dommatch.SystemVerifier
	}
	metrics.MatchTransitionsTotal.WithLabelValues(string(next.Status()), verifier).Inc()

	s.logger.Info("match transitioned",
		zap.String("match_id", next.ID()),
		zap.String("from", string(prev)),
		zap.String("to", string(next.Status())),
		zap.String("verified_by", next.VerifiedBy()),
	)
	return next, nil
}

// confirmSideEffects marks both items and signals the disclosure gate.
// It runs before the confirmed status is persisted and may therefore run
// again on a retried confirm; the item writes are idempotent and the
// gate is at-least-once.
func (s *Service) confirmSideEffects(ctx context.Context, m *dommatch.Match) error {
	lost, err := s.items.Get(ctx, m.LostItemID())
	if err != nil {
		return fmt.Errorf("get lost item: %w", err)
	}
	found, err := s.items.Get(ctx, m.FoundItemID())
	if err != nil {
		return fmt.Errorf("get found item: %w", err)
	}

	for _, it := range []domitem.Item{lost.WithStatus(s.cfg.ConfirmedItemStatus), found.WithStatus(s.cfg.ConfirmedItemStatus)} {
		updated := it
		if err := s.items.Put(ctx, &updated); err != nil {
			return fmt.Errorf("update item %s status: %w", updated.ID(), err)
		}
	}

	// Gate delivery is external; a failure is logged, not rolled back.
	if err := s.gate.OnMatchConfirmed(ctx, m.ID(), lost.Contact(), found.Contact()); err != nil {
		s.logger.Error("disclosure gate delivery failed",
			zap.String("match_id", m.ID()),
			zap.Error(err),
		)
	}
	return nil
}

// InvalidateOnEdit rescores every pending match referencing an edited
// item. A match falling below the retain threshold is auto-rejected with
// verifiedBy="system"; otherwise its score is updated in place. Terminal
// matches are never touched. A missing counterpart item only skips that
// match.
func (s *Service) InvalidateOnEdit(ctx context.Context, edited *domitem.Item) error {
	matches, err := s.repo.ListByItem(ctx, edited.ID())
	if err != nil {
		return fmt.Errorf("list matches for item: %w", err)
	}

	for i := range matches {
		m := matches[i]
		if m.Status() != dommatch.StatusPending {
			continue
		}
		if err := s.rescore(ctx, &m, edited); err != nil {
			if errors.Is(err, domain.ErrItemNotFound) {
				s.logger.Warn("skipping rescore, counterpart item missing",
					zap.String("match_id", m.ID()),
				)
				continue
			}
			return err
		}
	}
	return nil
}

func (s *Service) rescore(ctx context.Context, m *dommatch.Match, edited *domitem.Item) error {
	unlock := s.pairLocks.Lock(m.PairKey())
	defer unlock()

	current, err := s.repo.Get(ctx, m.ID())
	if err != nil {
		return fmt.Errorf("get match: %w", err)
	}
	if current.Status() != dommatch.StatusPending {
		return nil
	}

	lost, found, err := s.pairItems(ctx, &current, edited)
	if err != nil {
		return err
	}

	newScore := s.scorer.Score(lost, found).Total()

	if newScore < s.cfg.RetainThreshold {
		rejected, err := current.Reject(dommatch.SystemVerifier)
		if err != nil {
			return fmt.Errorf("system reject: %w", err)
		}
		if err := s.repo.Update(ctx, &rejected, dommatch.StatusPending); err != nil {
			return fmt.Errorf("update match: %w", err)
		}
		metrics.MatchTransitionsTotal.WithLabelValues(string(dommatch.StatusRejected), dommatch.SystemVerifier).Inc()
		s.logger.Info("match auto-rejected on edit",
			zap.String("match_id", current.ID()),
			zap.Int("old_score", current.Score()),
			zap.Int("new_score", newScore),
		)
		return nil
	}

	if newScore == current.Score() {
		return nil
	}
	rescored, err := current.Rescored(newScore)
	if err != nil {
		return fmt.Errorf("rescore: %w", err)
	}
	if err := s.repo.Update(ctx, &rescored, dommatch.StatusPending); err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	return nil
}

// pairItems resolves both sides of a match, reusing the already-loaded
// edited item for its side.
func (s *Service) pairItems(
	ctx context.Context, m *dommatch.Match, edited *domitem.Item,
) (lost, found *domitem.Item, err error) {
	if edited.ID() == m.LostItemID() {
		f, err := s.items.Get(ctx, m.FoundItemID())
		if err != nil {
			return nil, nil, fmt.Errorf("get found item: %w", err)
		}
		return edited, &f, nil
	}
	l, err := s.items.Get(ctx, m.LostItemID())
	if err != nil {
		return nil, nil, fmt.Errorf("get lost item: %w", err)
	}
	return &l, edited, nil
}

// List returns matches filtered by status, ordered by descending score
// then ascending creation time then ID. The ordering is deterministic for
// stable pagination and reproducible assertions.
func (s *Service) List(ctx context.Context, status dommatch.Status) ([]dommatch.Match, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown match status %q: %w", status, domain.ErrValidation)
	}
	matches, err := s.repo.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	sortMatches(matches)
	return matches, nil
}

// ListForItem returns all matches referencing an item, same ordering as List.
func (s *Service) ListForItem(ctx context.Context, itemID string) ([]dommatch.Match, error) {
	matches, err := s.repo.ListByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("list matches for item: %w", err)
	}
	sortMatches(matches)
	return matches, nil
}

// Get returns a single match.
func (s *Service) Get(ctx context.Context, matchID string) (dommatch.Match, error) {
	m, err := s.repo.Get(ctx, matchID)
	if err != nil {
		return dommatch.Match{}, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

// Stats returns the match counts per review status.
func (s *Service) Stats(ctx context.Context) (map[dommatch.Status]int, error) {
	out := make(map[dommatch.Status]int, 3)
	for _, st := range []dommatch.Status{
		dommatch.StatusPending, dommatch.StatusConfirmed, dommatch.StatusRejected,
	} {
		n, err := s.repo.CountByStatus(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", st, err)
		}
		out[st] = n
	}
	return out, nil
}

func sortMatches(matches []dommatch.Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score() != matches[j].Score() {
			return matches[i].Score() > matches[j].Score()
		}
		if !matches[i].CreatedAt().Equal(matches[j].CreatedAt()) {
			return matches[i].CreatedAt().Before(matches[j].CreatedAt())
		}
		return matches[i].ID() < matches[j].ID()
	})
}
