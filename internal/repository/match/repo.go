// Package match persists match records: one Redis hash per match, a
// pair-key pointer enforcing the at-most-one-active-match invariant,
// status index sets for listing and per-item sets for invalidation.
package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/trackback/matchengine/internal/db"
	"github.com/trackback/matchengine/internal/domain"
	dommatch "github.com/trackback/matchengine/internal/domain/match"
)

// store is the consumer interface for match persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Repo implements the lifecycle manager's match store contract.
type Repo struct {
	store     store
	keyPrefix string
}

// New creates a match repository.
func New(s store, keyPrefix string) *Repo {
	if keyPrefix == "" {
		keyPrefix = "lf:"
	}
	return &Repo{store: s, keyPrefix: keyPrefix}
}

// Create persists a new pending match after atomically claiming its pair
// key. Returns domain.ErrDuplicateMatch when a non-rejected match already
// covers the pair.
func (r *Repo) Create(ctx context.Context, m *dommatch.Match) error {
	claimed, err := r.store.SetNX(ctx, r.pairKey(m.PairKey()), []byte(m.ID()))
	if err != nil {
		return fmt.Errorf("claim pair %s: %w", m.PairKey(), err)
	}
	if !claimed {
		return domain.ErrDuplicateMatch
	}

	if err := r.writeRecord(ctx, m); err != nil {
		// Release the claim so a retried create is not mistaken for a
		// duplicate of a record that was never written. The delete is
		// best effort; a claim that survives here still points at no
		// hash and would block the pair, which is worse than a second
		// claim attempt.
		_ = r.store.Del(ctx, r.pairKey(m.PairKey()))
		return err
	}
	return nil
}

func (r *Repo) writeRecord(ctx context.Context, m *dommatch.Match) error {
	if err := r.store.HSet(ctx, r.matchKey(m.ID()), matchToHash(m)); err != nil {
		return fmt.Errorf("hset match %s: %w", m.ID(), err)
	}
	if err := r.store.SAdd(ctx, r.statusKey(m.Status()), m.ID()); err != nil {
		return fmt.Errorf("status index add: %w", err)
	}
	for _, itemID := range []string{m.LostItemID(), m.FoundItemID()} {
		if err := r.store.SAdd(ctx, r.itemKey(itemID), m.ID()); err != nil {
			return fmt.Errorf("item index add: %w", err)
		}
	}
	return nil
}

// Get returns a match by ID.
func (r *Repo) Get(ctx context.Context, id string) (dommatch.Match, error) {
	m, err := r.store.HGetAll(ctx, r.matchKey(id))
	if err != nil {
		return dommatch.Match{}, fmt.Errorf("hgetall match %s: %w", id, err)
	}
	if len(m) == 0 {
		return dommatch.Match{}, domain.ErrMatchNotFound
	}
	return matchFromHash(id, m)
}

// GetByPair returns the current non-rejected match for a canonical pair
// key, or ErrMatchNotFound when none exists.
func (r *Repo) GetByPair(ctx context.Context, pairKey string) (dommatch.Match, error) {
	id, err := r.store.Get(ctx, r.pairKey(pairKey))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return dommatch.Match{}, domain.ErrMatchNotFound
		}
		return dommatch.Match{}, fmt.Errorf("get pair %s: %w", pairKey, err)
	}
	return r.Get(ctx, string(id))
}

// Update overwrites a match record and maintains the status indexes.
// prevStatus is the state the record held before the transition. A
// transition into rejected releases the pair key so a later re-generated
// pending match can claim the pair again.
func (r *Repo) Update(ctx context.Context, m *dommatch.Match, prevStatus dommatch.Status) error {
	if err := r.store.HSet(ctx, r.matchKey(m.ID()), matchToHash(m)); err != nil {
		return fmt.Errorf("hset match %s: %w", m.ID(), err)
	}

	if prevStatus != m.Status() {
		if err := r.store.SRem(ctx, r.statusKey(prevStatus), m.ID()); err != nil {
			return fmt.Errorf("status index rem: %w", err)
		}
		if err := r.store.SAdd(ctx, r.statusKey(m.Status()), m.ID()); err != nil {
			return fmt.Errorf("status index add: %w", err)
		}
	}

	if m.Status() == dommatch.StatusRejected {
		if err := r.store.Del(ctx, r.pairKey(m.PairKey())); err != nil {
			return fmt.Errorf("release pair %s: %w", m.PairKey(), err)
		}
	}
	return nil
}

// ListByStatus returns matches in a review state. An empty status lists
// all matches. Ordering is left to the caller.
func (r *Repo) ListByStatus(ctx context.Context, status dommatch.Status) ([]dommatch.Match, error) {
	statuses := []dommatch.Status{status}
	if status == "" {
		statuses = []dommatch.Status{
			dommatch.StatusPending, dommatch.StatusConfirmed, dommatch.StatusRejected,
		}
	}

	var ids []string
	for _, st := range statuses {
		members, err := r.store.SMembers(ctx, r.statusKey(st))
		if err != nil {
			return nil, fmt.Errorf("status members %s: %w", st, err)
		}
		ids = append(ids, members...)
	}
	return r.fetch(ctx, ids)
}

// ListByItem returns all matches referencing an item, any status.
func (r *Repo) ListByItem(ctx context.Context, itemID string) ([]dommatch.Match, error) {
	ids, err := r.store.SMembers(ctx, r.itemKey(itemID))
	if err != nil {
		return nil, fmt.Errorf("item members %s: %w", itemID, err)
	}
	return r.fetch(ctx, ids)
}

// CountByStatus returns the number of matches in a review state.
func (r *Repo) CountByStatus(ctx context.Context, status dommatch.Status) (int, error) {
	members, err := r.store.SMembers(ctx, r.statusKey(status))
	if err != nil {
		return 0, fmt.Errorf("status members %s: %w", status, err)
	}
	return len(members), nil
}

func (r *Repo) fetch(ctx context.Context, ids []string) ([]dommatch.Match, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.matchKey(id)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi: %w", err)
	}

	matches := make([]dommatch.Match, 0, len(ids))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		mt, err := matchFromHash(ids[i], m)
		if err != nil {
			return nil, fmt.Errorf("hydrate match %s: %w", ids[i], err)
		}
		matches = append(matches, mt)
	}
	return matches, nil
}

func (r *Repo) matchKey(id string) string {
	return fmt.Sprintf("%smatch:%s", r.keyPrefix, id)
}

func (r *Repo) pairKey(pair string) string {
	return fmt.Sprintf("%spair:%s", r.keyPrefix, pair)
}

func (r *Repo) statusKey(status dommatch.Status) string {
	return fmt.Sprintf("%smatches:%s", r.keyPrefix, status)
}

func (r *Repo) itemKey(itemID string) string {
	return fmt.Sprintf("%sitem_matches:%s", r.keyPrefix, itemID)
}
