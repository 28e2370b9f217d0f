package match

import (
	"context"

	domitem "github.com/trackback/matchengine/internal/domain/item"
	dommatch "github.com/trackback/matchengine/internal/domain/match"
	"github.com/trackback/matchengine/internal/domain/scoring"
)

// Repository defines the storage contract for match records.
type Repository interface {
	// Create persists a pending match, returning domain.ErrDuplicateMatch
	// when a non-rejected match already covers the pair.
	Create(ctx context.Context, m *dommatch.Match) error
	Get(ctx context.Context, id string) (dommatch.Match, error)
	GetByPair(ctx context.Context, pairKey string) (dommatch.Match, error)
	Update(ctx context.Context, m *dommatch.Match, prevStatus dommatch.Status) error
	ListByStatus(ctx context.Context, status dommatch.Status) ([]dommatch.Match, error)
	ListByItem(ctx context.Context, itemID string) ([]dommatch.Match, error)
	CountByStatus(ctx context.Context, status dommatch.Status) (int, error)
}

// ItemStore reads and writes items for confirmation side effects and
// invalidation rescoring.
type ItemStore interface {
	Get(ctx context.Context, id string) (domitem.Item, error)
	Put(ctx context.Context, it *domitem.Item) error
}

// Scorer recomputes similarity on invalidation.
type Scorer interface {
	Score(lost, found *domitem.Item) scoring.Breakdown
}

// DisclosureGate releases reporter contact details once a match is
// confirmed. Contact payloads cross this boundary at no other point.
type DisclosureGate interface {
	OnMatchConfirmed(
		ctx context.Context, matchID string,
		lostReporterContact, foundReporterContact domitem.Contact,
	) error
}
