package candidate

import (
	"context"
	"time"

	domitem "github.com/trackback/matchengine/internal/domain/item"
)

// ItemSource defines the item store contract for candidate generation.
// Bucketing geometry (cell size, time window) is owned by the store so
// index writes and lookups can never disagree.
type ItemSource interface {
	GetActiveItemsByBucket(
		ctx context.Context, kind domitem.Kind, category, locationBucket string, timeBucket int64,
	) ([]domitem.Item, error)

	GetActiveItemsByCategoryWindow(
		ctx context.Context, kind domitem.Kind, category string, timeBuckets []int64,
	) ([]domitem.Item, error)

	TimeBucket(t time.Time) int64
	LocationBuckets(it *domitem.Item) []string
}
