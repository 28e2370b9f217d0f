package item

import (
	"context"
	"time"

	domitem "github.com/trackback/matchengine/internal/domain/item"
	"github.com/trackback/matchengine/internal/events"
)

// Repository defines the storage contract for item reports.
type Repository interface {
	Put(ctx context.Context, it *domitem.Item) error
	Get(ctx context.Context, id string) (domitem.Item, error)
	ListByReporter(ctx context.Context, reporterID string) ([]domitem.Item, error)
	ListActiveByCategory(ctx context.Context, kind domitem.Kind, category string, since, until time.Time) ([]domitem.Item, error)
	GetActiveItemsNear(ctx context.Context, lat, lon, radiusM float64) ([]domitem.Item, error)
	CountByStatus(ctx context.Context) (map[domitem.Status]int, error)
}

// Publisher emits item lifecycle events consumed by the matching pipeline.
type Publisher interface {
	PublishItemEvent(topic string, ev events.ItemEvent) error
}
