// Package item persists item reports and maintains the bucket index that
// backs candidate generation: one Redis hash per item plus set memberships
// keyed by (category, location cell, time bucket).
package item

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/trackback/matchengine/internal/domain"
	"github.com/trackback/matchengine/internal/domain/geo"
	domitem "github.com/trackback/matchengine/internal/domain/item"
)

// NoGeoBucket is the location bucket for items without coordinates.
// Lookups always include it so geo-less reports stay matchable.
const NoGeoBucket = "none"

// store is the consumer interface for item persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SMembersMulti(ctx context.Context, keys []string) ([][]string, error)
}

// Config tunes index bucketing.
type Config struct {
	KeyPrefix      string
	LocationCell   float64 // grid cell size in degrees
	TimeBucketDays int
}

// Repo implements the item store contracts of the candidate generator,
// the item service and the lifecycle manager.
type Repo struct {
	store store
	cfg   Config
}

// New creates an item repository.
func New(s store, cfg Config) *Repo {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "lf:"
	}
	if cfg.LocationCell <= 0 {
		cfg.LocationCell = geo.DefaultCellSizeDeg
	}
	if cfg.TimeBucketDays <= 0 {
		cfg.TimeBucketDays = 14
	}
	return &Repo{store: s, cfg: cfg}
}

// TimeBucket returns the index time bucket containing t.
func (r *Repo) TimeBucket(t time.Time) int64 {
	return t.Unix() / (int64(r.cfg.TimeBucketDays) * 86400)
}

// LocationBucket returns the coarse location bucket for an item.
func (r *Repo) LocationBucket(it *domitem.Item) string {
	lat, lon, ok := it.Location().Coordinates()
	if !ok {
		return NoGeoBucket
	}
	return geo.CellAt(lat, lon, r.cfg.LocationCell).String()
}

// LocationBuckets returns the lookup fan-out for an item: its own cell
// first, the surrounding cells, then the no-geo bucket so reports without
// coordinates stay reachable. Items without coordinates fan out over the
// no-geo bucket only.
func (r *Repo) LocationBuckets(it *domitem.Item) []string {
	lat, lon, ok := it.Location().Coordinates()
	if !ok {
		return []string{NoGeoBucket}
	}
	own := geo.CellAt(lat, lon, r.cfg.LocationCell)
	out := []string{own.String()}
	for _, n := range own.Neighbors() {
		if n != own {
			out = append(out, n.String())
		}
	}
	return append(out, NoGeoBucket)
}

// Put stores an item and refreshes its index memberships. Existing
// memberships are removed first so edits and archival move the item
// between buckets instead of leaking stale entries.
func (r *Repo) Put(ctx context.Context, it *domitem.Item) error {
	key := r.itemKey(it.ID())

	// Drop old memberships when overwriting.
	if old, err := r.Get(ctx, it.ID()); err == nil {
		if old.Status() != it.Status() {
			if remErr := r.store.SRem(ctx, r.statusKey(old.Status()), it.ID()); remErr != nil {
				return fmt.Errorf("status index rem: %w", remErr)
			}
		}
		if remErr := r.removeFromIndex(ctx, &old); remErr != nil {
			return remErr
		}
	} else if !errors.Is(err, domain.ErrItemNotFound) {
		return fmt.Errorf("read existing item %s: %w", it.ID(), err)
	}

	if err := r.store.HSet(ctx, key, itemToHash(it)); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}

	// Status membership is kept for every lifecycle state so counts
	// include resolved and archived items.
	if err := r.store.SAdd(ctx, r.statusKey(it.Status()), it.ID()); err != nil {
		return fmt.Errorf("status index add: %w", err)
	}

	// Archived (and otherwise inactive) items are retained for audit but
	// excluded from candidate generation.
	if !it.Active() {
		return nil
	}
	return r.addToIndex(ctx, it)
}

// Get returns an item by ID.
func (r *Repo) Get(ctx context.Context, id string) (domitem.Item, error) {
	m, err := r.store.HGetAll(ctx, r.itemKey(id))
	if err != nil {
		return domitem.Item{}, fmt.Errorf("hgetall %s: %w", id, err)
	}
	if len(m) == 0 {
		return domitem.Item{}, domain.ErrItemNotFound
	}
	return itemFromHash(id, m)
}

// GetActiveItemsByBucket returns active opposite-party items in one
// (kind, category, location bucket, time bucket) index cell.
func (r *Repo) GetActiveItemsByBucket(
	ctx context.Context, kind domitem.Kind, category, locationBucket string, timeBucket int64,
) ([]domitem.Item, error) {
	ids, err := r.store.SMembers(ctx, r.bucketKey(kind, category, locationBucket, timeBucket))
	if err != nil {
		return nil, fmt.Errorf("bucket members: %w", err)
	}
	return r.fetchActive(ctx, ids)
}

// GetActiveItemsByCategoryWindow returns active items of a kind and
// category across the given time buckets, ignoring location. Used when
// the location-constrained lookup yields too few candidates.
func (r *Repo) GetActiveItemsByCategoryWindow(
	ctx context.Context, kind domitem.Kind, category string, timeBuckets []int64,
) ([]domitem.Item, error) {
	keys := make([]string, len(timeBuckets))
	for i, tb := range timeBuckets {
		keys[i] = r.categoryKey(kind, category, tb)
	}
	memberSets, err := r.store.SMembersMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("category window members: %w", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, members := range memberSets {
		for _, id := range members {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return r.fetchActive(ctx, ids)
}

// ListActiveByCategory returns active items of a kind and category whose
// event dates fall in the [since, until] window.
func (r *Repo) ListActiveByCategory(
	ctx context.Context, kind domitem.Kind, category string, since, until time.Time,
) ([]domitem.Item, error) {
	var buckets []int64
	for tb := r.TimeBucket(since); tb <= r.TimeBucket(until); tb++ {
		buckets = append(buckets, tb)
	}
	return r.GetActiveItemsByCategoryWindow(ctx, kind, category, buckets)
}

// CountByStatus returns the number of items in each lifecycle state.
func (r *Repo) CountByStatus(ctx context.Context) (map[domitem.Status]int, error) {
	statuses := []domitem.Status{
		domitem.StatusActive, domitem.StatusMatched,
		domitem.StatusResolved, domitem.StatusArchived,
	}
	keys := make([]string, len(statuses))
	for i, st := range statuses {
		keys[i] = r.statusKey(st)
	}

	memberSets, err := r.store.SMembersMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("status members: %w", err)
	}

	counts := make(map[domitem.Status]int, len(statuses))
	for i, st := range statuses {
		counts[st] = len(memberSets[i])
	}
	return counts, nil
}

// ListByReporter returns all items submitted by a reporter.
func (r *Repo) ListByReporter(ctx context.Context, reporterID string) ([]domitem.Item, error) {
	ids, err := r.store.SMembers(ctx, r.reporterKey(reporterID))
	if err != nil {
		return nil, fmt.Errorf("reporter members: %w", err)
	}
	return r.fetch(ctx, ids, nil)
}

// fetchActive hydrates items by ID, keeping only active ones. Missing
// entries (index drift) are skipped.
func (r *Repo) fetchActive(ctx context.Context, ids []string) ([]domitem.Item, error) {
	return r.fetch(ctx, ids, func(it *domitem.Item) bool { return it.Active() })
}

func (r *Repo) fetch(
	ctx context.Context, ids []string, keep func(*domitem.Item) bool,
) ([]domitem.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.itemKey(id)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi: %w", err)
	}

	items := make([]domitem.Item, 0, len(ids))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		it, err := itemFromHash(ids[i], m)
		if err != nil {
			return nil, fmt.Errorf("hydrate item %s: %w", ids[i], err)
		}
		if keep == nil || keep(&it) {
			items = append(items, it)
		}
	}
	return items, nil
}

// GetActiveItemsNear returns active items with coordinates within radiusM
// meters of a point, ordered nearest first.
func (r *Repo) GetActiveItemsNear(
	ctx context.Context, lat, lon, radiusM float64,
) ([]domitem.Item, error) {
	keys := make([]string, 0, 16)
	for _, cell := range geo.CellsWithin(lat, lon, radiusM, r.cfg.LocationCell) {
		keys = append(keys, r.geoKey(cell.String()))
	}
	memberSets, err := r.store.SMembersMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("geo members: %w", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, members := range memberSets {
		for _, id := range members {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	items, err := r.fetchActive(ctx, ids)
	if err != nil {
		return nil, err
	}

	type hit struct {
		it   domitem.Item
		dist float64
	}
	hits := make([]hit, 0, len(items))
	for i := range items {
		clat, clon, ok := items[i].Location().Coordinates()
		if !ok {
			continue
		}
		if d := geo.Haversine(lat, lon, clat, clon); d <= radiusM {
			hits = append(hits, hit{it: items[i], dist: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].it.ID() < hits[j].it.ID()
	})

	out := make([]domitem.Item, len(hits))
	for i, h := range hits {
		out[i] = h.it
	}
	return out, nil
}

func (r *Repo) addToIndex(ctx context.Context, it *domitem.Item) error {
	tb := r.TimeBucket(it.EventDate())
	lb := r.LocationBucket(it)
	if err := r.store.SAdd(ctx, r.bucketKey(it.Kind(), it.Category(), lb, tb), it.ID()); err != nil {
		return fmt.Errorf("index bucket add: %w", err)
	}
	if err := r.store.SAdd(ctx, r.categoryKey(it.Kind(), it.Category(), tb), it.ID()); err != nil {
		return fmt.Errorf("index category add: %w", err)
	}
	if err := r.store.SAdd(ctx, r.reporterKey(it.ReporterID()), it.ID()); err != nil {
		return fmt.Errorf("index reporter add: %w", err)
	}
	if lb != NoGeoBucket {
		if err := r.store.SAdd(ctx, r.geoKey(lb), it.ID()); err != nil {
			return fmt.Errorf("index geo add: %w", err)
		}
	}
	return nil
}

func (r *Repo) removeFromIndex(ctx context.Context, it *domitem.Item) error {
	tb := r.TimeBucket(it.EventDate())
	lb := r.LocationBucket(it)
	if err := r.store.SRem(ctx, r.bucketKey(it.Kind(), it.Category(), lb, tb), it.ID()); err != nil {
		return fmt.Errorf("index bucket rem: %w", err)
	}
	if err := r.store.SRem(ctx, r.categoryKey(it.Kind(), it.Category(), tb), it.ID()); err != nil {
		return fmt.Errorf("index category rem: %w", err)
	}
	if lb != NoGeoBucket {
		if err := r.store.SRem(ctx, r.geoKey(lb), it.ID()); err != nil {
			return fmt.Errorf("index geo rem: %w", err)
		}
	}
	return nil
}

func (r *Repo) itemKey(id string) string {
	return fmt.Sprintf("%sitem:%s", r.cfg.KeyPrefix, id)
}

func (r *Repo) bucketKey(kind domitem.Kind, category, locationBucket string, timeBucket int64) string {
	return fmt.Sprintf("%sbucket:%s:%s:%s:%d", r.cfg.KeyPrefix, kind, category, locationBucket, timeBucket)
}

func (r *Repo) categoryKey(kind domitem.Kind, category string, timeBucket int64) string {
	return fmt.Sprintf("%scat:%s:%s:%d", r.cfg.KeyPrefix, kind, category, timeBucket)
}

func (r *Repo) reporterKey(reporterID string) string {
	return fmt.Sprintf("%sreporter:%s", r.cfg.KeyPrefix, reporterID)
}

func (r *Repo) geoKey(cell string) string {
	return fmt.Sprintf("%sgeo:%s", r.cfg.KeyPrefix, cell)
}

func (r *Repo) statusKey(status domitem.Status) string {
	return fmt.Sprintf("%sstatus:%s", r.cfg.KeyPrefix, status)
}
