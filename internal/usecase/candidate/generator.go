// Package candidate selects the opposite-kind items worth scoring against
// a report, using the bucket index instead of full pairwise comparison.
package candidate

import (
	"context"
	"fmt"
	"sort"

	domitem "github.com/trackback/matchengine/internal/domain/item"
)

// Candidate pairs an opposite-kind item with its bucket proximity rank.
// Lower rank means a closer bucket.
type Candidate struct {
	Item domitem.Item
	Rank int
}

// relaxedRank sorts location-relaxed candidates behind every bucket hit.
const relaxedRank = 10

// Generator produces bounded candidate lists from the bucket index.
type Generator struct {
	source ItemSource
	// MaxCandidates caps the output; MinCandidates triggers the
	// location-relaxed fallback lookup.
	maxCandidates int
	minCandidates int
}

// Config tunes candidate generation limits.
type Config struct {
	MaxCandidates int
	MinCandidates int
}

// New creates a candidate generator.
func New(source ItemSource, cfg Config) *Generator {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 200
	}
	if cfg.MinCandidates <= 0 {
		cfg.MinCandidates = 5
	}
	return &Generator{
		source:        source,
		maxCandidates: cfg.MaxCandidates,
		minCandidates: cfg.MinCandidates,
	}
}

// Generate returns opposite-kind candidates for an item, ordered by bucket
// proximity then item ID, capped at MaxCandidates. Inactive input yields
// nothing. Generation performs reads only; cancelling mid-flight leaves
// no partial state behind.
func (g *Generator) Generate(ctx context.Context, it *domitem.Item) ([]Candidate, error) {
	if !it.Active() {
		return nil, nil
	}

	opposite := it.Kind().Opposite()
	ownBucket := g.source.TimeBucket(it.EventDate())
	// ±1 adjacent bucket tolerates reports filed near a boundary.
	timeBuckets := []int64{ownBucket - 1, ownBucket, ownBucket + 1}
	locBuckets := g.source.LocationBuckets(it)

	seen := map[string]bool{it.ID(): true}
	var out []Candidate

	for _, tb := range timeBuckets {
		timeDist := int(tb - ownBucket)
		if timeDist < 0 {
			timeDist = -timeDist
		}
		for locRank, lb := range locBuckets {
			items, err := g.source.GetActiveItemsByBucket(ctx, opposite, it.Category(), lb, tb)
			if err != nil {
				return nil, fmt.Errorf("bucket lookup %s/%s/%d: %w", it.Category(), lb, tb, err)
			}
			for i := range items {
				c := items[i]
				if seen[c.ID()] {
					continue
				}
				seen[c.ID()] = true
				out = append(out, Candidate{Item: c, Rank: timeDist + rankForLoc(locRank)})
			}
		}
	}

	// Sparse data: drop the location constraint rather than returning nothing.
	if len(out) < g.minCandidates {
		relaxed, err := g.source.GetActiveItemsByCategoryWindow(ctx, opposite, it.Category(), timeBuckets)
		if err != nil {
			return nil, fmt.Errorf("relaxed lookup %s: %w", it.Category(), err)
		}
		for i := range relaxed {
			c := relaxed[i]
			if seen[c.ID()] {
				continue
			}
			seen[c.ID()] = true
			out = append(out, Candidate{Item: c, Rank: relaxedRank})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].Item.ID() < out[j].Item.ID()
	})

	if len(out) > g.maxCandidates {
		out = out[:g.maxCandidates]
	}
	return out, nil
}

// rankForLoc maps the position in the location bucket fan-out to a
// proximity rank: 0 for the item's own cell, 1 for any neighbor.
func rankForLoc(fanOutIdx int) int {
	if fanOutIdx == 0 {
		return 0
	}
	return 1
}
