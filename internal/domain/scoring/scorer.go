// Package scoring implements the deterministic multi-signal similarity
// scorer between one lost and one found item report. Scoring is pure:
// no I/O, no clock reads, no dependence on call order.
package scoring

import (
	"math"
	"time"

	"github.com/trackback/matchengine/internal/domain/geo"
	"github.com/trackback/matchengine/internal/domain/item"
)

// Weights are the per-signal maximum contributions. They sum to 100.
type Weights struct {
	Category int
	Location int
	Temporal int
	Text     int
	Tags     int
}

// DefaultWeights returns the standard signal weights.
func DefaultWeights() Weights {
	return Weights{Category: 25, Location: 20, Temporal: 20, Text: 20, Tags: 15}
}

// Total returns the weight sum.
func (w Weights) Total() int {
	return w.Category + w.Location + w.Temporal + w.Text + w.Tags
}

// Config tunes the distance and time decay curves.
type Config struct {
	Weights Weights
	// FullCreditDistanceM is the great-circle distance at or under which
	// location proximity earns full credit.
	FullCreditDistanceM float64
	// MaxDistanceM is the distance at or beyond which location credit is zero.
	MaxDistanceM float64
	// FullCreditWindow is the event-date gap at or under which temporal
	// proximity earns full credit.
	FullCreditWindow time.Duration
	// MaxWindow is the event-date gap at or beyond which temporal credit is zero.
	MaxWindow time.Duration
}

// DefaultConfig returns the standard scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights:             DefaultWeights(),
		FullCreditDistanceM: 200,
		MaxDistanceM:        5_000,
		FullCreditWindow:    24 * time.Hour,
		MaxWindow:           14 * 24 * time.Hour,
	}
}

// Breakdown carries the weighted sub-scores behind a total.
type Breakdown struct {
	Category float64
	Location float64
	Temporal float64
	Text     float64
	Tags     float64
	// Degraded is set when location scoring fell back to lexical address
	// overlap because at least one item lacks coordinates. Informational,
	// never an error.
	Degraded bool
}

// Total returns the rounded composite score in [0, weights total].
func (b Breakdown) Total() int {
	return int(math.Round(b.Category + b.Location + b.Temporal + b.Text + b.Tags))
}

// Scorer computes composite similarity scores.
type Scorer struct {
	cfg Config
}

// New creates a scorer, filling zero config fields with defaults.
func New(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.Weights.Total() == 0 {
		cfg.Weights = def.Weights
	}
	if cfg.FullCreditDistanceM <= 0 {
		cfg.FullCreditDistanceM = def.FullCreditDistanceM
	}
	if cfg.MaxDistanceM <= cfg.FullCreditDistanceM {
		cfg.MaxDistanceM = def.MaxDistanceM
	}
	if cfg.FullCreditWindow <= 0 {
		cfg.FullCreditWindow = def.FullCreditWindow
	}
	if cfg.MaxWindow <= cfg.FullCreditWindow {
		cfg.MaxWindow = def.MaxWindow
	}
	return &Scorer{cfg: cfg}
}

// Score computes the composite similarity between a lost and a found item.
// The result is deterministic in the two items' field values.
func (s *Scorer) Score(lost, found *item.Item) Breakdown {
	w := s.cfg.Weights
	b := Breakdown{
		Category: float64(w.Category) * categoryScore(lost, found),
		Temporal: float64(w.Temporal) * s.temporalScore(lost, found),
		Text:     float64(w.Text) * textScore(lost, found),
		Tags:     float64(w.Tags) * tagScore(lost, found),
	}
	loc, degraded := s.locationScore(lost, found)
	b.Location = float64(w.Location) * loc
	b.Degraded = degraded
	return b
}

// categoryScore is all-or-nothing. Empty or unknown categories score 0.
func categoryScore(lost, found *item.Item) float64 {
	if lost.Category() == "" || found.Category() == "" {
		return 0
	}
	if lost.Category() == found.Category() {
		return 1
	}
	return 0
}

// locationScore prefers great-circle distance when both items carry
// coordinates, otherwise falls back to lexical address overlap.
func (s *Scorer) locationScore(lost, found *item.Item) (score float64, degraded bool) {
	lat1, lon1, ok1 := lost.Location().Coordinates()
	lat2, lon2, ok2 := found.Location().Coordinates()
	if ok1 && ok2 {
		return distanceCredit(geo.Haversine(lat1, lon1, lat2, lon2),
			s.cfg.FullCreditDistanceM, s.cfg.MaxDistanceM), false
	}
	return Dice(Tokenize(lost.Location().Address()), Tokenize(found.Location().Address())), true
}

// distanceCredit interpolates linearly from full credit at fullM to zero at maxM.
func distanceCredit(distM, fullM, maxM float64) float64 {
	if distM <= fullM {
		return 1
	}
	if distM >= maxM {
		return 0
	}
	return (maxM - distM) / (maxM - fullM)
}

// temporalScore gives full credit within FullCreditWindow, decaying
// linearly to zero at MaxWindow.
func (s *Scorer) temporalScore(lost, found *item.Item) float64 {
	diff := lost.EventDate().Sub(found.EventDate())
	if diff < 0 {
		diff = -diff
	}
	if diff <= s.cfg.FullCreditWindow {
		return 1
	}
	if diff >= s.cfg.MaxWindow {
		return 0
	}
	return float64(s.cfg.MaxWindow-diff) / float64(s.cfg.MaxWindow-s.cfg.FullCreditWindow)
}

// textScore is token-set Jaccard over normalized title+description tokens.
func textScore(lost, found *item.Item) float64 {
	return Jaccard(
		Tokenize(lost.Title()+" "+lost.Description()),
		Tokenize(found.Title()+" "+found.Description()),
	)
}

// tagScore is Jaccard over the normalized tag sets.
func tagScore(lost, found *item.Item) float64 {
	return Jaccard(TokenSet(lost.Tags()), TokenSet(found.Tags()))
}
