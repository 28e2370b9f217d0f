// Package events carries item lifecycle notifications between the item
// service and the matching pipeline over a Watermill pub/sub.
package events

import "time"

// Topics for item lifecycle events.
const (
	TopicItemCreated  = "item.created"
	TopicItemUpdated  = "item.updated"
	TopicItemArchived = "item.archived"
)

// ItemEvent is the payload published on every item topic.
type ItemEvent struct {
	ItemID string `json:"item_id"`
	Kind   string `json:"kind"`
	// ScoringChanged marks updates that touched a scoring-relevant field
	// (category, location, event date, text, tags). Only these trigger
	// match re-evaluation.
	ScoringChanged bool      `json:"scoring_changed"`
	OccurredAt     time.Time `json:"occurred_at"`
}
