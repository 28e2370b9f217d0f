package pipeline

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	domitem "github.com/trackback/matchengine/internal/domain/item"
	dommatch "github.com/trackback/matchengine/internal/domain/match"
	"github.com/trackback/matchengine/internal/domain/scoring"
	"github.com/trackback/matchengine/internal/usecase/candidate"
)

// ItemSource reads items triggering evaluation.
type ItemSource interface {
	Get(ctx context.Context, id string) (domitem.Item, error)
}

// CandidateSource produces opposite-kind candidates for an item.
type CandidateSource interface {
	Generate(ctx context.Context, it *domitem.Item) ([]candidate.Candidate, error)
}

// MatchEngine records matches and re-evaluates them on edits.
type MatchEngine interface {
	Create(ctx context.Context, lost, found *domitem.Item, score int) (dommatch.Match, bool, error)
	InvalidateOnEdit(ctx context.Context, edited *domitem.Item) error
	CreateThreshold() int
}

// Scorer computes pair similarity.
type Scorer interface {
	Score(lost, found *domitem.Item) scoring.Breakdown
}

// Subscriber delivers item lifecycle events.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}
