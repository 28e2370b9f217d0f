// Package pipeline turns item lifecycle events into match evaluations.
// It subscribes to the event bus, generates candidates for each new or
// edited item and scores them under a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/trackback/matchengine/internal/domain"
	domitem "github.com/trackback/matchengine/internal/domain/item"
	"github.com/trackback/matchengine/internal/events"
	"github.com/trackback/matchengine/internal/metrics"
	"github.com/trackback/matchengine/internal/usecase/candidate"
)

// Config holds pipeline settings.
type Config struct {
	// Workers bounds concurrent scoring per triggering item.
	Workers int
	// FetchRetryMax caps item store read retries after an event arrives.
	FetchRetryMax uint64
}

// Pipeline consumes item events and maintains the match set.
type Pipeline struct {
	bus       Subscriber
	items     ItemSource
	generator CandidateSource
	matches   MatchEngine
	scorer    Scorer
	cfg       Config
	logger    *zap.Logger
}

// New creates a pipeline.
func New(
	bus Subscriber,
	items ItemSource,
	generator CandidateSource,
	matches MatchEngine,
	scorer Scorer,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.FetchRetryMax == 0 {
		cfg.FetchRetryMax = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		bus:       bus,
		items:     items,
		generator: generator,
		matches:   matches,
		scorer:    scorer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run subscribes to all item topics and processes events until ctx is
// cancelled. It blocks; run it in its own goroutine.
func (p *Pipeline) Run(ctx context.Context) error {
	topics := []string{events.TopicItemCreated, events.TopicItemUpdated, events.TopicItemArchived}

	var wg sync.WaitGroup
	for _, topic := range topics {
		ch, err := p.bus.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		wg.Add(1)
		go func(topic string, ch <-chan *message.Message) {
			defer wg.Done()
			p.consume(ctx, topic, ch)
		}(topic, ch)
	}

	wg.Wait()
	return nil
}

func (p *Pipeline) consume(ctx context.Context, topic string, ch <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p.handle(ctx, topic, msg)
			// Events carry only the item ID; state is re-read from the
			// store, so a failed handling is not worth redelivery.
			msg.Ack()
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, topic string, msg *message.Message) {
	ev, err := events.DecodeItemEvent(msg)
	if err != nil {
		p.logger.Error("malformed item event", zap.String("topic", topic), zap.Error(err))
		metrics.ItemEventsTotal.WithLabelValues(topic, "malformed").Inc()
		return
	}

	log := p.logger.With(zap.String("topic", topic), zap.String("item_id", ev.ItemID))

	var status string
	switch topic {
	case events.TopicItemCreated:
		status = p.handleUpsert(ctx, ev, false, log)
	case events.TopicItemUpdated:
		status = p.handleUpsert(ctx, ev, true, log)
	case events.TopicItemArchived:
		log.Info("item archived, candidate indexes already pruned")
		status = "ok"
	default:
		status = "ignored"
	}
	metrics.ItemEventsTotal.WithLabelValues(topic, status).Inc()
}

// handleUpsert re-evaluates matches for a created or edited item.
func (p *Pipeline) handleUpsert(ctx context.Context, ev events.ItemEvent, isEdit bool, log *zap.Logger) string {
	it, err := p.fetchItem(ctx, ev.ItemID)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			log.Warn("item gone before evaluation")
			return "skipped"
		}
		log.Error("fetch item failed", zap.Error(err))
		return "error"
	}

	if isEdit {
		if !ev.ScoringChanged {
			return "skipped"
		}
		if err := p.matches.InvalidateOnEdit(ctx, &it); err != nil {
			log.Error("invalidate on edit failed", zap.Error(err))
			return "error"
		}
	}

	if !it.Active() {
		return "skipped"
	}

	created, err := p.evaluate(ctx, &it)
	if err != nil {
		log.Error("candidate evaluation failed", zap.Error(err))
		return "error"
	}
	if created > 0 {
		log.Info("matches created", zap.Int("count", created))
	}
	return "ok"
}

// fetchItem reads the item with retries. The event is published after the
// write, so transient store failures are the only reason a read misses.
func (p *Pipeline) fetchItem(ctx context.Context, id string) (domitem.Item, error) {
	var it domitem.Item
	op := func() error {
		var err error
		it, err = p.items.Get(ctx, id)
		if errors.Is(err, domain.ErrItemNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, p.cfg.FetchRetryMax), ctx))
	return it, err
}

// evaluate scores every candidate for the item and records the pairs that
// clear the creation threshold. Returns the number of matches created.
func (p *Pipeline) evaluate(ctx context.Context, it *domitem.Item) (int, error) {
	cands, err := p.generator.Generate(ctx, it)
	if err != nil {
		return 0, fmt.Errorf("generate candidates: %w", err)
	}
	metrics.CandidateBatchSize.Observe(float64(len(cands)))
	if len(cands) == 0 {
		return 0, nil
	}

	timer := prometheus.NewTimer(metrics.ScoringDuration)
	defer timer.ObserveDuration()

	jobs := make(chan candidate.Candidate)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		firstErr error
	)

	workers := p.cfg.Workers
	if workers > len(cands) {
		workers = len(cands)
	}
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				ok, err := p.scoreAndCreate(ctx, it, &c.Item)
				mu.Lock()
				if err != nil && firstErr == nil {
					firstErr = err
				}
				if ok {
					created++
				}
				mu.Unlock()
			}
		}()
	}

	for _, c := range cands {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return created, ctx.Err()
		case jobs <- c:
		}
	}
	close(jobs)
	wg.Wait()

	return created, firstErr
}

func (p *Pipeline) scoreAndCreate(ctx context.Context, it, other *domitem.Item) (bool, error) {
	lost, found := it, other
	if it.Kind() == domitem.KindFound {
		lost, found = other, it
	}

	breakdown := p.scorer.Score(lost, found)
	if breakdown.Degraded {
		metrics.DegradedScoringsTotal.Inc()
	}

	score := breakdown.Total()
	if score < p.matches.CreateThreshold() {
		return false, nil
	}

	_, created, err := p.matches.Create(ctx, lost, found, score)
	if err != nil {
		return false, fmt.Errorf("create match %s/%s: %w", lost.ID(), found.ID(), err)
	}
	if created {
		metrics.MatchesCreatedTotal.Inc()
	}
	return created, nil
}
