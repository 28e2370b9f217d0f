package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	domitem "github.com/trackback/matchengine/internal/domain/item"
)

// WebhookConfig tunes the webhook disclosure gate.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// WebhookGate POSTs disclosures to an external endpoint. The call is
// wrapped in a circuit breaker so a dead endpoint does not stall every
// confirmation.
type WebhookGate struct {
	cfg     WebhookConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *zap.Logger
}

// NewWebhookGate creates a webhook disclosure gate.
func NewWebhookGate(cfg WebhookConfig, logger *zap.Logger) *WebhookGate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:     "disclosure-webhook",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("disclosure webhook breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &WebhookGate{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
		logger:  logger,
	}
}

// OnMatchConfirmed delivers the disclosure payload.
func (g *WebhookGate) OnMatchConfirmed(
	ctx context.Context, matchID string,
	lostContact, foundContact domitem.Contact,
) error {
	payload, err := json.Marshal(Disclosure{
		MatchID:      matchID,
		LostContact:  contactPayload(lostContact),
		FoundContact: contactPayload(foundContact),
	})
	if err != nil {
		return fmt.Errorf("marshal disclosure: %w", err)
	}

	_, err = g.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, g.post(ctx, payload)
	})
	if err != nil {
		return fmt.Errorf("disclosure webhook: %w", err)
	}

	g.logger.Info("contact disclosure delivered", zap.String("match_id", matchID))
	return nil
}

// HealthCheck reports the breaker state. An open breaker means recent
// deliveries failed and new disclosures are being short-circuited.
func (g *WebhookGate) HealthCheck(context.Context) error {
	if g.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("disclosure webhook circuit open")
	}
	return nil
}

func (g *WebhookGate) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}
