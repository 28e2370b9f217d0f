// Package gate implements the disclosure gate: the single point where
// reporter contact details leave the engine after a match is confirmed.
package gate

import (
	"context"

	"go.uber.org/zap"

	domitem "github.com/trackback/matchengine/internal/domain/item"
)

// Disclosure is a contact release payload.
type Disclosure struct {
	MatchID      string         `json:"match_id"`
	LostContact  ContactPayload `json:"lost_reporter_contact"`
	FoundContact ContactPayload `json:"found_reporter_contact"`
}

// ContactPayload is the wire form of a reporter contact.
type ContactPayload struct {
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Preferred string `json:"preferred,omitempty"`
}

func contactPayload(c domitem.Contact) ContactPayload {
	return ContactPayload{Email: c.Email, Phone: c.Phone, Preferred: c.Preferred}
}

// LogGate records disclosures in the log. Default mode; delivery of the
// actual notification belongs to a downstream system.
type LogGate struct {
	logger *zap.Logger
}

// NewLogGate creates a logging disclosure gate.
func NewLogGate(logger *zap.Logger) *LogGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogGate{logger: logger}
}

// OnMatchConfirmed logs that contacts were released. Contact values are
// kept out of the log line.
func (g *LogGate) OnMatchConfirmed(
	_ context.Context, matchID string,
	lostContact, foundContact domitem.Contact,
) error {
	g.logger.Info("contact disclosure released",
		zap.String("match_id", matchID),
		zap.Bool("lost_contact_present", lostContact.Email != "" || lostContact.Phone != ""),
		zap.Bool("found_contact_present", foundContact.Email != "" || foundContact.Phone != ""),
	)
	return nil
}

// HealthCheck always passes; logging cannot fail usefully.
func (g *LogGate) HealthCheck(context.Context) error { return nil }
