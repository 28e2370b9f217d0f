package match

import (
	"fmt"
	"strconv"
	"time"

	dommatch "github.com/trackback/matchengine/internal/domain/match"
)

// matchToHash converts a domain Match to a map for HSET. CreatedAt is
// stored at millisecond precision so listing tie-breaks stay stable.
func matchToHash(m *dommatch.Match) map[string]string {
	return map[string]string{
		"lost_item_id":  m.LostItemID(),
		"found_item_id": m.FoundItemID(),
		"score":         strconv.Itoa(m.Score()),
		"status":        string(m.Status()),
		"created_at":    strconv.FormatInt(m.CreatedAt().UnixMilli(), 10),
		"verified_by":   m.VerifiedBy(),
	}
}

// matchFromHash hydrates a domain Match from an HGETALL result map.
func matchFromHash(id string, m map[string]string) (dommatch.Match, error) {
	score, err := strconv.Atoi(m["score"])
	if err != nil {
		return dommatch.Match{}, fmt.Errorf("invalid score: %w", err)
	}
	createdMilli, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return dommatch.Match{}, fmt.Errorf("invalid created_at: %w", err)
	}

	return dommatch.Reconstruct(
		id,
		m["lost_item_id"],
		m["found_item_id"],
		score,
		dommatch.Status(m["status"]),
		time.UnixMilli(createdMilli).UTC(),
		m["verified_by"],
	), nil
}
