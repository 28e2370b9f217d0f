package item

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	domitem "github.com/trackback/matchengine/internal/domain/item"
)

// itemToHash converts a domain Item to a map for HSET.
func itemToHash(it *domitem.Item) map[string]string {
	tagsJSON, _ := json.Marshal(it.Tags())
	imagesJSON, _ := json.Marshal(it.Images())

	m := map[string]string{
		"kind":              string(it.Kind()),
		"reporter_id":       it.ReporterID(),
		"title":             it.Title(),
		"description":       it.Description(),
		"category":          it.Category(),
		"address":           it.Location().Address(),
		"event_date":        strconv.FormatInt(it.EventDate().Unix(), 10),
		"reported_at":       strconv.FormatInt(it.ReportedAt().Unix(), 10),
		"tags_json":         string(tagsJSON),
		"status":            string(it.Status()),
		"contact_email":     it.Contact().Email,
		"contact_phone":     it.Contact().Phone,
		"preferred_contact": it.Contact().Preferred,
		"reward":            strconv.FormatFloat(it.Reward(), 'f', -1, 64),
		"images_json":       string(imagesJSON),
		"organization_id":   it.OrganizationID(),
	}

	if lat, lon, ok := it.Location().Coordinates(); ok {
		m["lat"] = strconv.FormatFloat(lat, 'f', -1, 64)
		m["lon"] = strconv.FormatFloat(lon, 'f', -1, 64)
	}
	return m
}

// itemFromHash hydrates a domain Item from an HGETALL result map.
func itemFromHash(id string, m map[string]string) (domitem.Item, error) {
	eventDate, err := parseUnix(m["event_date"])
	if err != nil {
		return domitem.Item{}, fmt.Errorf("invalid event_date: %w", err)
	}
	reportedAt, err := parseUnix(m["reported_at"])
	if err != nil {
		return domitem.Item{}, fmt.Errorf("invalid reported_at: %w", err)
	}

	loc := domitem.NewLocation(m["address"])
	if latStr, ok := m["lat"]; ok && latStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(m["lon"], 64)
		if latErr == nil && lonErr == nil {
			if geoLoc, geoErr := domitem.NewGeoLocation(m["address"], lat, lon); geoErr == nil {
				loc = geoLoc
			}
		}
	}

	var tags []string
	if m["tags_json"] != "" {
		if err := json.Unmarshal([]byte(m["tags_json"]), &tags); err != nil {
			return domitem.Item{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	var images []string
	if m["images_json"] != "" {
		if err := json.Unmarshal([]byte(m["images_json"]), &images); err != nil {
			return domitem.Item{}, fmt.Errorf("unmarshal images: %w", err)
		}
	}

	reward := 0.0
	if m["reward"] != "" {
		if parsed, err := strconv.ParseFloat(m["reward"], 64); err == nil {
			reward = parsed
		}
	}

	return domitem.Reconstruct(
		id,
		domitem.Kind(m["kind"]),
		m["reporter_id"],
		m["title"],
		m["description"],
		m["category"],
		loc,
		eventDate,
		reportedAt,
		tags,
		domitem.Status(m["status"]),
		domitem.Contact{
			Email:     m["contact_email"],
			Phone:     m["contact_phone"],
			Preferred: m["preferred_contact"],
		},
		reward,
		images,
		m["organization_id"],
	), nil
}

func parseUnix(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
