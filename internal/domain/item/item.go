package item

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/trackback/matchengine/internal/domain"
	"github.com/trackback/matchengine/internal/domain/geo"
)

// Kind distinguishes lost reports from found reports.
type Kind string

// Item kinds.
const (
	KindLost  Kind = "lost"
	KindFound Kind = "found"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == KindLost || k == KindFound }

// Opposite returns the kind matched against this one.
func (k Kind) Opposite() Kind {
	if k == KindLost {
		return KindFound
	}
	return KindLost
}

// Status is the item lifecycle state.
type Status string

// Item statuses.
const (
	StatusActive   Status = "active"
	StatusMatched  Status = "matched"
	StatusResolved Status = "resolved"
	StatusArchived Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusMatched, StatusResolved, StatusArchived:
		return true
	}
	return false
}

// Categories is the fixed category set reports are filed under.
var Categories = []string{
	"Electronics", "Documents", "Accessories", "Bags", "Keys",
	"Jewelry", "Clothing", "Books", "Sports Equipment", "Other",
}

var categorySet = func() map[string]bool {
	m := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		m[c] = true
	}
	return m
}()

// KnownCategory reports whether c is in the fixed category set.
func KnownCategory(c string) bool { return categorySet[c] }

// Location is a free-text address with optional coordinates.
type Location struct {
	address string
	lat     float64
	lon     float64
	hasGeo  bool
}

// NewLocation creates a location without coordinates.
func NewLocation(address string) Location {
	return Location{address: address}
}

// NewGeoLocation creates a location with coordinates.
func NewGeoLocation(address string, lat, lon float64) (Location, error) {
	if !geo.ValidateCoordinates(lat, lon) {
		return Location{}, fmt.Errorf("invalid coordinates lat=%f lon=%f: %w", lat, lon, domain.ErrValidation)
	}
	return Location{address: address, lat: lat, lon: lon, hasGeo: true}, nil
}

// Address returns the free-text address.
func (l Location) Address() string { return l.address }

// Coordinates returns latitude, longitude and whether they are present.
func (l Location) Coordinates() (lat, lon float64, ok bool) { return l.lat, l.lon, l.hasGeo }

// Contact holds reporter contact details, released only on match confirmation.
type Contact struct {
	Email     string
	Phone     string
	Preferred string // "email" or "phone"
}

// Item is a lost or found report (aggregate, immutable value object).
type Item struct {
	id             string
	kind           Kind
	reporterID     string
	title          string
	description    string
	category       string
	location       Location
	eventDate      time.Time
	reportedAt     time.Time
	tags           []string
	status         Status
	contact        Contact
	reward         float64
	images         []string
	organizationID string
}

// New validates and creates an Item. Tags are normalized (lowercased,
// trimmed, deduplicated, sorted). EventDate must not be after reportedAt.
func New(
	id string, kind Kind, reporterID, title, description, category string,
	location Location, eventDate, reportedAt time.Time, tags []string,
	contact Contact,
) (Item, error) {
	if id == "" {
		return Item{}, fmt.Errorf("item ID is required: %w", domain.ErrValidation)
	}
	if !kind.Valid() {
		return Item{}, fmt.Errorf("unknown item kind %q: %w", kind, domain.ErrValidation)
	}
	if reporterID == "" {
		return Item{}, fmt.Errorf("reporter ID is required: %w", domain.ErrValidation)
	}
	if title == "" {
		return Item{}, fmt.Errorf("title is required: %w", domain.ErrValidation)
	}
	if category != "" && !KnownCategory(category) {
		return Item{}, fmt.Errorf("unknown category %q: %w", category, domain.ErrValidation)
	}
	if reportedAt.IsZero() {
		reportedAt = time.Now().UTC()
	}
	if eventDate.IsZero() {
		eventDate = reportedAt
	}
	if eventDate.After(reportedAt) {
		return Item{}, fmt.Errorf("event date %s after reported date %s: %w",
			eventDate.Format(time.RFC3339), reportedAt.Format(time.RFC3339), domain.ErrValidation)
	}

	return Item{
		id:          id,
		kind:        kind,
		reporterID:  reporterID,
		title:       title,
		description: description,
		category:    category,
		location:    location,
		eventDate:   eventDate,
		reportedAt:  reportedAt,
		tags:        NormalizeTags(tags),
		status:      StatusActive,
		contact:     contact,
	}, nil
}

// Reconstruct creates an Item without validation (storage hydration).
func Reconstruct(
	id string, kind Kind, reporterID, title, description, category string,
	location Location, eventDate, reportedAt time.Time, tags []string,
	status Status, contact Contact, reward float64, images []string,
	organizationID string,
) Item {
	return Item{
		id: id, kind: kind, reporterID: reporterID, title: title,
		description: description, category: category, location: location,
		eventDate: eventDate, reportedAt: reportedAt, tags: tags,
		status: status, contact: contact, reward: reward, images: images,
		organizationID: organizationID,
	}
}

// ID returns the item identifier.
func (i *Item) ID() string { return i.id }

// Kind returns lost or found.
func (i *Item) Kind() Kind { return i.kind }

// ReporterID returns the reporting user's identifier.
func (i *Item) ReporterID() string { return i.reporterID }

// Title returns the report title.
func (i *Item) Title() string { return i.title }

// Description returns the free-text description.
func (i *Item) Description() string { return i.description }

// Category returns the item category.
func (i *Item) Category() string { return i.category }

// Location returns the report location.
func (i *Item) Location() Location { return i.location }

// EventDate returns when the item was lost or found.
func (i *Item) EventDate() time.Time { return i.eventDate }

// ReportedAt returns when the report was submitted.
func (i *Item) ReportedAt() time.Time { return i.reportedAt }

// Tags returns the normalized tag set.
func (i *Item) Tags() []string { return i.tags }

// Status returns the item lifecycle status.
func (i *Item) Status() Status { return i.status }

// Contact returns the reporter contact details.
func (i *Item) Contact() Contact { return i.contact }

// Reward returns the offered reward, zero when none.
func (i *Item) Reward() float64 { return i.reward }

// Images returns opaque image URLs attached to the report.
func (i *Item) Images() []string { return i.images }

// OrganizationID returns the owning organization, empty for individual reports.
func (i *Item) OrganizationID() string { return i.organizationID }

// Active reports whether the item participates in candidate generation.
func (i *Item) Active() bool { return i.status == StatusActive }

// WithStatus returns a copy with the given status.
func (i *Item) WithStatus(s Status) Item {
	c := *i
	c.status = s
	return c
}

// WithReward returns a copy with the given reward.
func (i *Item) WithReward(r float64) Item {
	c := *i
	c.reward = r
	return c
}

// WithImages returns a copy with the given image URLs.
func (i *Item) WithImages(urls []string) Item {
	c := *i
	c.images = urls
	return c
}

// WithOrganization returns a copy owned by the given organization.
func (i *Item) WithOrganization(orgID string) Item {
	c := *i
	c.organizationID = orgID
	return c
}

// ScoringFingerprint summarizes the fields the similarity scorer reads.
// Two items with equal fingerprints always score identically, so an edit
// that keeps the fingerprint stable never requires match re-evaluation.
func (i *Item) ScoringFingerprint() string {
	lat, lon, hasGeo := i.location.Coordinates()
	geoPart := ""
	if hasGeo {
		geoPart = fmt.Sprintf("%.6f,%.6f", lat, lon)
	}
	return strings.Join([]string{
		i.category,
		i.location.address,
		geoPart,
		i.eventDate.UTC().Format(time.RFC3339),
		i.title,
		i.description,
		strings.Join(i.tags, ","),
	}, "|")
}

// NormalizeTags lowercases, trims, deduplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
