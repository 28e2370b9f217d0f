// Package item handles report CRUD and emits the lifecycle events that
// drive match generation.
package item

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackback/matchengine/internal/domain"
	domitem "github.com/trackback/matchengine/internal/domain/item"
	"github.com/trackback/matchengine/internal/events"
)

// Draft carries the fields for a new report.
type Draft struct {
	Kind           domitem.Kind
	ReporterID     string
	Title          string
	Description    string
	Category       string
	Address        string
	Lat, Lon       *float64
	EventDate      time.Time
	Tags           []string
	Contact        domitem.Contact
	Reward         float64
	Images         []string
	OrganizationID string
}

// Update carries a partial edit; nil fields are left unchanged.
type Update struct {
	Title       *string
	Description *string
	Category    *string
	Address     *string
	Lat, Lon    *float64
	EventDate   *time.Time
	Tags        *[]string
	Reward      *float64
	Images      *[]string
}

// Service handles item report CRUD.
type Service struct {
	repo   Repository
	pub    Publisher
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// New creates an item service.
func New(repo Repository, pub Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		pub:    pub,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// WithClock overrides time and ID sources (tests).
func (s *Service) WithClock(now func() time.Time, newID func() string) *Service {
	if now != nil {
		s.now = now
	}
	if newID != nil {
		s.newID = newID
	}
	return s
}

// Create validates, persists and announces a new report.
func (s *Service) Create(ctx context.Context, d Draft) (domitem.Item, error) {
	loc, err := buildLocation(d.Address, d.Lat, d.Lon)
	if err != nil {
		return domitem.Item{}, err
	}

	it, err := domitem.New(
		s.newID(), d.Kind, d.ReporterID, d.Title, d.Description, d.Category,
		loc, d.EventDate, s.now(), d.Tags, d.Contact,
	)
	if err != nil {
		return domitem.Item{}, err
	}
	if d.Reward > 0 {
		it = it.WithReward(d.Reward)
	}
	if len(d.Images) > 0 {
		it = it.WithImages(d.Images)
	}
	if d.OrganizationID != "" {
		it = it.WithOrganization(d.OrganizationID)
	}

	if err := s.repo.Put(ctx, &it); err != nil {
		return domitem.Item{}, fmt.Errorf("store item: %w", err)
	}

	s.publish(events.TopicItemCreated, &it, true)
	return it, nil
}

// Update applies a partial edit to an active report. Edits to archived
// items fail; edits to scoring-relevant fields trigger match re-evaluation
// downstream.
func (s *Service) Update(ctx context.Context, id string, u Update) (domitem.Item, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domitem.Item{}, fmt.Errorf("get item: %w", err)
	}
	if current.Status() == domitem.StatusArchived {
		return domitem.Item{}, fmt.Errorf("item %s: %w", id, domain.ErrItemArchived)
	}

	updated, err := applyUpdate(&current, u)
	if err != nil {
		return domitem.Item{}, err
	}

	scoringChanged := current.ScoringFingerprint() != updated.ScoringFingerprint()

	if err := s.repo.Put(ctx, &updated); err != nil {
		return domitem.Item{}, fmt.Errorf("store item: %w", err)
	}

	s.publish(events.TopicItemUpdated, &updated, scoringChanged)
	return updated, nil
}

// Archive removes a report from circulation. The record is retained for
// audit; candidate generation stops seeing it immediately.
func (s *Service) Archive(ctx context.Context, id string) (domitem.Item, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domitem.Item{}, fmt.Errorf("get item: %w", err)
	}
	if current.Status() == domitem.StatusArchived {
		return current, nil
	}

	archived := current.WithStatus(domitem.StatusArchived)
	if err := s.repo.Put(ctx, &archived); err != nil {
		return domitem.Item{}, fmt.Errorf("store item: %w", err)
	}

	s.publish(events.TopicItemArchived, &archived, false)
	return archived, nil
}

// Get returns a report by ID.
func (s *Service) Get(ctx context.Context, id string) (domitem.Item, error) {
	it, err := s.repo.Get(ctx, id)
	if err != nil {
		return domitem.Item{}, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

// ListByReporter returns a reporter's submissions.
func (s *Service) ListByReporter(ctx context.Context, reporterID string) ([]domitem.Item, error) {
	items, err := s.repo.ListByReporter(ctx, reporterID)
	if err != nil {
		return nil, fmt.Errorf("list by reporter: %w", err)
	}
	return items, nil
}

// Search returns active reports of one kind and category whose event
// dates fall in the [since, until] window.
func (s *Service) Search(
	ctx context.Context, kind domitem.Kind, category string, since, until time.Time,
) ([]domitem.Item, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown kind %q: %w", kind, domain.ErrValidation)
	}
	if !domitem.KnownCategory(category) {
		return nil, fmt.Errorf("unknown category %q: %w", category, domain.ErrValidation)
	}
	if until.Before(since) {
		return nil, fmt.Errorf("search window ends before it starts: %w", domain.ErrValidation)
	}

	items, err := s.repo.ListActiveByCategory(ctx, kind, category, since, until)
	if err != nil {
		return nil, fmt.Errorf("search by category: %w", err)
	}
	return items, nil
}

// Stats returns item counts per lifecycle state.
func (s *Service) Stats(ctx context.Context) (map[domitem.Status]int, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	return counts, nil
}

// Nearby returns active reports within radiusM meters of a point.
func (s *Service) Nearby(ctx context.Context, lat, lon, radiusM float64) ([]domitem.Item, error) {
	if radiusM <= 0 {
		return nil, fmt.Errorf("radius must be positive: %w", domain.ErrValidation)
	}
	items, err := s.repo.GetActiveItemsNear(ctx, lat, lon, radiusM)
	if err != nil {
		return nil, fmt.Errorf("nearby lookup: %w", err)
	}
	return items, nil
}

// publish announces an item event. The pipeline recovers missed events on
// the next edit, so a publish failure is logged rather than failing the write.
func (s *Service) publish(topic string, it *domitem.Item, scoringChanged bool) {
	ev := events.ItemEvent{
		ItemID:         it.ID(),
		Kind:           string(it.Kind()),
		ScoringChanged: scoringChanged,
		OccurredAt:     s.now(),
	}
	if err := s.pub.PublishItemEvent(topic, ev); err != nil {
		s.logger.Error("publish item event failed",
			zap.String("topic", topic),
			zap.String("item_id", it.ID()),
			zap.Error(err),
		)
	}
}

func buildLocation(address string, lat, lon *float64) (domitem.Location, error) {
	if lat == nil || lon == nil {
		return domitem.NewLocation(address), nil
	}
	loc, err := domitem.NewGeoLocation(address, *lat, *lon)
	if err != nil {
		return domitem.Location{}, err
	}
	return loc, nil
}

// applyUpdate merges a partial edit into a fresh Item value.
func applyUpdate(current *domitem.Item, u Update) (domitem.Item, error) {
	title := current.Title()
	if u.Title != nil {
		title = *u.Title
	}
	description := current.Description()
	if u.Description != nil {
		description = *u.Description
	}
	category := current.Category()
	if u.Category != nil {
		if *u.Category != "" && !domitem.KnownCategory(*u.Category) {
			return domitem.Item{}, fmt.Errorf("unknown category %q: %w", *u.Category, domain.ErrValidation)
		}
		category = *u.Category
	}

	address := current.Location().Address()
	if u.Address != nil {
		address = *u.Address
	}
	lat, lon, hasGeo := current.Location().Coordinates()
	if u.Lat != nil && u.Lon != nil {
		lat, lon, hasGeo = *u.Lat, *u.Lon, true
	}
	loc := domitem.NewLocation(address)
	if hasGeo {
		var err error
		loc, err = domitem.NewGeoLocation(address, lat, lon)
		if err != nil {
			return domitem.Item{}, err
		}
	}

	eventDate := current.EventDate()
	if u.EventDate != nil {
		eventDate = *u.EventDate
	}
	if eventDate.After(current.ReportedAt()) {
		return domitem.Item{}, fmt.Errorf("event date after reported date: %w", domain.ErrValidation)
	}

	tags := current.Tags()
	if u.Tags != nil {
		tags = domitem.NormalizeTags(*u.Tags)
	}
	reward := current.Reward()
	if u.Reward != nil {
		reward = *u.Reward
	}
	images := current.Images()
	if u.Images != nil {
		images = *u.Images
	}

	return domitem.Reconstruct(
		current.ID(), current.Kind(), current.ReporterID(), title, description,
		category, loc, eventDate, current.ReportedAt(), tags, current.Status(),
		current.Contact(), reward, images, current.OrganizationID(),
	), nil
}
