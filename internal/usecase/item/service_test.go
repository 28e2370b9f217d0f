package item

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/trackback/matchengine/internal/domain"
	domitem "github.com/trackback/matchengine/internal/domain/item"
	"github.com/trackback/matchengine/internal/events"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// --- Mocks ---

type mockRepo struct {
	items  map[string]domitem.Item
	putErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[string]domitem.Item)}
}

func (r *mockRepo) Put(_ context.Context, it *domitem.Item) error {
	if r.putErr != nil {
		return r.putErr
	}
	r.items[it.ID()] = *it
	return nil
}

func (r *mockRepo) Get(_ context.Context, id string) (domitem.Item, error) {
	it, ok := r.items[id]
	if !ok {
		return domitem.Item{}, fmt.Errorf("item %s: %w", id, domain.ErrItemNotFound)
	}
	return it, nil
}

func (r *mockRepo) ListByReporter(_ context.Context, reporterID string) ([]domitem.Item, error) {
	var out []domitem.Item
	for _, it := range r.items {
		if it.ReporterID() == reporterID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *mockRepo) ListActiveByCategory(
	_ context.Context, kind domitem.Kind, category string, since, until time.Time,
) ([]domitem.Item, error) {
	var out []domitem.Item
	for _, it := range r.items {
		if it.Status() != domitem.StatusActive || it.Kind() != kind || it.Category() != category {
			continue
		}
		if it.EventDate().Before(since) || it.EventDate().After(until) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *mockRepo) CountByStatus(_ context.Context) (map[domitem.Status]int, error) {
	counts := make(map[domitem.Status]int)
	for _, it := range r.items {
		counts[it.Status()]++
	}
	return counts, nil
}

func (r *mockRepo) GetActiveItemsNear(_ context.Context, _, _, _ float64) ([]domitem.Item, error) {
	var out []domitem.Item
	for _, it := range r.items {
		if it.Status() == domitem.StatusActive {
			out = append(out, it)
		}
	}
	return out, nil
}

type publishedEvent struct {
	topic string
	event events.ItemEvent
}

type mockPublisher struct {
	published  []publishedEvent
	publishErr error
}

func (p *mockPublisher) PublishItemEvent(topic string, ev events.ItemEvent) error {
	p.published = append(p.published, publishedEvent{topic, ev})
	return p.publishErr
}

// --- Helpers ---

func newService(repo *mockRepo, pub *mockPublisher) *Service {
	seq := 0
	return New(repo, pub, nil).WithClock(
		func() time.Time { return baseTime },
		func() string { seq++; return fmt.Sprintf("item-%d", seq) },
	)
}

func validDraft() Draft {
	return Draft{
		Kind:        domitem.KindLost,
		ReporterID:  "reporter-1",
		Title:       "Black leather wallet",
		Description: "Lost near the food court",
		Category:    "Accessories",
		Address:     "Central Mall",
		EventDate:   baseTime.Add(-24 * time.Hour),
		Tags:        []string{"Black", "leather"},
		Contact:     domitem.Contact{Email: "reporter@example.com", Preferred: "email"},
	}
}

// --- Tests ---

func TestCreate(t *testing.T) {
	repo := newMockRepo()
	pub := &mockPublisher{}
	svc := newService(repo, pub)

	it, err := svc.Create(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if it.ID() != "item-1" {
		t.Errorf("ID: got %s, want item-1", it.ID())
	}
	if it.Status() != domitem.StatusActive {
		t.Errorf("status: got %s, want active", it.Status())
	}
	if !it.ReportedAt().Equal(baseTime) {
		t.Errorf("reported at: got %v, want %v", it.ReportedAt(), baseTime)
	}
	if _, ok := repo.items["item-1"]; !ok {
		t.Error("item not persisted")
	}

	if len(pub.published) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.published))
	}
	ev := pub.published[0]
	if ev.topic != events.TopicItemCreated {
		t.Errorf("topic: got %s, want %s", ev.topic, events.TopicItemCreated)
	}
	if !ev.event.ScoringChanged {
		t.Error("creation event must mark scoring as changed")
	}
}

func TestCreate_WithCoordinatesAndExtras(t *testing.T) {
	repo := newMockRepo()
	svc := newService(repo, &mockPublisher{})

	lat, lon := 52.2297, 21.0122
	d := validDraft()
	d.Lat, d.Lon = &lat, &lon
	d.Reward = 50
	d.Images = []string{"https://img.example.com/1.jpg"}
	d.OrganizationID = "org-1"

	it, err := svc.Create(context.Background(), d)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gotLat, gotLon, ok := it.Location().Coordinates()
	if !ok || gotLat != lat || gotLon != lon {
		t.Errorf("coordinates: got (%v, %v, %v), want (%v, %v, true)", gotLat, gotLon, ok, lat, lon)
	}
	if it.Reward() != 50 {
		t.Errorf("reward: got %v, want 50", it.Reward())
	}
	if it.OrganizationID() != "org-1" {
		t.Errorf("organization: got %s, want org-1", it.OrganizationID())
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Draft)
	}{
		{"missing title", func(d *Draft) { d.Title = "" }},
		{"missing reporter", func(d *Draft) { d.ReporterID = "" }},
		{"unknown kind", func(d *Draft) { d.Kind = "misplaced" }},
		{"unknown category", func(d *Draft) { d.Category = "Spaceships" }},
		{"future event date", func(d *Draft) { d.EventDate = baseTime.Add(time.Hour) }},
		{"bad latitude", func(d *Draft) {
			lat, lon := 95.0, 21.0
			d.Lat, d.Lon = &lat, &lon
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			pub := &mockPublisher{}
			svc := newService(repo, pub)

			d := validDraft()
			tt.mutate(&d)

			if _, err := svc.Create(context.Background(), d); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
			if len(pub.published) != 0 {
				t.Error("no event must be published on validation failure")
			}
		})
	}
}

func TestCreate_PublishFailureDoesNotFailWrite(t *testing.T) {
	repo := newMockRepo()
	pub := &mockPublisher{publishErr: errors.New("bus closed")}
	svc := newService(repo, pub)

	if _, err := svc.Create(context.Background(), validDraft()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(repo.items) != 1 {
		t.Error("item must be persisted despite publish failure")
	}
}

func TestUpdate_ScoringChangeFlag(t *testing.T) {
	repo := newMockRepo()
	pub := &mockPublisher{}
	svc := newService(repo, pub)

	it, err := svc.Create(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Reward is not a scoring field.
	reward := 100.0
	if _, err := svc.Update(context.Background(), it.ID(), Update{Reward: &reward}); err != nil {
		t.Fatalf("update reward: %v", err)
	}
	// Title is.
	title := "Brown leather wallet"
	updated, err := svc.Update(context.Background(), it.ID(), Update{Title: &title})
	if err != nil {
		t.Fatalf("update title: %v", err)
	}
	if updated.Title() != title {
		t.Errorf("title: got %q, want %q", updated.Title(), title)
	}

	if len(pub.published) != 3 {
		t.Fatalf("published %d events, want 3", len(pub.published))
	}
	if pub.published[1].event.ScoringChanged {
		t.Error("reward edit must not mark scoring as changed")
	}
	if !pub.published[2].event.ScoringChanged {
		t.Error("title edit must mark scoring as changed")
	}
}

func TestUpdate_ArchivedItemFails(t *testing.T) {
	repo := newMockRepo()
	svc := newService(repo, &mockPublisher{})

	it, err := svc.Create(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Archive(context.Background(), it.ID()); err != nil {
		t.Fatalf("archive: %v", err)
	}

	title := "New title"
	if _, err := svc.Update(context.Background(), it.ID(), Update{Title: &title}); !errors.Is(err, domain.ErrItemArchived) {
		t.Errorf("got %v, want ErrItemArchived", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc := newService(newMockRepo(), &mockPublisher{})
	title := "x"
	if _, err := svc.Update(context.Background(), "missing", Update{Title: &title}); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("got %v, want ErrItemNotFound", err)
	}
}

func TestUpdate_TagsNormalized(t *testing.T) {
	repo := newMockRepo()
	svc := newService(repo, &mockPublisher{})

	it, err := svc.Create(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tags := []string{" Leather ", "BLACK", "black"}
	updated, err := svc.Update(context.Background(), it.ID(), Update{Tags: &tags})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got := updated.Tags()
	want := []string{"black", "leather"}
	if len(got) != len(want) {
		t.Fatalf("tags: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tags: got %v, want %v", got, want)
			break
		}
	}
}

func TestArchive_Idempotent(t *testing.T) {
	repo := newMockRepo()
	pub := &mockPublisher{}
	svc := newService(repo, pub)

	it, err := svc.Create(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := svc.Archive(context.Background(), it.ID())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if first.Status() != domitem.StatusArchived {
		t.Errorf("status: got %s, want archived", first.Status())
	}

	second, err := svc.Archive(context.Background(), it.ID())
	if err != nil {
		t.Fatalf("second archive: %v", err)
	}
	if second.Status() != domitem.StatusArchived {
		t.Errorf("status: got %s, want archived", second.Status())
	}

	// Only the create and the first archive publish.
	if len(pub.published) != 2 {
		t.Errorf("published %d events, want 2", len(pub.published))
	}
	if pub.published[1].topic != events.TopicItemArchived {
		t.Errorf("topic: got %s, want %s", pub.published[1].topic, events.TopicItemArchived)
	}
}

func TestNearby_RejectsNonPositiveRadius(t *testing.T) {
	svc := newService(newMockRepo(), &mockPublisher{})
	if _, err := svc.Nearby(context.Background(), 52.0, 21.0, 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestSearch(t *testing.T) {
	repo := newMockRepo()
	svc := newService(repo, &mockPublisher{})

	if _, err := svc.Create(context.Background(), validDraft()); err != nil {
		t.Fatalf("create: %v", err)
	}
	other := validDraft()
	other.Kind = domitem.KindFound
	if _, err := svc.Create(context.Background(), other); err != nil {
		t.Fatalf("create: %v", err)
	}

	items, err := svc.Search(
		context.Background(), domitem.KindLost, "Accessories",
		baseTime.Add(-48*time.Hour), baseTime,
	)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Kind() != domitem.KindLost {
		t.Errorf("got kind %q, want %q", items[0].Kind(), domitem.KindLost)
	}
}

func TestSearch_Validation(t *testing.T) {
	svc := newService(newMockRepo(), &mockPublisher{})
	ctx := context.Background()

	cases := []struct {
		name         string
		kind         domitem.Kind
		category     string
		since, until time.Time
	}{
		{"unknown kind", "misplaced", "Accessories", baseTime.Add(-time.Hour), baseTime},
		{"unknown category", domitem.KindLost, "Spaceships", baseTime.Add(-time.Hour), baseTime},
		{"inverted window", domitem.KindLost, "Accessories", baseTime, baseTime.Add(-time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Search(ctx, tc.kind, tc.category, tc.since, tc.until); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestStats(t *testing.T) {
	repo := newMockRepo()
	svc := newService(repo, &mockPublisher{})
	ctx := context.Background()

	it, err := svc.Create(ctx, validDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, validDraft()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Archive(ctx, it.ID()); err != nil {
		t.Fatalf("archive: %v", err)
	}

	counts, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if counts[domitem.StatusActive] != 1 || counts[domitem.StatusArchived] != 1 {
		t.Errorf("got counts %v, want 1 active and 1 archived", counts)
	}
}

func TestListByReporter(t *testing.T) {
	repo := newMockRepo()
	svc := newService(repo, &mockPublisher{})

	if _, err := svc.Create(context.Background(), validDraft()); err != nil {
		t.Fatalf("create: %v", err)
	}
	other := validDraft()
	other.ReporterID = "reporter-2"
	if _, err := svc.Create(context.Background(), other); err != nil {
		t.Fatalf("create: %v", err)
	}

	items, err := svc.ListByReporter(context.Background(), "reporter-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("got %d items, want 1", len(items))
	}
}
