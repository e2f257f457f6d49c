package app

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"gamelog/pkg/domain"
	"gamelog/pkg/library"
	"gamelog/pkg/storage"
	"gamelog/pkg/store"
)

func newTestApp(t *testing.T, objects storage.ObjectStore) *App {
	t.Helper()
	a, err := New(Config{Store: store.NewMemoryStore(), Objects: objects})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

var (
	ana   = domain.User{ID: "u-ana", Email: "ana@example.com", Profile: domain.Profile{Gamertag: "ana_gg"}}
	bruno = domain.User{ID: "u-bruno", Email: "bruno@example.com"}
)

func eldenRing() domain.Game {
	return domain.Game{Title: " Elden Ring ", Platform: "ps5", CompletionDate: "2024-02-20", Rating: 10, HoursPlayed: 120, IsPlatinum: true}
}

func TestCreateGameAssignsServerFields(t *testing.T) {
	a := newTestApp(t, nil)
	g, err := a.CreateGame(ana, domain.Game{ID: "client-id", OwnerID: "someone-else", Title: "Celeste", Platform: domain.PlatformSwitch, CompletionDate: "2023-11-02", Rating: 9})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.ID == "" || g.ID == "client-id" || g.OwnerID != ana.ID || g.CreatedAt.IsZero() {
		t.Fatalf("server fields not assigned: %+v", g)
	}
	got, err := a.GetGame(ana, g.ID)
	if err != nil || got.Title != "Celeste" {
		t.Fatalf("get: %+v %v", got, err)
	}
}

func TestCreateGameNormalizesAndValidates(t *testing.T) {
	a := newTestApp(t, nil)
	g, err := a.CreateGame(ana, eldenRing())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.Title != "Elden Ring" || g.Platform != domain.PlatformPS5 {
		t.Fatalf("input not normalized: %+v", g)
	}

	bad := eldenRing()
	bad.Rating = 11
	_, err = a.CreateGame(ana, bad)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "rating" {
		t.Fatalf("expected rating validation error, got %v", err)
	}
}

func TestCreateGameRejectsHoursOutOfRange(t *testing.T) {
	a := newTestApp(t, nil)
	huge := eldenRing()
	huge.HoursPlayed = math.MaxInt64
	_, err := a.CreateGame(ana, huge)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "hoursPlayed" {
		t.Fatalf("expected hoursPlayed validation error, got %v", err)
	}

	maxed := eldenRing()
	maxed.HoursPlayed = domain.MaxHoursPlayed
	var created domain.Game
	for range 2 {
		if created, err = a.CreateGame(ana, maxed); err != nil {
			t.Fatalf("create at bound: %v", err)
		}
	}
	if _, err := a.UpdateGame(ana, created.ID, huge); !errors.As(err, &verr) || verr.Field != "hoursPlayed" {
		t.Fatalf("expected update validation error, got %v", err)
	}
	sum, err := a.Summary(ana)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Total != 2 || sum.Hours != 2*domain.MaxHoursPlayed {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestGamesAreScopedByOwner(t *testing.T) {
	a := newTestApp(t, nil)
	g, err := a.CreateGame(ana, eldenRing())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := a.GetGame(bruno, g.ID); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
	if _, err := a.UpdateGame(bruno, g.ID, eldenRing()); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected update by other owner to fail, got %v", err)
	}
	if err := a.DeleteGame(bruno, g.ID); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected delete by other owner to fail, got %v", err)
	}
	games, _ := a.ListGames(bruno)
	if len(games) != 0 {
		t.Fatalf("bruno should see no games, got %d", len(games))
	}
}

func TestUpdateGameKeepsIdentity(t *testing.T) {
	a := newTestApp(t, nil)
	created, _ := a.CreateGame(ana, eldenRing())
	a.now = func() time.Time { return created.CreatedAt.Add(time.Hour) }

	edit := eldenRing()
	edit.Rating = 9
	edit.Review = "Still great"
	updated, err := a.UpdateGame(ana, created.ID, edit)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != created.ID || !updated.CreatedAt.Equal(created.CreatedAt) || !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("identity not preserved: %+v", updated)
	}
	got, _ := a.GetGame(ana, created.ID)
	if got.Rating != 9 || got.Review != "Still great" {
		t.Fatalf("update not stored: %+v", got)
	}
}

func TestSummaryAndExport(t *testing.T) {
	a := newTestApp(t, nil)
	_, _ = a.CreateGame(ana, eldenRing())
	_, _ = a.CreateGame(ana, domain.Game{Title: "Celeste", Platform: domain.PlatformSwitch, CompletionDate: "2023-11-02", Rating: 9, HoursPlayed: 15})

	s, err := a.Summary(ana)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s != (library.Summary{Total: 2, Hours: 135, AvgRating: 9.5, Platinums: 1}) {
		t.Fatalf("unexpected summary %+v", s)
	}

	var buf bytes.Buffer
	if err := a.ExportPDF(ana, library.Query{Text: "eld"}, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatalf("export is not a pdf")
	}
}

func TestArchiveExport(t *testing.T) {
	if _, err := newTestApp(t, nil).ArchiveExport(context.Background(), ana, library.Query{}); !errors.Is(err, ErrArchiveDisabled) {
		t.Fatalf("expected archive disabled, got %v", err)
	}

	objects := storage.NewMemoryStore()
	a := newTestApp(t, objects)
	_, _ = a.CreateGame(ana, eldenRing())
	link, err := a.ArchiveExport(context.Background(), ana, library.Query{})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasSuffix(link.Filename, ".pdf") || !strings.Contains(link.URL, "exports/u-ana/") {
		t.Fatalf("unexpected link %+v", link)
	}
	data, ct, ok := objects.Object(storage.ExportKey(ana.ID, link.Filename))
	if !ok || ct != "application/pdf" || !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("archived object missing or wrong: ok=%v ct=%q", ok, ct)
	}
}

func TestRewriteReviewWithoutGenerator(t *testing.T) {
	a := newTestApp(t, nil)
	if got := a.RewriteReview(context.Background(), "Celeste", 9, "hard but fair"); got != "hard but fair" {
		t.Fatalf("expected draft back, got %q", got)
	}
}

func TestDescribeQuery(t *testing.T) {
	got := describeQuery(library.Query{Text: "ring", Platform: domain.PlatformPS5, Sort: library.SortRatingDesc})
	if got != `search "ring", platform PS5, sorted by rating-desc` {
		t.Fatalf("unexpected description %q", got)
	}
	if describeQuery(library.Query{Sort: library.DefaultSort}) != "" {
		t.Fatalf("default query should have no description")
	}
}
