package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gamelog/internal/util"
	"gamelog/pkg/domain"
	"gamelog/pkg/export"
	"gamelog/pkg/library"
	"gamelog/pkg/rewrite"
	"gamelog/pkg/storage"
	"gamelog/pkg/store"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrArchiveDisabled = errors.New("export archive not configured")
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	// Objects receives archived exports. Nil disables archiving.
	Objects          storage.ObjectStore
	Rewriter         *rewrite.Rewriter
	ExportLinkExpiry time.Duration
}

// App owns the game log of every player, always scoped by owner.
type App struct {
	store      store.Store
	objects    storage.ObjectStore
	rewriter   *rewrite.Rewriter
	linkExpiry time.Duration
	now        func() time.Time
}

// New constructs the application with a database-backed store unless one is injected.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init game store: %w", err)
		}
	}
	rw := cfg.Rewriter
	if rw == nil {
		rw = rewrite.New(nil)
	}
	expiry := cfg.ExportLinkExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &App{
		store:      dataStore,
		objects:    cfg.Objects,
		rewriter:   rw,
		linkExpiry: expiry,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// ListGames returns the owner's games, newest completion first.
func (a *App) ListGames(owner domain.User) ([]domain.Game, error) {
	games, err := a.store.ListGamesByOwner(owner.ID)
	if err != nil {
		return nil, err
	}
	if games == nil {
		games = []domain.Game{}
	}
	return games, nil
}

// CreateGame validates input and assigns id, owner and timestamps.
func (a *App) CreateGame(owner domain.User, in domain.Game) (domain.Game, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return domain.Game{}, err
	}
	now := a.now()
	in.ID = util.NewID()
	in.OwnerID = owner.ID
	in.CreatedAt = now
	in.UpdatedAt = now
	if err := a.store.CreateGame(in); err != nil {
		return domain.Game{}, fmt.Errorf("save game: %w", err)
	}
	return in, nil
}

// GetGame returns ErrGameNotFound for ids the owner does not have.
func (a *App) GetGame(owner domain.User, id string) (domain.Game, error) {
	g, ok, err := a.store.GetGame(owner.ID, id)
	if err != nil {
		return domain.Game{}, err
	}
	if !ok {
		return domain.Game{}, ErrGameNotFound
	}
	return g, nil
}

// UpdateGame replaces every editable field of an owned game.
func (a *App) UpdateGame(owner domain.User, id string, in domain.Game) (domain.Game, error) {
	current, err := a.GetGame(owner, id)
	if err != nil {
		return domain.Game{}, err
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return domain.Game{}, err
	}
	in.ID = current.ID
	in.OwnerID = owner.ID
	in.CreatedAt = current.CreatedAt
	in.UpdatedAt = a.now()
	ok, err := a.store.UpdateGame(in)
	if err != nil {
		return domain.Game{}, fmt.Errorf("update game: %w", err)
	}
	if !ok {
		return domain.Game{}, ErrGameNotFound
	}
	return in, nil
}

// DeleteGame removes an owned game.
func (a *App) DeleteGame(owner domain.User, id string) error {
	ok, err := a.store.DeleteGame(owner.ID, id)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if !ok {
		return ErrGameNotFound
	}
	return nil
}

// Summary aggregates the owner's full, unfiltered log.
func (a *App) Summary(owner domain.User) (library.Summary, error) {
	games, err := a.ListGames(owner)
	if err != nil {
		return library.Summary{}, err
	}
	return library.Summarize(games), nil
}

// ExportPDF renders the owner's log, filtered and sorted by q, into w.
func (a *App) ExportPDF(owner domain.User, q library.Query, w io.Writer) error {
	games, err := a.ListGames(owner)
	if err != nil {
		return err
	}
	return export.Render(w, export.Document{
		OwnerTag:    owner.DisplayTag(),
		Games:       library.Apply(games, q),
		GeneratedAt: a.now(),
		Filter:      describeQuery(q),
	})
}

// ExportLink points at an archived export.
type ExportLink struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// ArchiveExport renders the export, stores it and returns a pre-signed link.
func (a *App) ArchiveExport(ctx context.Context, owner domain.User, q library.Query) (ExportLink, error) {
	if a.objects == nil {
		return ExportLink{}, ErrArchiveDisabled
	}
	var buf bytes.Buffer
	if err := a.ExportPDF(owner, q, &buf); err != nil {
		return ExportLink{}, err
	}
	filename := export.Filename(a.now())
	key := storage.ExportKey(owner.ID, filename)
	if err := a.objects.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), export.ContentType); err != nil {
		return ExportLink{}, fmt.Errorf("store export: %w", err)
	}
	url, err := a.objects.PresignGet(ctx, key, filename, a.linkExpiry)
	if err != nil {
		_ = a.objects.Delete(ctx, key)
		return ExportLink{}, err
	}
	return ExportLink{URL: url, Filename: filename}, nil
}

// RewriteReview never fails; without a generator the draft comes back as is.
func (a *App) RewriteReview(ctx context.Context, title string, rating int, draft string) string {
	return a.rewriter.Rewrite(ctx, title, rating, draft)
}

func describeQuery(q library.Query) string {
	parts := make([]string, 0, 3)
	if text := strings.TrimSpace(q.Text); text != "" {
		parts = append(parts, fmt.Sprintf("search %q", text))
	}
	if q.Platform != library.PlatformAll {
		parts = append(parts, "platform "+string(q.Platform))
	}
	if q.Sort != "" && q.Sort != library.DefaultSort {
		parts = append(parts, "sorted by "+string(q.Sort))
	}
	return strings.Join(parts, ", ")
}
