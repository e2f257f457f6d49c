package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"gamelog/pkg/domain"
)

var (
	ErrNotOpen     = errors.New("library is not open")
	ErrForeignGame = errors.New("game belongs to another player")
)

// Remote is the collection service as seen by the view-model.
type Remote interface {
	ListGames(ctx context.Context, ownerID string) ([]domain.Game, error)
	CreateGame(ctx context.Context, g domain.Game) (domain.Game, error)
	UpdateGame(ctx context.Context, g domain.Game) (domain.Game, error)
	DeleteGame(ctx context.Context, id string) error
}

// Store owns the cached game list of the signed-in player. It is opened by
// FetchAll and cleared by Close; results of remote calls started before the
// last Close or owner switch are discarded.
type Store struct {
	remote Remote
	logger *slog.Logger

	mu    sync.Mutex
	owner string
	games []domain.Game
	gen   uint64
}

func New(remote Remote) *Store {
	return &Store{remote: remote, logger: slog.Default()}
}

// WithLogger replaces the default logger.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Store) snapshot() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner, s.gen
}

func (s *Store) OwnerID() string {
	owner, _ := s.snapshot()
	return owner
}

// Games returns a copy of the cached list in store order.
func (s *Store) Games() []domain.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.games)
}

// Find looks a game up in the cache.
func (s *Store) Find(id string) (domain.Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.games[i], true
	}
	return domain.Game{}, false
}

// View runs the query pipeline over the cache.
func (s *Store) View(q Query) []domain.Game {
	return Apply(s.Games(), q)
}

// Summary covers the whole cache regardless of any active query.
func (s *Store) Summary() Summary {
	return Summarize(s.Games())
}

// Close drops the cache and invalidates in-flight results.
func (s *Store) Close() {
	s.mu.Lock()
	s.owner = ""
	s.games = nil
	s.gen++
	s.mu.Unlock()
}

// FetchAll replaces the cache with the owner's list from the collection
// service, newest completion first.
func (s *Store) FetchAll(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return ErrNotOpen
	}
	s.mu.Lock()
	if s.owner != ownerID {
		s.owner = ownerID
		s.games = nil
		s.gen++
	}
	gen := s.gen
	s.mu.Unlock()

	games, err := s.remote.ListGames(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("fetch games: %w", err)
	}
	s.replace(gen, games)
	return nil
}

func (s *Store) replace(gen uint64, games []domain.Game) {
	games = slices.Clone(games)
	SortGames(games, SortDateDesc)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.logger.Debug("stale game list dropped")
		return
	}
	s.games = games
}

// Save creates g when it has no id and otherwise replaces it entirely. The
// cache is resynchronised only after the collection service accepts the write.
func (s *Store) Save(ctx context.Context, g domain.Game) (domain.Game, error) {
	g.Normalize()
	if err := g.Validate(); err != nil {
		return domain.Game{}, err
	}
	owner, gen := s.snapshot()
	if owner == "" {
		return domain.Game{}, ErrNotOpen
	}
	if g.OwnerID != "" && g.OwnerID != owner {
		return domain.Game{}, ErrForeignGame
	}
	g.OwnerID = owner

	var (
		saved domain.Game
		err   error
	)
	if g.ID == "" {
		saved, err = s.remote.CreateGame(ctx, g)
	} else {
		saved, err = s.remote.UpdateGame(ctx, g)
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("save game: %w", err)
	}

	games, err := s.remote.ListGames(ctx, owner)
	if err != nil {
		// The write went through; keep the cache consistent with it.
		s.logger.Warn("resync after save failed", "game_id", saved.ID, "err", err)
		s.upsert(gen, saved)
		return saved, nil
	}
	s.replace(gen, games)
	return saved, nil
}

func (s *Store) upsert(gen uint64, g domain.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	games := slices.Clone(s.games)
	if i := indexOf(games, g.ID); i >= 0 {
		games[i] = g
	} else {
		games = append(games, g)
	}
	SortGames(games, SortDateDesc)
	s.games = games
}

// Delete removes the game from the cache at once and restores it at the same
// position if the collection service rejects the delete.
func (s *Store) Delete(ctx context.Context, id string) error {
	owner, gen := s.snapshot()
	if owner == "" {
		return ErrNotOpen
	}
	return Optimistic(ctx, func() func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		i := s.indexLocked(id)
		if i < 0 {
			return nil
		}
		removed := s.games[i]
		s.games = slices.Delete(slices.Clone(s.games), i, i+1)
		return func() { s.restore(gen, i, removed) }
	}, func(ctx context.Context) error {
		if err := s.remote.DeleteGame(ctx, id); err != nil {
			return fmt.Errorf("delete game: %w", err)
		}
		return nil
	})
}

func (s *Store) restore(gen uint64, pos int, g domain.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.indexLocked(g.ID) >= 0 {
		return
	}
	pos = min(pos, len(s.games))
	s.games = slices.Insert(slices.Clone(s.games), pos, g)
}

func (s *Store) indexLocked(id string) int {
	return indexOf(s.games, id)
}

func indexOf(games []domain.Game, id string) int {
	return slices.IndexFunc(games, func(g domain.Game) bool { return g.ID == id })
}
