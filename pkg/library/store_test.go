package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamelog/pkg/domain"
)

var errRemote = errors.New("remote unavailable")

// fakeRemote keeps an owner-scoped table in memory.
type fakeRemote struct {
	mu        sync.Mutex
	rows      []domain.Game
	nextID    int
	calls     map[string]int
	failWrite bool
	failList  bool
	beforeDel func()
}

func newFakeRemote(rows ...domain.Game) *fakeRemote {
	return &fakeRemote{rows: rows, calls: map[string]int{}}
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) ListGames(_ context.Context, ownerID string) ([]domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	if f.failList {
		return nil, errRemote
	}
	var out []domain.Game
	for _, g := range f.rows {
		if g.OwnerID == ownerID {
			out = append(out, g)
		}
	}
	SortGames(out, SortDateDesc)
	return out, nil
}

func (f *fakeRemote) CreateGame(_ context.Context, g domain.Game) (domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["create"]++
	if f.failWrite {
		return domain.Game{}, errRemote
	}
	f.nextID++
	g.ID = fmt.Sprintf("new-%d", f.nextID)
	f.rows = append(f.rows, g)
	return g, nil
}

func (f *fakeRemote) UpdateGame(_ context.Context, g domain.Game) (domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update"]++
	if f.failWrite {
		return domain.Game{}, errRemote
	}
	for i := range f.rows {
		if f.rows[i].ID == g.ID && f.rows[i].OwnerID == g.OwnerID {
			f.rows[i] = g
			return g, nil
		}
	}
	return domain.Game{}, errors.New("not found")
}

func (f *fakeRemote) DeleteGame(_ context.Context, id string) error {
	if f.beforeDel != nil {
		f.beforeDel()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	if f.failWrite {
		return errRemote
	}
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func ownedLog(owner string) []domain.Game {
	log := sampleLog()
	for i := range log {
		log[i].OwnerID = owner
	}
	return log
}

func openStore(t *testing.T, remote *fakeRemote) *Store {
	t.Helper()
	s := New(remote)
	require.NoError(t, s.FetchAll(context.Background(), "alice"))
	return s
}

func TestFetchAllIsIdempotent(t *testing.T) {
	remote := newFakeRemote(append(ownedLog("alice"), domain.Game{ID: "x", OwnerID: "bob", Title: "Tunic", CompletionDate: "2024-01-01"})...)
	s := openStore(t, remote)
	first := s.Games()
	require.NoError(t, s.FetchAll(context.Background(), "alice"))
	if diff := cmp.Diff(first, s.Games()); diff != "" {
		t.Fatalf("second fetch differs:\n%s", diff)
	}
	assert.Equal(t, []string{"Elden Ring", "Celeste"}, titles(first))
}

func TestSaveCreatesThenResyncs(t *testing.T) {
	remote := newFakeRemote(ownedLog("alice")...)
	s := openStore(t, remote)

	saved, err := s.Save(context.Background(), domain.Game{
		Title:          " Hades ",
		Platform:       "outro",
		CompletionDate: "2024-06-01",
		Rating:         10,
		HoursPlayed:    60,
	})
	require.NoError(t, err)
	assert.Equal(t, "new-1", saved.ID)
	assert.Equal(t, "alice", saved.OwnerID)
	assert.Equal(t, 1, remote.count("create"))
	assert.Equal(t, 2, remote.count("list"))
	assert.Equal(t, []string{"Hades", "Elden Ring", "Celeste"}, titles(s.Games()))
	g, ok := s.Find("new-1")
	require.True(t, ok)
	assert.Equal(t, domain.PlatformOther, g.Platform)
}

func TestSaveUpdatesExistingRecord(t *testing.T) {
	remote := newFakeRemote(ownedLog("alice")...)
	s := openStore(t, remote)

	g, _ := s.Find("celeste")
	g.Rating = 8
	g.IsPlatinum = true
	_, err := s.Save(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.count("update"))
	assert.Equal(t, 0, remote.count("create"))
	got, _ := s.Find("celeste")
	assert.Equal(t, 8, got.Rating)
	assert.True(t, got.IsPlatinum)
	assert.Equal(t, Summary{Total: 2, Hours: 100, AvgRating: 8.5, Platinums: 2}, s.Summary())
}

func TestSaveValidatesBeforeRemoteCall(t *testing.T) {
	remote := newFakeRemote(ownedLog("alice")...)
	s := openStore(t, remote)

	_, err := s.Save(context.Background(), domain.Game{Title: "Bad", Platform: domain.PlatformPC, CompletionDate: "2024-01-01", Rating: 11})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rating", verr.Field)
	assert.Zero(t, remote.count("create"))
}

func TestSaveFailureLeavesCacheUntouched(t *testing.T) {
	remote := newFakeRemote(ownedLog("alice")...)
	s := openStore(t, remote)
	before := s.Games()

	remote.failWrite = true
	g, _ := s.Find("elden")
	g.Rating = 1
	_, err := s.Save(context.Background(), g)
	require.ErrorIs(t, err, errRemote)
	if diff := cmp.Diff(before, s.Games()); diff != "" {
		t.Fatalf("cache changed after failed save:\n%s", diff)
	}
}

func TestSaveKeepsWriteWhenResyncFails(t *testing.T) {
	remote := newFakeRemote(ownedLog("alice")...)
	s := openStore(t, remote)

	remote.failList = true
	saved, err := s.Save(context.Background(), domain.Game{Title: "Inside", Platform: domain.PlatformPC, CompletionDate: "2024-12-24", Rating: 8, HoursPlayed: 4})
	require.NoError(t, err)
	got, ok := s.Find(saved.ID)
	require.True(t, ok)
	assert.Equal(t, "Inside", got.Title)
	assert.Equal(t, "Inside", s.Games()[0].Title)
}

func TestSaveRejectsForeignRecord(t *testing.T) {
	s := openStore(t, newFakeRemote(ownedLog("alice")...))
	g := ownedLog("bob")[0]
	_, err := s.Save(context.Background(), g)
	require.ErrorIs(t, err, ErrForeignGame)
}

func TestDeleteRemovesOptimistically(t *testing.T) {
	remote := newFakeRemote(ownedLog("alice")...)
	s := openStore(t, remote)

	var during []domain.Game
	remote.beforeDel = func() { during = s.Games() }
	require.NoError(t, s.Delete(context.Background(), "elden"))
	assert.Equal(t, []string{"Celeste"}, titles(during))
	assert.Equal(t, []string{"Celeste"}, titles(s.Games()))
}

func TestScenarioDeleteFailureRollsBack(t *testing.T) {
	remote := newFakeRemote(ownedLog("alice")...)
	s := openStore(t, remote)
	before := s.Games()

	remote.failWrite = true
	var during []domain.Game
	remote.beforeDel = func() { during = s.Games() }

	err := s.Delete(context.Background(), "celeste")
	require.ErrorIs(t, err, errRemote)
	assert.Equal(t, 1, remote.count("delete"))
	assert.Equal(t, []string{"Elden Ring"}, titles(during))
	if diff := cmp.Diff(before, s.Games()); diff != "" {
		t.Fatalf("rollback is not element-for-element:\n%s", diff)
	}
}

func TestDeleteRollbackRestoresMiddlePosition(t *testing.T) {
	rows := bigLog()
	for i := range rows {
		rows[i].OwnerID = "alice"
	}
	remote := newFakeRemote(rows...)
	s := openStore(t, remote)
	before := s.Games()

	remote.failWrite = true
	require.Error(t, s.Delete(context.Background(), before[2].ID))
	if diff := cmp.Diff(before, s.Games()); diff != "" {
		t.Fatalf("rollback changed order:\n%s", diff)
	}
}

func TestCloseDiscardsLateResults(t *testing.T) {
	remote := newFakeRemote(ownedLog("alice")...)
	s := openStore(t, remote)

	remote.failWrite = true
	remote.beforeDel = func() { s.Close() }
	require.Error(t, s.Delete(context.Background(), "celeste"))
	assert.Empty(t, s.Games(), "rollback must not resurrect a closed library")

	_, err := s.Save(context.Background(), sampleLog()[0])
	require.ErrorIs(t, err, ErrNotOpen)
	require.ErrorIs(t, s.Delete(context.Background(), "elden"), ErrNotOpen)
}

func TestFetchAllForNewOwnerDropsPreviousCache(t *testing.T) {
	remote := newFakeRemote(append(ownedLog("alice"), domain.Game{ID: "x", OwnerID: "bob", Title: "Tunic", Platform: domain.PlatformPC, CompletionDate: "2024-01-01"})...)
	s := openStore(t, remote)

	remote.failList = true
	require.Error(t, s.FetchAll(context.Background(), "bob"))
	assert.Empty(t, s.Games())
	assert.Equal(t, "bob", s.OwnerID())

	remote.failList = false
	require.NoError(t, s.FetchAll(context.Background(), "bob"))
	assert.Equal(t, []string{"Tunic"}, titles(s.Games()))
}

func TestViewAppliesQueryOverCache(t *testing.T) {
	s := openStore(t, newFakeRemote(ownedLog("alice")...))
	got := s.View(Query{Platform: domain.PlatformSwitch, Sort: SortRatingDesc})
	assert.Equal(t, []string{"Celeste"}, titles(got))
	assert.Equal(t, 2, s.Summary().Total, "summary ignores the active query")
}
