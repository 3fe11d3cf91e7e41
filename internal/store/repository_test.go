package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"driveguardian/go-backend/internal/models"
)

var now = time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)

func record(id string, score float64) models.SessionRecord {
	return models.SessionRecord{
		ID:       id,
		Date:     now,
		Duration: 12,
		Score:    score,
		Alerts:   1,
		Status:   models.StatusSafe,
		Notes:    "Good driving with minimal alerts.",
	}
}

func newRepo(historyLimit, publishedLimit int) *Repository {
	return NewRepository(NewMemory(), historyLimit, publishedLimit, zap.NewNop())
}

func TestRepositoryHistory(t *testing.T) {
	ctx := context.Background()
	r := newRepo(3, 0)

	list, err := r.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = r.LastSession(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	for i := 1; i <= 4; i++ {
		require.NoError(t, r.SaveSession(ctx, record(fmt.Sprint(i), float64(i))))
	}

	list, err = r.History(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "4", list[0].ID, "newest first")
	assert.Equal(t, "2", list[2].ID, "oldest evicted")

	last, err := r.LastSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4", last.ID)
	assert.True(t, last.Date.Equal(now))
}

func TestRepositoryLogin(t *testing.T) {
	ctx := context.Background()
	r := newRepo(0, 0)

	state, err := r.LoginState(ctx)
	require.NoError(t, err)
	assert.False(t, state.LoggedIn)

	assert.ErrorIs(t, r.Login(ctx, "  "), ErrInvalidLogin)

	require.NoError(t, r.Login(ctx, "jane@example.com"))
	state, err = r.LoginState(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.LoginState{LoggedIn: true, Driver: "jane@example.com"}, state)

	require.NoError(t, r.Logout(ctx))
	state, err = r.LoginState(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.LoginState{}, state)
}

func TestRepositoryPublish(t *testing.T) {
	ctx := context.Background()
	r := newRepo(0, 2)

	_, err := r.Publish(ctx, models.PublishRequest{}, now)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, r.Login(ctx, "jane@example.com"))
	_, err = r.Publish(ctx, models.PublishRequest{}, now)
	assert.ErrorIs(t, err, ErrNoLastSession)

	require.NoError(t, r.SaveSession(ctx, record("a", 9.5)))
	j, err := r.Publish(ctx, models.PublishRequest{VehicleType: "Truck"}, now)
	require.NoError(t, err)
	assert.Equal(t, "jane", j.DriverName)
	assert.Equal(t, "Truck", j.VehicleType)
	assert.Equal(t, "Unknown", j.Distance)
	assert.True(t, j.IsPublished)
	assert.Equal(t, "a", j.ID)

	require.NoError(t, r.SaveSession(ctx, record("b", 8)))
	_, err = r.Publish(ctx, models.PublishRequest{}, now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, r.SaveSession(ctx, record("c", 7)))
	_, err = r.Publish(ctx, models.PublishRequest{}, now.Add(2*time.Minute))
	require.NoError(t, err)

	list, err := r.Published(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "oldest entry evicted from the head")
	assert.Equal(t, "c", list[1].ID)
}

func TestRepositoryConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	r := newRepo(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.SaveSession(ctx, record(fmt.Sprint(i), 5)))
		}(i)
	}
	wg.Wait()

	list, err := r.History(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

type failingKV struct{ *Memory }

func (failingKV) Get(context.Context, string) (string, error) {
	return "", errors.New("backend down")
}

func TestRepositoryBackendErrors(t *testing.T) {
	ctx := context.Background()
	r := NewRepository(failingKV{NewMemory()}, 0, 0, zap.NewNop())

	_, err := r.History(ctx)
	assert.ErrorContains(t, err, "backend down")
	assert.Error(t, r.SaveSession(ctx, record("x", 5)))
	_, err = r.LoginState(ctx)
	assert.Error(t, err)
}

func TestRepositoryCorruptValue(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	require.NoError(t, kv.Set(ctx, KeyHistory, "{not json"))
	r := NewRepository(kv, 0, 0, zap.NewNop())

	_, err := r.History(ctx)
	assert.ErrorContains(t, err, KeyHistory)
}

// historyWriteFails rejects writes to the history key only.
type historyWriteFails struct{ *Memory }

func (k historyWriteFails) Set(ctx context.Context, key, value string) error {
	if key == KeyHistory {
		return errors.New("history write rejected")
	}
	return k.Memory.Set(ctx, key, value)
}

func TestRepositorySaveSessionKeepsSnapshotInStep(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	require.NoError(t, NewRepository(mem, 0, 0, zap.NewNop()).SaveSession(ctx, record("first", 8)))

	r := NewRepository(historyWriteFails{mem}, 0, 0, zap.NewNop())
	assert.ErrorContains(t, r.SaveSession(ctx, record("second", 9)), "history write rejected")

	last, err := r.LastSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", last.ID)
	list, err := r.History(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first", list[0].ID)

	empty := NewRepository(historyWriteFails{NewMemory()}, 0, 0, zap.NewNop())
	require.Error(t, empty.SaveSession(ctx, record("only", 7)))
	_, err = empty.LastSession(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}
