package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/ddialog/pkg/adapters/memory"
	"github.com/aretw0/ddialog/pkg/adapters/redis"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s *SlowStore) Load(ctx context.Context, id string) (*domain.Progress, error) {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Load(ctx, id)
}

func (s *SlowStore) Save(ctx context.Context, id string, p *domain.Progress) error {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Save(ctx, id, p)
}

func incrementTurns(t *testing.T, mgr *session.Manager, id string, workers int) {
	t.Helper()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.WithLock(ctx, id, func(ctx context.Context) error {
				p, err := mgr.LoadOrNew(ctx, id)
				if err != nil {
					return err
				}
				p.Turns++
				return mgr.Store().Save(ctx, id, p)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestManager_SerializesTurns(t *testing.T) {
	mgr := session.NewManager(&SlowStore{Store: memory.NewStore()})

	incrementTurns(t, mgr, "race-test", 20)

	p, err := mgr.Load(context.Background(), "race-test")
	require.NoError(t, err)
	assert.Equal(t, 20, p.Turns, "every read-modify-write must be serialized")
}

func TestManager_DistributedLocker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	store := redis.NewFromClient(client)
	locker := redis.NewLocker(client, "test:")

	// Two managers model two replicas sharing one Redis.
	a := session.NewManager(store, session.WithLocker(locker))
	b := session.NewManager(store, session.WithLocker(locker))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); incrementTurns(t, a, "shared", 5) }()
	go func() { defer wg.Done(); incrementTurns(t, b, "shared", 5) }()
	wg.Wait()

	p, err := a.Load(context.Background(), "shared")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Turns)
	assert.False(t, mr.Exists("test:lock:shared"), "lock released")
}

func TestManager_LoadOrNew(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())

	p, err := mgr.LoadOrNew(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, p.Idle())

	ids, err := mgr.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids, "fresh progress is not persisted")
}

type failingStore struct{ *memory.Store }

func (failingStore) Load(context.Context, string) (*domain.Progress, error) {
	return nil, errors.New("disk on fire")
}

func TestManager_LoadOrNewWrapsFailures(t *testing.T) {
	mgr := session.NewManager(failingStore{memory.NewStore()})

	_, err := mgr.LoadOrNew(context.Background(), "x")
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "load", perr.Op)
}
