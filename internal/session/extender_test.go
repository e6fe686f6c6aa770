package session_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaign/internal/model"
	"github.com/campaign/internal/session"
	"github.com/campaign/internal/session/sessiontest"
	"github.com/campaign/internal/storage/memory"
)

func TestExtender_DropsWhenFullAndDeduplicates(t *testing.T) {
	store := sessiontest.NewStore()
	mgr := session.NewManager(store, memory.New(), session.Options{})
	e := session.NewExtender(mgr, 1, 1)

	// Воркеры не запущены: очередь вмещает одну задачу.
	assert.True(t, e.Schedule(1, "t1"))
	assert.False(t, e.Schedule(1, "t1"), "same session is already queued")
	assert.False(t, e.Schedule(2, "t2"), "queue is full")

	e.Start(context.Background())
	require.Eventually(t, func() bool {
		return store.Calls(sessiontest.OpUpdate) == 1
	}, time.Second, 5*time.Millisecond)

	// После обработки сессию снова можно поставить.
	require.Eventually(t, func() bool { return e.Schedule(2, "t2") }, time.Second, 5*time.Millisecond)
	e.Stop()
	assert.False(t, e.Schedule(3, "t3"), "stopped extender accepts nothing")
	e.Stop()
}

type panickyStore struct {
	*sessiontest.Store
	panics atomic.Int32
}

func (s *panickyStore) Update(ctx context.Context, id int64, upd model.SessionUpdate, now time.Time) (*model.Session, error) {
	s.panics.Add(1)
	panic("boom")
}

func TestExtender_RecoversFromPanics(t *testing.T) {
	store := &panickyStore{Store: sessiontest.NewStore()}
	mgr := session.NewManager(store, memory.New(), session.Options{})
	e := session.NewExtender(mgr, 1, 4)
	e.Start(context.Background())
	defer e.Stop()

	require.True(t, e.Schedule(1, "t1"))
	require.Eventually(t, func() bool { return store.panics.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Воркер жив, отметка in-flight снята.
	require.Eventually(t, func() bool { return e.Schedule(1, "t1") }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return store.panics.Load() == 2 }, time.Second, 5*time.Millisecond)
}
