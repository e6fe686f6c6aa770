package session

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/campaign/internal/logger"
)

type extendJob struct {
	sessionID int64
	token     string
}

// Extender выполняет скользящее продление в фоне: ограниченная очередь, фиксированное число
// воркеров, не более одной задачи на сессию одновременно. Ответ на запрос его не ждёт.
type Extender struct {
	mgr     *Manager
	workers int
	queue   chan extendJob

	inflight sync.Map // sessionID → struct{}

	mu      sync.RWMutex
	stopped bool
	wg      *pool.Pool
	cancel  context.CancelFunc
}

func NewExtender(mgr *Manager, workers, queueSize int) *Extender {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Extender{mgr: mgr, workers: workers, queue: make(chan extendJob, queueSize)}
}

// Start запускает воркеров. Остановка — Stop.
func (e *Extender) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg = pool.New().WithMaxGoroutines(e.workers)
	for i := 0; i < e.workers; i++ {
		e.wg.Go(func() {
			for job := range e.queue {
				e.run(ctx, job)
			}
		})
	}
}

// Schedule не блокирует: при полной очереди задача отбрасывается с предупреждением.
func (e *Extender) Schedule(sessionID int64, token string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return false
	}
	if _, loaded := e.inflight.LoadOrStore(sessionID, struct{}{}); loaded {
		return false
	}
	select {
	case e.queue <- extendJob{sessionID: sessionID, token: token}:
		return true
	default:
		e.inflight.Delete(sessionID)
		logger.Warnf("session extender queue full, dropping extension for id=%d", sessionID)
		return false
	}
}

// Stop дожидается обработки уже принятых задач.
func (e *Extender) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.queue)
	e.mu.Unlock()
	if e.wg != nil {
		e.wg.Wait()
	}
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Extender) run(ctx context.Context, job extendJob) {
	defer e.inflight.Delete(job.sessionID)
	var pc panics.Catcher
	pc.Try(func() { e.extend(ctx, job) })
	if r := pc.Recovered(); r != nil {
		logger.Errorf("session extension panic id=%d: %v", job.sessionID, r.AsError())
	}
}

func (e *Extender) extend(ctx context.Context, job extendJob) {
	s, err := e.mgr.ExtendExpiry(ctx, job.sessionID)
	if errors.Is(err, ErrUnauthenticated) {
		// сессия удалена или истекла — проекция не должна пережить её
		e.mgr.cache.invalidate(ctx, job.token)
		return
	}
	if err != nil {
		logger.Warnf("session extension id=%d: %v", job.sessionID, err)
		return
	}
	e.mgr.RefreshCache(ctx, s)
	logger.Debugf("session extended: id=%d expires_at=%s", s.ID, s.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
}
