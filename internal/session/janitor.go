package session

import (
	"context"
	"time"

	"github.com/campaign/internal/logger"
)

// Janitor периодически удаляет истёкшие сессии (ленивое удаление при доступе не покрывает
// сессии, к которым больше не обращаются).
type Janitor struct {
	mgr      *Manager
	interval time.Duration
}

func NewJanitor(mgr *Manager, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{mgr: mgr, interval: interval}
}

// Run блокируется до отмены ctx.
func (j *Janitor) Run(ctx context.Context) {
	t := time.NewTicker(j.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *Janitor) RunOnce(ctx context.Context) int {
	n, err := j.mgr.CleanupExpired(ctx)
	if err != nil {
		logger.Errorf("session cleanup: %v", err)
		return 0
	}
	if n > 0 {
		logger.Infof("session cleanup: removed %d expired sessions", n)
	}
	return n
}
