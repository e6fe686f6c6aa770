package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campaign/internal/logger"
)

// backoffOpts — экспоненциальная пауза 2s → 30s до истечения maxWait.
func backoffOpts(ctx context.Context, what, logPrefix string) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(2 * time.Second),
		retry.MaxDelay(30 * time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Errorf("%s%s connect failed (attempt %d), retrying: %v", logPrefix, what, n+1, err)
		}),
	}
}

// ConnectDBWithRetry подключается к Postgres с повторами; при недоступности БД не роняет процесс сразу.
// logPrefix добавляется к сообщениям лога (например "auth: ").
func ConnectDBWithRetry(ctx context.Context, poolCfg *pgxpool.Config, maxWait time.Duration, logPrefix string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()
	var pool *pgxpool.Pool
	err := retry.Do(func() error {
		connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
		defer connCancel()
		p, err := pgxpool.NewWithConfig(connCtx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(connCtx); err != nil {
			p.Close()
			return fmt.Errorf("ping: %w", err)
		}
		pool = p
		return nil
	}, backoffOpts(ctx, "db", logPrefix)...)
	if err != nil {
		return nil, fmt.Errorf("connect to db (gave up after %v): %w", maxWait, err)
	}
	return pool, nil
}
