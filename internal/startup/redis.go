package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/campaign/internal/logger"
	redisstorage "github.com/campaign/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis с повторами.
func ConnectRedisWithRetry(ctx context.Context, redisURL string, maxWait time.Duration, logPrefix string) (*redisstorage.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()
	var client *redisstorage.Client
	err := retry.Do(func() error {
		connCtx, connCancel := context.WithTimeout(ctx, 5*time.Second)
		defer connCancel()
		c, err := redisstorage.New(connCtx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	}, backoffOpts(ctx, "redis", logPrefix)...)
	if err != nil {
		return nil, fmt.Errorf("redis (gave up after %v): %w", maxWait, err)
	}
	logger.Infof("%sredis connected", logPrefix)
	return client, nil
}
