package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-engine/internal/service"
)

// StartSessionSweeper runs an opportunistic background prune of expired
// session references. Lazy expiry on read keeps listings correct without
// it; interval <= 0 disables the sweeper.
func StartSessionSweeper(ctx context.Context, sessions *service.SessionService, interval time.Duration, logger *zap.Logger) {
	if sessions == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := sessions.SweepExpired(ctx)
				if err != nil {
					logger.Warn("session sweep failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					logger.Debug("session sweep", zap.Int("removed", removed))
				}
			}
		}
	}()
}
