package detect

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/NebulaLumino/ClipVault/telemetry"
)

// StartSweepJob runs detection sweeps on a fixed interval until ctx is
// cancelled. The first sweep runs immediately.
func StartSweepJob(ctx context.Context, svc *Service, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	slog.Info("detection sweep job starting", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	runSweep(ctx, svc)
	for {
		select {
		case <-ctx.Done():
			slog.Info("detection sweep job stopped")
			return
		case <-ticker.C:
			runSweep(ctx, svc)
		}
	}
}

func runSweep(ctx context.Context, svc *Service) {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	checked, found, err := svc.DetectAllAccounts(ctx)
	logger := telemetry.LoggerWithCorr(ctx)
	if err != nil {
		logger.Warn("detection sweep", slog.Any("err", err))
		return
	}
	logger.Info("detection sweep complete",
		slog.Int("accounts_checked", checked),
		slog.Int("matches_found", found))
}
