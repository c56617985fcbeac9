// Package oauth provides token refresh scheduling for linked platform
// accounts. It performs jittered checks and refreshes accounts whose
// tokens fall within a configured expiry window; accounts that cannot be
// refreshed are marked expired so pollers skip them until relinked.
package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/NebulaLumino/ClipVault/db"
)

// RefreshFunc performs the platform-specific token refresh.
type RefreshFunc func(ctx context.Context, refreshToken string) (access, refresh string, expiry time.Time, err error)

// Store is the account persistence surface the refresher needs.
type Store interface {
	ListAccountsExpiringWithin(ctx context.Context, platform db.Platform, window time.Duration) ([]db.LinkedAccount, error)
	UpdateLinkedAccountTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error
	UpdateLinkedAccountStatus(ctx context.Context, id string, status db.AccountLinkStatus) error
}

// StartRefresher launches a goroutine that periodically refreshes tokens
// for one platform's linked accounts.
// interval: how often to wake up and check.
// window: refresh when remaining token lifetime <= window.
func StartRefresher(ctx context.Context, store Store, platform db.Platform, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	logger := slog.With(slog.String("component", "oauth"), slog.String("platform", string(platform)))
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			refreshExpiring(ctx, store, platform, window, fn, logger)
		}
	}()
}

func refreshExpiring(ctx context.Context, store Store, platform db.Platform, window time.Duration, fn RefreshFunc, logger *slog.Logger) {
	accounts, err := store.ListAccountsExpiringWithin(ctx, platform, window)
	if err != nil {
		logger.Warn("list expiring accounts", slog.Any("err", err))
		return
	}
	for _, acct := range accounts {
		if acct.RefreshToken == "" {
			logger.Warn("account has no refresh token, marking expired", slog.String("account_id", acct.ID))
			if err := store.UpdateLinkedAccountStatus(ctx, acct.ID, db.AccountExpired); err != nil {
				logger.Error("mark account expired", slog.String("account_id", acct.ID), slog.Any("err", err))
			}
			continue
		}
		// Small pre-refresh jitter to avoid stampedes when many instances
		// see the same expiry.
		//nolint:gosec // G404: math/rand is sufficient for jitter, not used for security
		pre := time.Duration(rand.Int63n(int64(5 * time.Second)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(pre):
		}
		access, refresh, expiry, err := fn(ctx, acct.RefreshToken)
		if err != nil {
			logger.Warn("token refresh failed, marking expired",
				slog.String("account_id", acct.ID),
				slog.Any("err", err))
			if serr := store.UpdateLinkedAccountStatus(ctx, acct.ID, db.AccountExpired); serr != nil {
				logger.Error("mark account expired", slog.String("account_id", acct.ID), slog.Any("err", serr))
			}
			continue
		}
		if refresh == "" {
			refresh = acct.RefreshToken
		}
		if err := store.UpdateLinkedAccountTokens(ctx, acct.ID, access, refresh, expiry); err != nil {
			logger.Error("store refreshed tokens", slog.String("account_id", acct.ID), slog.Any("err", err))
			continue
		}
		logger.Info("token refreshed", slog.String("account_id", acct.ID), slog.Time("expiry", expiry))
	}
}
