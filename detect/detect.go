// Package detect implements the match detection sweep: iterate eligible
// linked accounts, run their platform pollers, persist newly observed
// matches, and hand each new match to the clip-request stage.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NebulaLumino/ClipVault/db"
	"github.com/NebulaLumino/ClipVault/poller"
	"github.com/NebulaLumino/ClipVault/queue"
	"github.com/NebulaLumino/ClipVault/telemetry"
)

// Store is the persistence surface detection needs.
type Store interface {
	GetLinkedAccount(ctx context.Context, id string) (*db.LinkedAccount, error)
	ListPollableAccounts(ctx context.Context) ([]db.LinkedAccount, error)
	GetPollState(ctx context.Context, linkedAccountID string) (*db.PollState, error)
	CreateMatch(ctx context.Context, m *db.Match) (bool, error)
	AdvancePollCursor(ctx context.Context, linkedAccountID, lastMatchID string) error
	TouchPollState(ctx context.Context, linkedAccountID string) error
}

// Enqueuer hands new matches to the clip-request queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, key string, payload any) (bool, error)
}

// Service runs detection cycles for linked accounts.
type Service struct {
	Store    Store
	Queue    Enqueuer
	Registry *poller.Registry

	// SweepConcurrency bounds how many accounts are polled at once.
	SweepConcurrency int
	// MinPollInterval is the per-account floor between upstream polls;
	// zero means poller.MinPollInterval.
	MinPollInterval time.Duration
}

// DetectMatchesForAccount runs one poll cycle for a linked account and
// returns how many new matches were recorded. Re-running against the same
// upstream state is a no-op: match creation is keyed on
// (platform, platform_match_id).
func (s *Service) DetectMatchesForAccount(ctx context.Context, accountID string) (int, error) {
	logger := slog.With(slog.String("component", "detect"), slog.String("account_id", accountID))

	acct, err := s.Store.GetLinkedAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		logger.Warn("account not found")
		return 0, nil
	}
	state, err := s.Store.GetPollState(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("load poll state: %w", err)
	}
	if !poller.ShouldPoll(state, s.MinPollInterval, time.Now()) {
		return 0, nil
	}
	pollers := s.Registry.ForPlatform(acct.Platform)
	if len(pollers) == 0 {
		logger.Warn("no poller for platform", slog.String("platform", string(acct.Platform)))
		return 0, nil
	}

	created := 0
	cursorAdvanced := false
	for _, p := range pollers {
		res, err := p.Poll(ctx, acct, state)
		if err != nil {
			// One platform outage must not fail the account or the sweep.
			telemetry.PollErrors.WithLabelValues(string(acct.Platform)).Inc()
			logger.Warn("poll failed",
				slog.String("game", string(p.Game())),
				slog.Any("err", err))
			continue
		}
		n, err := s.recordMatches(ctx, acct, res.Matches, logger)
		if err != nil {
			return created, err
		}
		created += n
		if res.Cursor != "" {
			if err := s.Store.AdvancePollCursor(ctx, accountID, res.Cursor); err != nil {
				return created, fmt.Errorf("advance poll cursor: %w", err)
			}
			cursorAdvanced = true
		}
	}
	if !cursorAdvanced {
		if err := s.Store.TouchPollState(ctx, accountID); err != nil {
			return created, fmt.Errorf("touch poll state: %w", err)
		}
	}
	if created > 0 {
		logger.Info("detected matches", slog.Int("created", created))
	}
	return created, nil
}

func (s *Service) recordMatches(ctx context.Context, acct *db.LinkedAccount, matches []poller.Match, logger *slog.Logger) (int, error) {
	created := 0
	for _, m := range matches {
		rec := &db.Match{
			UserID:          acct.UserID,
			Platform:        acct.Platform,
			GameTitle:       m.Game,
			PlatformMatchID: m.ExternalID,
			Status:          db.MatchDetected,
			StartedAt:       m.StartedAt,
			EndedAt:         m.EndedAt,
			Metadata:        m.Metadata,
		}
		ok, err := s.Store.CreateMatch(ctx, rec)
		if err != nil {
			return created, fmt.Errorf("create match %s: %w", m.ExternalID, err)
		}
		if !ok {
			continue
		}
		created++
		telemetry.MatchesDetected.WithLabelValues(string(acct.Platform)).Inc()
		payload := queue.ClipRequestPayload{
			MatchID:       rec.ID,
			UserID:        acct.UserID,
			CorrelationID: telemetry.GetCorrelation(ctx),
		}
		if _, err := s.Queue.Enqueue(ctx, queue.QueueClipRequest, rec.ID, payload); err != nil {
			logger.Error("enqueue clip request failed",
				slog.String("match_id", rec.ID),
				slog.Any("err", err))
		}
	}
	return created, nil
}

// DetectAllAccounts sweeps every linked, polling-enabled account with
// bounded concurrency. Account failures are logged and counted, never
// propagated, so one bad account cannot stall the sweep.
func (s *Service) DetectAllAccounts(ctx context.Context) (accountsChecked, matchesFound int, err error) {
	start := time.Now()
	defer telemetry.ObserveSince(telemetry.PollDuration, start)
	telemetry.PollCycles.Inc()

	accounts, err := s.Store.ListPollableAccounts(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list pollable accounts: %w", err)
	}

	var found atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	limit := s.SweepConcurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for _, acct := range accounts {
		g.Go(func() error {
			n, derr := s.DetectMatchesForAccount(gctx, acct.ID)
			if derr != nil {
				slog.Error("detection failed",
					slog.String("component", "detect"),
					slog.String("account_id", acct.ID),
					slog.Any("err", derr))
				return nil
			}
			found.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(accounts), int(found.Load()), err
	}
	return len(accounts), int(found.Load()), nil
}
