package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/NebulaLumino/ClipVault/db"
	"github.com/NebulaLumino/ClipVault/riotapi"
)

// LoLPoller lists recent League of Legends matches for Riot-linked
// accounts. The Match-V5 id listing is cheap; detail is fetched only for
// matches that survive the cursor slice.
type LoLPoller struct {
	Riot     *riotapi.Client
	PageSize int
	MaxAge   time.Duration
}

func (p *LoLPoller) Game() db.GameTitle    { return db.GameLoL }
func (p *LoLPoller) Platform() db.Platform { return db.PlatformRiot }

func (p *LoLPoller) Poll(ctx context.Context, acct *db.LinkedAccount, state *db.PollState) (Result, error) {
	ids, err := p.Riot.ListMatchIDs(ctx, acct.PlatformAccountID, pageSize(p.PageSize))
	if err != nil {
		return Result{}, err
	}
	matches := make([]Match, 0, len(ids))
	for _, id := range ids {
		matches = append(matches, Match{ExternalID: id, Game: db.GameLoL})
	}
	matches = FilterNewMatches(matches, cursorOf(state))
	res := resultFrom(matches)

	for i := range matches {
		detail, err := p.Riot.GetMatch(ctx, matches[i].ExternalID)
		if err != nil {
			return Result{}, err
		}
		if detail == nil {
			slog.Debug("lol match vanished upstream", slog.String("match_id", matches[i].ExternalID))
			continue
		}
		matches[i].StartedAt = detail.StartedAt
		matches[i].EndedAt = endFrom(detail.StartedAt, detail.Duration)
		matches[i].Metadata = map[string]any{"gameMode": detail.GameMode}
	}
	res.Matches = FilterOldMatches(matches, maxAge(p.MaxAge), time.Now())
	return res, nil
}
