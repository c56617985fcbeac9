package poller

import (
	"context"
	"time"

	"github.com/NebulaLumino/ClipVault/db"
	"github.com/NebulaLumino/ClipVault/steamapi"
)

// Dota2Poller lists recent Dota 2 matches through the official Steam Web
// API match history.
type Dota2Poller struct {
	Steam    *steamapi.Client
	PageSize int
	MaxAge   time.Duration
}

func (p *Dota2Poller) Game() db.GameTitle    { return db.GameDota2 }
func (p *Dota2Poller) Platform() db.Platform { return db.PlatformSteam }

func (p *Dota2Poller) Poll(ctx context.Context, acct *db.LinkedAccount, state *db.PollState) (Result, error) {
	listed, err := p.Steam.ListDotaMatches(ctx, acct.PlatformAccountID, pageSize(p.PageSize))
	if err != nil {
		return Result{}, err
	}
	matches := make([]Match, 0, len(listed))
	for _, m := range listed {
		matches = append(matches, Match{
			ExternalID: m.ID,
			Game:       db.GameDota2,
			StartedAt:  m.StartedAt,
			Metadata:   map[string]any{"gameMode": m.GameMode},
		})
	}
	matches = FilterNewMatches(matches, cursorOf(state))
	res := resultFrom(matches)
	res.Matches = FilterOldMatches(matches, maxAge(p.MaxAge), time.Now())
	return res, nil
}
