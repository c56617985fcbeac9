package poller

import (
	"context"
	"time"

	"github.com/NebulaLumino/ClipVault/db"
	"github.com/NebulaLumino/ClipVault/steamapi"
)

// CS2Poller lists recent CS2 matches for Steam-linked accounts. Valve
// exposes no official CS2 match-history endpoint, so the listing comes
// from a third-party stats service behind the steamapi client.
type CS2Poller struct {
	Steam    *steamapi.Client
	PageSize int
	MaxAge   time.Duration
}

func (p *CS2Poller) Game() db.GameTitle    { return db.GameCS2 }
func (p *CS2Poller) Platform() db.Platform { return db.PlatformSteam }

func (p *CS2Poller) Poll(ctx context.Context, acct *db.LinkedAccount, state *db.PollState) (Result, error) {
	listed, err := p.Steam.ListCS2Matches(ctx, acct.PlatformAccountID, pageSize(p.PageSize))
	if err != nil {
		return Result{}, err
	}
	matches := make([]Match, 0, len(listed))
	for _, m := range listed {
		matches = append(matches, Match{
			ExternalID: m.ID,
			Game:       db.GameCS2,
			StartedAt:  m.StartedAt,
			EndedAt:    endFrom(m.StartedAt, m.Duration),
			Metadata:   map[string]any{"gameMode": m.GameMode},
		})
	}
	matches = FilterNewMatches(matches, cursorOf(state))
	// Advance the cursor past stale matches too, so they are never re-listed.
	res := resultFrom(matches)
	res.Matches = FilterOldMatches(matches, maxAge(p.MaxAge), time.Now())
	return res, nil
}
