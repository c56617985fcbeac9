// Package poller holds the per-platform match detection strategies. Each
// strategy answers one question for a linked account: which matches has
// this player finished since the poll cursor last moved.
//
// Upstream listings are newest-first; strategies slice at the cursor so
// only strictly newer matches come back. Upstream errors are the caller's
// to contain, never to surface to users.
package poller

import (
	"context"
	"time"

	"github.com/NebulaLumino/ClipVault/db"
)

// Match is one newly observed match from a platform, newest-first in
// returned slices.
type Match struct {
	ExternalID string
	Game       db.GameTitle
	StartedAt  time.Time
	EndedAt    time.Time
	Metadata   map[string]any
}

// Result is one poll cycle's outcome. Cursor is the value the poll state
// should advance to; empty means leave the cursor where it is.
type Result struct {
	Matches []Match
	Cursor  string
}

// Poller lists newly observed matches for one game title.
type Poller interface {
	Game() db.GameTitle
	Platform() db.Platform
	Poll(ctx context.Context, acct *db.LinkedAccount, state *db.PollState) (Result, error)
}

// Registry dispatches to the pollers for a platform. Dispatch is a lookup
// table, built once at startup. A platform can carry more than one game
// (Steam hosts both CS2 and Dota 2); all of its pollers run each sweep and
// share the account's cursor, relying on the absent-cursor and dedupe
// rules for correctness.
type Registry struct {
	pollers map[db.Platform][]Poller
}

func NewRegistry(pollers ...Poller) *Registry {
	m := make(map[db.Platform][]Poller)
	for _, p := range pollers {
		m[p.Platform()] = append(m[p.Platform()], p)
	}
	return &Registry{pollers: m}
}

// ForPlatform returns the pollers registered for a platform.
func (r *Registry) ForPlatform(platform db.Platform) []Poller {
	return r.pollers[platform]
}
