// Package clip advances matches through the clip stages: deciding whether
// a match deserves clips, requesting them from the Allstar API, and
// monitoring their processing status until they are ready to deliver.
package clip

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/NebulaLumino/ClipVault/db"
)

// Filter decides whether a match warrants a clip request. Rejections are
// non-fatal: the match simply completes without clips.
type Filter struct {
	MaxClipsPerMatch int
	MinMatchDuration time.Duration
	ExcludedModes    []string
}

// clipCounter is the one store capability the filter needs.
type clipCounter interface {
	CountClipsByMatch(ctx context.Context, matchID string) (int, error)
}

// ShouldRequest reports whether clips should be requested for a match,
// with a human-readable reason when not.
func (f *Filter) ShouldRequest(ctx context.Context, store clipCounter, m *db.Match) (bool, string, error) {
	limit := f.MaxClipsPerMatch
	if limit <= 0 {
		limit = 5
	}
	existing, err := store.CountClipsByMatch(ctx, m.ID)
	if err != nil {
		return false, "", fmt.Errorf("count clips: %w", err)
	}
	if existing >= limit {
		return false, "clip cap reached", nil
	}
	if d := m.Duration(); d < f.MinMatchDuration {
		return false, fmt.Sprintf("match too short: %s", d), nil
	}
	if mode := m.GameMode(); slices.Contains(f.ExcludedModes, mode) {
		return false, fmt.Sprintf("game mode excluded: %s", mode), nil
	}
	return true, "", nil
}
