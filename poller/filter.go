package poller

import (
	"time"

	"github.com/NebulaLumino/ClipVault/db"
)

// MinPollInterval is the default floor between upstream calls for one
// account, so racing workers never hammer a platform API.
const MinPollInterval = 60 * time.Second

// ShouldPoll reports whether an account is due for a poll cycle.
// A minInterval of zero falls back to MinPollInterval.
func ShouldPoll(state *db.PollState, minInterval time.Duration, now time.Time) bool {
	if state == nil {
		return true
	}
	if !state.PollingEnabled {
		return false
	}
	if state.LastCheckedAt.IsZero() {
		return true
	}
	if minInterval <= 0 {
		minInterval = MinPollInterval
	}
	return now.Sub(state.LastCheckedAt) >= minInterval
}

// FilterNewMatches slices a newest-first listing at the last known match id
// (exclusive). When the cursor is absent, or no longer present in the page
// because the history window moved past it, every match counts as new.
func FilterNewMatches(matches []Match, lastKnownID string) []Match {
	if lastKnownID == "" {
		return matches
	}
	for i, m := range matches {
		if m.ExternalID == lastKnownID {
			return matches[:i]
		}
	}
	return matches
}

// FilterOldMatches drops matches older than maxAge, so an outage cannot
// resurrect long-expired matches. Matches without a start time are kept.
func FilterOldMatches(matches []Match, maxAge time.Duration, now time.Time) []Match {
	cutoff := now.Add(-maxAge)
	out := matches[:0:0]
	for _, m := range matches {
		if !m.StartedAt.IsZero() && m.StartedAt.Before(cutoff) {
			continue
		}
		out = append(out, m)
	}
	return out
}

const (
	defaultPageSize = 20
	defaultMaxAge   = 24 * time.Hour
)

func pageSize(n int) int {
	if n > 0 {
		return n
	}
	return defaultPageSize
}

func maxAge(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return defaultMaxAge
}

func cursorOf(state *db.PollState) string {
	if state == nil {
		return ""
	}
	return state.LastMatchID
}

func endFrom(start time.Time, d time.Duration) time.Time {
	if start.IsZero() || d <= 0 {
		return time.Time{}
	}
	return start.Add(d)
}

// resultFrom advances the cursor to the newest detected match, when any.
func resultFrom(matches []Match) Result {
	r := Result{Matches: matches}
	if len(matches) > 0 {
		r.Cursor = matches[0].ExternalID
	}
	return r
}
