package delivery

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/NebulaLumino/ClipVault/db"
)

// parseClock parses "HH:MM" into minutes past midnight.
func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return hh*60 + mm, nil
}

// CanDeliverNow reports whether now falls outside the user's quiet hours.
// The window is [start, end) and may wrap midnight, like 22:00-06:00.
// Malformed or missing bounds disable the window rather than blocking
// delivery forever.
func CanDeliverNow(p db.Preferences, now time.Time) bool {
	if !p.QuietHoursEnabled || p.QuietHoursStart == "" || p.QuietHoursEnd == "" {
		return true
	}
	start, err := parseClock(p.QuietHoursStart)
	if err != nil {
		return true
	}
	end, err := parseClock(p.QuietHoursEnd)
	if err != nil {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur < start || cur >= end
	}
	return cur >= end && cur < start
}

// QuietHoursRemaining returns how long until the quiet window ends. Zero
// when delivery is allowed now.
func QuietHoursRemaining(p db.Preferences, now time.Time) time.Duration {
	if CanDeliverNow(p, now) {
		return 0
	}
	end, err := parseClock(p.QuietHoursEnd)
	if err != nil {
		return 0
	}
	cur := now.Hour()*60 + now.Minute()
	delta := end - cur
	if delta <= 0 {
		delta += 24 * 60
	}
	return time.Duration(delta) * time.Minute
}
