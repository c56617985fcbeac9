package delivery

import (
	"testing"
	"time"

	"github.com/NebulaLumino/ClipVault/db"
)

func quietPrefs(start, end string) db.Preferences {
	return db.Preferences{
		UserID:            "u1",
		QuietHoursEnabled: true,
		QuietHoursStart:   start,
		QuietHoursEnd:     end,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 1, hour, minute, 0, 0, time.UTC)
}

func TestCanDeliverNow(t *testing.T) {
	tests := []struct {
		name  string
		prefs db.Preferences
		now   time.Time
		want  bool
	}{
		{"disabled", db.Preferences{}, at(23, 30), true},
		{"wrapping window, inside before midnight", quietPrefs("22:00", "06:00"), at(23, 30), false},
		{"wrapping window, inside after midnight", quietPrefs("22:00", "06:00"), at(3, 0), false},
		{"wrapping window, after end", quietPrefs("22:00", "06:00"), at(7, 0), true},
		{"wrapping window, before start", quietPrefs("22:00", "06:00"), at(21, 0), true},
		{"wrapping window, at start", quietPrefs("22:00", "06:00"), at(22, 0), false},
		{"wrapping window, at end", quietPrefs("22:00", "06:00"), at(6, 0), true},
		{"same-day window, inside", quietPrefs("12:00", "14:00"), at(13, 0), false},
		{"same-day window, outside", quietPrefs("12:00", "14:00"), at(15, 0), true},
		{"malformed start disables window", quietPrefs("25:99", "06:00"), at(23, 30), true},
		{"missing end disables window", quietPrefs("22:00", ""), at(23, 30), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanDeliverNow(tt.prefs, tt.now); got != tt.want {
				t.Errorf("CanDeliverNow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuietHoursRemaining(t *testing.T) {
	p := quietPrefs("22:00", "06:00")

	if got := QuietHoursRemaining(p, at(23, 30)); got != 6*time.Hour+30*time.Minute {
		t.Errorf("remaining at 23:30 = %v, want 6h30m", got)
	}
	if got := QuietHoursRemaining(p, at(5, 0)); got != time.Hour {
		t.Errorf("remaining at 05:00 = %v, want 1h", got)
	}
	if got := QuietHoursRemaining(p, at(12, 0)); got != 0 {
		t.Errorf("remaining outside window = %v, want 0", got)
	}
}
