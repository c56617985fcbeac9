package clip

import (
	"context"
	"testing"
	"time"

	"github.com/NebulaLumino/ClipVault/db"
)

type fixedClipCount int

func (n fixedClipCount) CountClipsByMatch(context.Context, string) (int, error) {
	return int(n), nil
}

func testMatch(dur time.Duration, mode string) *db.Match {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := &db.Match{ID: "m1", StartedAt: start, EndedAt: start.Add(dur)}
	if mode != "" {
		m.Metadata = map[string]any{"gameMode": mode}
	}
	return m
}

func TestShouldRequest(t *testing.T) {
	f := &Filter{
		MaxClipsPerMatch: 3,
		MinMatchDuration: 5 * time.Minute,
		ExcludedModes:    []string{"deathmatch", "practice"},
	}

	tests := []struct {
		name       string
		existing   fixedClipCount
		match      *db.Match
		want       bool
		wantReason string
	}{
		{"eligible", 0, testMatch(30*time.Minute, "all_pick"), true, ""},
		{"cap reached", 3, testMatch(30*time.Minute, "all_pick"), false, "clip cap reached"},
		{"over cap", 7, testMatch(30*time.Minute, "all_pick"), false, "clip cap reached"},
		{"too short", 0, testMatch(2*time.Minute, "all_pick"), false, "match too short: 2m0s"},
		{"excluded mode", 0, testMatch(30*time.Minute, "deathmatch"), false, "game mode excluded: deathmatch"},
		{"unknown mode passes", 0, testMatch(30*time.Minute, ""), true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason, err := f.ShouldRequest(context.Background(), tt.existing, tt.match)
			if err != nil {
				t.Fatalf("ShouldRequest() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ShouldRequest() = %v, want %v", got, tt.want)
			}
			if reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}

func TestShouldRequestZeroDurationMatch(t *testing.T) {
	// Matches without a reported end time have duration 0 and are rejected
	// only when a minimum is configured.
	m := &db.Match{ID: "m1", Metadata: map[string]any{"gameMode": "battle_royale"}}

	lenient := &Filter{}
	if ok, _, err := lenient.ShouldRequest(context.Background(), fixedClipCount(0), m); err != nil || !ok {
		t.Errorf("no minimum: got ok=%v err=%v, want true", ok, err)
	}

	strict := &Filter{MinMatchDuration: time.Minute}
	if ok, reason, err := strict.ShouldRequest(context.Background(), fixedClipCount(0), m); err != nil || ok {
		t.Errorf("with minimum: got ok=%v err=%v, want rejection", ok, err)
	} else if reason != "match too short: 0s" {
		t.Errorf("reason = %q", reason)
	}
}
