package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EXCLUDED_GAME_MODES", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PollSweepInterval != time.Minute {
		t.Errorf("PollSweepInterval = %v, want 1m", cfg.PollSweepInterval)
	}
	if cfg.MatchMaxAge != 24*time.Hour {
		t.Errorf("MatchMaxAge = %v, want 24h", cfg.MatchMaxAge)
	}
	if cfg.ClipCapPerMatch != 5 {
		t.Errorf("ClipCapPerMatch = %d, want 5", cfg.ClipCapPerMatch)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if len(cfg.ExcludedGameModes) != 2 {
		t.Errorf("ExcludedGameModes = %v, want defaults", cfg.ExcludedGameModes)
	}
	if cfg.BackoffMultiplier != 2 {
		t.Errorf("BackoffMultiplier = %v, want 2", cfg.BackoffMultiplier)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POLL_SWEEP_INTERVAL", "5m")
	t.Setenv("CLIP_CAP_PER_MATCH", "3")
	t.Setenv("EXCLUDED_GAME_MODES", "Turbo, practice ,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PollSweepInterval != 5*time.Minute {
		t.Errorf("PollSweepInterval = %v, want 5m", cfg.PollSweepInterval)
	}
	if cfg.ClipCapPerMatch != 3 {
		t.Errorf("ClipCapPerMatch = %d, want 3", cfg.ClipCapPerMatch)
	}
	want := []string{"turbo", "practice"}
	if len(cfg.ExcludedGameModes) != len(want) {
		t.Fatalf("ExcludedGameModes = %v, want %v", cfg.ExcludedGameModes, want)
	}
	for i := range want {
		if cfg.ExcludedGameModes[i] != want[i] {
			t.Errorf("ExcludedGameModes[%d] = %q, want %q", i, cfg.ExcludedGameModes[i], want[i])
		}
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("POLL_SWEEP_INTERVAL", "often")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestValidateDeliveryReady(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.ValidateDeliveryReady(); err == nil {
		t.Error("expected error without bot token")
	}

	t.Setenv("DISCORD_BOT_TOKEN", "token")
	cfg, _ = Load()
	if err := cfg.ValidateDeliveryReady(); err != nil {
		t.Errorf("expected valid delivery config, got %v", err)
	}
}
