package epicapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetLifetimeStats(t *testing.T) {
	var sawToken bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			_ = r.ParseForm()
			if r.Form.Get("grant_type") != "client_credentials" {
				t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"epic-token","expires_in":3600,"token_type":"bearer"}`))
		case "/account/acct-1":
			if !strings.Contains(r.Header.Get("Authorization"), "epic-token") {
				t.Errorf("auth header = %q", r.Header.Get("Authorization"))
			}
			sawToken = true
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"stats": {
					"br_matchesplayed_keyboardmouse_m0_playlist_defaultsolo": 80,
					"br_matchesplayed_gamepad_m0_playlist_defaultduo": 40,
					"br_kills_keyboardmouse_m0_playlist_defaultsolo": 900
				}
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := &Client{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/token",
		StatsURL:     srv.URL,
	}
	stats, err := c.GetLifetimeStats(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetLifetimeStats() error: %v", err)
	}
	if !sawToken {
		t.Error("stats request did not carry the bearer token")
	}
	// Per-playlist matchesplayed stats sum into one lifetime count; other
	// stat keys are ignored.
	if stats.MatchesPlayed != 120 {
		t.Errorf("matches played = %d, want 120", stats.MatchesPlayed)
	}
}

func TestGetLifetimeStatsMissingCredentials(t *testing.T) {
	c := &Client{}
	if _, err := c.GetLifetimeStats(context.Background(), "acct-1"); err == nil {
		t.Error("expected error without client credentials")
	}
}
