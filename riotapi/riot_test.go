package riotapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestListMatchIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lol/match/v5/matches/by-puuid/puuid-1/ids" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Riot-Token") != "riotkey" {
			t.Errorf("token header = %q", r.Header.Get("X-Riot-Token"))
		}
		if r.URL.Query().Get("count") != "5" {
			t.Errorf("count = %q, want 5", r.URL.Query().Get("count"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["NA1_303","NA1_302","NA1_301"]`))
	}))
	defer srv.Close()

	c := &Client{APIKey: "riotkey", BaseURL: srv.URL}
	ids, err := c.ListMatchIDs(context.Background(), "puuid-1", 5)
	if err != nil {
		t.Fatalf("ListMatchIDs() error: %v", err)
	}
	if len(ids) != 3 || ids[0] != "NA1_303" {
		t.Errorf("ids = %v", ids)
	}
}

func TestGetMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lol/match/v5/matches/NA1_303":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"metadata": {"matchId": "NA1_303"},
				"info": {"gameStartTimestamp": 1748779200000, "gameDuration": 1854, "gameMode": "CLASSIC"}
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := &Client{APIKey: "riotkey", BaseURL: srv.URL}

	m, err := c.GetMatch(context.Background(), "NA1_303")
	if err != nil {
		t.Fatalf("GetMatch() error: %v", err)
	}
	if m.ID != "NA1_303" || m.GameMode != "classic" {
		t.Errorf("match = %+v", m)
	}
	if m.Duration != 1854*time.Second {
		t.Errorf("duration = %v", m.Duration)
	}
	want := time.UnixMilli(1748779200000).UTC()
	if !m.StartedAt.Equal(want) {
		t.Errorf("started at = %v, want %v", m.StartedAt, want)
	}

	// Vanished match: nil, not an error.
	gone, err := c.GetMatch(context.Background(), "NA1_999")
	if err != nil {
		t.Fatalf("GetMatch() 404 error: %v", err)
	}
	if gone != nil {
		t.Errorf("expected nil for unknown match, got %+v", gone)
	}
}

func TestListMatchIDsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := &Client{APIKey: "riotkey", BaseURL: srv.URL}
	if _, err := c.ListMatchIDs(context.Background(), "puuid-1", 5); err == nil {
		t.Error("expected error on 429")
	}
}
