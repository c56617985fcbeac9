// Package steamapi contains minimal helpers for listing recent matches of
// Steam-linked accounts. Dota 2 history comes from the official Steam Web
// API; CS2 has no official match-history endpoint, so a third-party stats
// service fills that gap.
package steamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultSteamBaseURL = "https://api.steampowered.com"
	defaultCS2BaseURL   = "https://api.leetify.com/api"
)

// Match is one recent match as reported upstream, newest-first in listings.
type Match struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	GameMode  string
}

// Client queries match history for Steam accounts.
type Client struct {
	APIKey     string
	BaseURL    string
	CS2BaseURL string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) steamBase() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultSteamBaseURL
}

func (c *Client) cs2Base() string {
	if c.CS2BaseURL != "" {
		return strings.TrimRight(c.CS2BaseURL, "/")
	}
	return defaultCS2BaseURL
}

// ListDotaMatches returns the most recent Dota 2 matches for an account id,
// newest first.
func (c *Client) ListDotaMatches(ctx context.Context, accountID string, count int) ([]Match, error) {
	if accountID == "" {
		return nil, fmt.Errorf("accountID empty")
	}
	if count <= 0 {
		count = 20
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.steamBase()+"/IDOTA2Match_570/GetMatchHistory/V001/", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("key", c.APIKey)
	q.Set("account_id", accountID)
	q.Set("matches_requested", fmt.Sprintf("%d", count))
	req.URL.RawQuery = q.Encode()
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("dota match history failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Result struct {
			Matches []struct {
				MatchID   int64 `json:"match_id"`
				StartTime int64 `json:"start_time"`
				GameMode  int   `json:"game_mode"`
			} `json:"matches"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(body.Result.Matches))
	for _, m := range body.Result.Matches {
		out = append(out, Match{
			ID:        fmt.Sprintf("%d", m.MatchID),
			StartedAt: time.Unix(m.StartTime, 0).UTC(),
			GameMode:  dotaGameMode(m.GameMode),
		})
	}
	return out, nil
}

// ListCS2Matches returns recent CS2 matches for a SteamID64, newest first.
// Valve exposes no match-history endpoint for CS2, so this relies on a
// third-party stats aggregator keyed by the same Steam API key.
func (c *Client) ListCS2Matches(ctx context.Context, steamID string, count int) ([]Match, error) {
	if steamID == "" {
		return nil, fmt.Errorf("steamID empty")
	}
	if count <= 0 {
		count = 20
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cs2Base()+"/profile/"+steamID+"/matches", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("limit", fmt.Sprintf("%d", count))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cs2 match history failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Matches []struct {
			ID           string    `json:"id"`
			StartedAt    time.Time `json:"startedAt"`
			DurationSecs int       `json:"duration"`
			Mode         string    `json:"mode"`
		} `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(body.Matches))
	for _, m := range body.Matches {
		out = append(out, Match{
			ID:        m.ID,
			StartedAt: m.StartedAt,
			Duration:  time.Duration(m.DurationSecs) * time.Second,
			GameMode:  m.Mode,
		})
	}
	return out, nil
}

// dotaGameMode maps the numeric game_mode field to the names the clip
// filter matches against. Unmapped modes pass through as "unknown".
func dotaGameMode(mode int) string {
	switch mode {
	case 1, 22:
		return "all_pick"
	case 2:
		return "captains_mode"
	case 3:
		return "random_draft"
	case 4:
		return "single_draft"
	case 5:
		return "all_random"
	case 15:
		return "practice"
	case 16:
		return "captains_draft"
	case 23:
		return "turbo"
	default:
		return "unknown"
	}
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
