// Package riotapi contains minimal helpers for the Riot Match-V5 API:
// listing recent League of Legends match ids for a PUUID and fetching
// match details.
package riotapi

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

const defaultBaseURL = "https://americas.api.riotgames.com"

// Match holds the subset of Match-V5 detail the pipeline cares about.
type Match struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	GameMode  string
}

// Client queries the Riot regional routing API.
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultBaseURL
}

// ListMatchIDs returns recent match ids for a PUUID, newest first.
func (c *Client) ListMatchIDs(ctx context.Context, puuid string, count int) ([]string, error) {
	if puuid == "" {
		return nil, fmt.Errorf("puuid empty")
	}
	if count <= 0 {
		count = 20
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base()+"/lol/match/v5/matches/by-puuid/"+puuid+"/ids", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("count", fmt.Sprintf("%d", count))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("X-Riot-Token", c.APIKey)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("riot match ids failed: %s: %s", resp.Status, string(b))
	}
	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetMatch fetches detail for one match id. Returns nil when the match is
// unknown upstream.
func (c *Client) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	if matchID == "" {
		return nil, fmt.Errorf("matchID empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base()+"/lol/match/v5/matches/"+matchID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Riot-Token", c.APIKey)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("riot match detail failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Metadata struct {
			MatchID string `json:"matchId"`
		} `json:"metadata"`
		Info struct {
			GameStartTimestamp int64  `json:"gameStartTimestamp"`
			GameDuration       int64  `json:"gameDuration"`
			GameMode           string `json:"gameMode"`
		} `json:"info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &Match{
		ID:        body.Metadata.MatchID,
		StartedAt: time.UnixMilli(body.Info.GameStartTimestamp).UTC(),
		Duration:  time.Duration(body.Info.GameDuration) * time.Second,
		GameMode:  strings.ToLower(body.Info.GameMode),
	}, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
