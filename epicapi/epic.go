// Package epicapi reads Fortnite lifetime stats through the Epic Games
// stats service, authenticating with client credentials. Epic exposes no
// per-match history, so callers infer activity from stat deltas.
package epicapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is the Epic OAuth token endpoint, exported for callers
// that perform their own token exchanges against the same client.
const DefaultTokenURL = "https://api.epicgames.dev/epic/oauth/v2/token"

const defaultStatsURL = "https://statsproxy-public-service-live.ol.epicgames.com/statsproxy/api/statsv2"

// Stats is the subset of Fortnite lifetime stats the poller consumes.
type Stats struct {
	MatchesPlayed int
}

// Client queries the Epic stats proxy.
type Client struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	StatsURL     string
	HTTPClient   *http.Client
}

func (c *Client) statsBase() string {
	if c.StatsURL != "" {
		return strings.TrimRight(c.StatsURL, "/")
	}
	return defaultStatsURL
}

// authedClient builds an http.Client that injects a client-credentials
// token on every request.
func (c *Client) authedClient(ctx context.Context) *http.Client {
	tokenURL := c.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	cfg := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     tokenURL,
	}
	if c.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}
	return cfg.Client(ctx)
}

// GetLifetimeStats fetches the lifetime match count for an Epic account.
func (c *Client) GetLifetimeStats(ctx context.Context, accountID string) (*Stats, error) {
	if accountID == "" {
		return nil, fmt.Errorf("accountID empty")
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return nil, fmt.Errorf("missing epic client id/secret")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.statsBase()+"/account/"+accountID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.authedClient(ctx).Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("epic stats failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Stats map[string]int `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	total := 0
	for key, v := range body.Stats {
		if strings.HasPrefix(key, "br_matchesplayed") {
			total += v
		}
	}
	return &Stats{MatchesPlayed: total}, nil
}
