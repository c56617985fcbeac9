// Package allstarapi wraps the Allstar clip generation API: requesting a
// clip for a detected match and checking its processing status.
package allstarapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.allstar.gg/v1"

// ErrNotConfigured is returned when no API key is set. Callers treat it as
// a permanent condition rather than a transient failure.
var ErrNotConfigured = errors.New("allstar api key not configured")

// Client calls the Allstar clip service.
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

// ClipRequest identifies the match clips should be generated from.
type ClipRequest struct {
	Platform        string `json:"platform"`
	GameTitle       string `json:"gameTitle"`
	PlatformMatchID string `json:"platformMatchId"`
	MatchID         string `json:"matchId"`
}

// ClipBatch is the result of a clip request: zero or more clip stubs that
// will be processed asynchronously upstream.
type ClipBatch struct {
	RequestID string
	Clips     []Clip
}

// Clip is the Allstar view of a clip job.
type Clip struct {
	ID           string
	Status       string
	Type         string
	Title        string
	VideoURL     string
	ThumbnailURL string
	Duration     time.Duration
}

type clipBody struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	Type         string  `json:"type"`
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	DurationSecs float64 `json:"duration"`
}

func (b clipBody) clip() Clip {
	return Clip{
		ID:           b.ID,
		Status:       b.Status,
		Type:         b.Type,
		Title:        b.Title,
		VideoURL:     b.URL,
		ThumbnailURL: b.ThumbnailURL,
		Duration:     time.Duration(b.DurationSecs * float64(time.Second)),
	}
}

// RequestClips submits a clip generation request for a match and returns
// the clip stubs the service created for it.
func (c *Client) RequestClips(ctx context.Context, req ClipRequest) (*ClipBatch, error) {
	if c.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if req.PlatformMatchID == "" {
		return nil, fmt.Errorf("platformMatchId empty")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/clips", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.http().Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("allstar clip request failed: %s: %s", resp.Status, string(b))
	}
	var rb struct {
		RequestID string     `json:"requestId"`
		Clips     []clipBody `json:"clips"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return nil, err
	}
	batch := &ClipBatch{RequestID: rb.RequestID, Clips: make([]Clip, 0, len(rb.Clips))}
	for _, cb := range rb.Clips {
		if cb.ID == "" {
			return nil, errors.New("empty clip id in allstar response")
		}
		batch.Clips = append(batch.Clips, cb.clip())
	}
	return batch, nil
}

// GetClip fetches the current state of a clip job. Returns nil when the
// clip is unknown upstream.
func (c *Client) GetClip(ctx context.Context, clipID string) (*Clip, error) {
	if c.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if clipID == "" {
		return nil, fmt.Errorf("clipID empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/clips/"+clipID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
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
		return nil, fmt.Errorf("allstar get clip failed: %s: %s", resp.Status, string(b))
	}
	var cb clipBody
	if err := json.NewDecoder(resp.Body).Decode(&cb); err != nil {
		return nil, err
	}
	clip := cb.clip()
	return &clip, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
