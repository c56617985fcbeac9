package allstarapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRequestClips(t *testing.T) {
	var gotAuth string
	var gotBody ClipRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/clips" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"requestId": "req-1",
			"clips": [
				{"id": "as_1", "status": "processing", "type": "highlight"},
				{"id": "as_2", "status": "processing", "type": "ace", "duration": 12.5}
			]
		}`))
	}))
	defer srv.Close()

	c := &Client{APIKey: "key", BaseURL: srv.URL}
	batch, err := c.RequestClips(context.Background(), ClipRequest{
		Platform:        "riot",
		GameTitle:       "lol",
		PlatformMatchID: "NA_1",
		MatchID:         "m1",
	})
	if err != nil {
		t.Fatalf("RequestClips() error: %v", err)
	}
	if gotAuth != "Bearer key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody.PlatformMatchID != "NA_1" || gotBody.GameTitle != "lol" {
		t.Errorf("request body = %+v", gotBody)
	}
	if batch.RequestID != "req-1" || len(batch.Clips) != 2 {
		t.Fatalf("batch = %+v", batch)
	}
	if batch.Clips[1].Duration != 12500*time.Millisecond {
		t.Errorf("duration = %v, want 12.5s", batch.Clips[1].Duration)
	}
}

func TestRequestClipsNotConfigured(t *testing.T) {
	c := &Client{}
	_, err := c.RequestClips(context.Background(), ClipRequest{PlatformMatchID: "NA_1"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestGetClip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/clips/as_1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"as_1","status":"ready","title":"Ace","url":"https://cdn/v.mp4","thumbnailUrl":"https://cdn/t.jpg","duration":30}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := &Client{APIKey: "key", BaseURL: srv.URL}

	clip, err := c.GetClip(context.Background(), "as_1")
	if err != nil {
		t.Fatalf("GetClip() error: %v", err)
	}
	if clip.Status != "ready" || clip.VideoURL != "https://cdn/v.mp4" || clip.Duration != 30*time.Second {
		t.Errorf("clip = %+v", clip)
	}

	// Unknown upstream: nil, not an error.
	gone, err := c.GetClip(context.Background(), "as_404")
	if err != nil {
		t.Fatalf("GetClip() 404 error: %v", err)
	}
	if gone != nil {
		t.Errorf("expected nil for unknown clip, got %+v", gone)
	}
}

func TestRequestClipsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := &Client{APIKey: "key", BaseURL: srv.URL}
	if _, err := c.RequestClips(context.Background(), ClipRequest{PlatformMatchID: "NA_1"}); err == nil {
		t.Error("expected error on 429")
	}
}
