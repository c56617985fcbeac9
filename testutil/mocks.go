package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockAllstarServer creates a test server that mocks Allstar clip API responses
type MockAllstarServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockAllstarServer creates a new mock Allstar API server
func NewMockAllstarServer(t *testing.T) *MockAllstarServer {
	t.Helper()
	m := &MockAllstarServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockClipRequestResponse adds a handler for the POST /clips endpoint
func (m *MockAllstarServer) MockClipRequestResponse(requestID string, clips []map[string]interface{}) {
	m.Handlers["/clips"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"requestId": requestID,
			"clips":     clips,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockClipStatusResponse adds a handler for GET /clips/{id}
func (m *MockAllstarServer) MockClipStatusResponse(clipID string, clip map[string]interface{}) {
	m.Handlers["/clips/"+clipID] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(clip) //nolint:errcheck // test mock response
	}
}

// MockEpicServer creates a test server that mocks the Epic OAuth token
// endpoint and the stats proxy
type MockEpicServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockEpicServer creates a new mock Epic API server
func NewMockEpicServer(t *testing.T) *MockEpicServer {
	t.Helper()
	m := &MockEpicServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockTokenResponse adds a handler for the OAuth token endpoint
func (m *MockEpicServer) MockTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/epic/oauth/v2/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockStatsResponse adds a handler for the lifetime stats endpoint
func (m *MockEpicServer) MockStatsResponse(accountID string, stats map[string]int) {
	m.Handlers["/account/"+accountID] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"stats": stats,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}
