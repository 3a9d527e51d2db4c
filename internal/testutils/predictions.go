// Package testutils provides shared test infrastructure.
package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// PredictionServer is a stand-in for the predictions API. Every prediction
// succeeds immediately with a URL to Video, which the same server serves.
type PredictionServer struct {
	*httptest.Server

	// Video is served at VideoURL. A nil Video is served as 404.
	Video []byte

	mu       sync.Mutex
	inputs   []map[string]any
	requests atomic.Int32
}

// StartPredictionServer starts a prediction server serving video. The
// server is closed when the test ends.
func StartPredictionServer(t *testing.T, video []byte) *PredictionServer {
	t.Helper()

	ps := &PredictionServer{Video: video}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/models/{owner}/{name}/predictions", ps.handleCreate)
	mux.HandleFunc("POST /v1/predictions", ps.handleCreate)
	mux.HandleFunc("GET /files/video.mp4", func(w http.ResponseWriter, r *http.Request) {
		ps.requests.Add(1)
		if ps.Video == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(ps.Video)
	})

	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}

// APIURL is the base URL to configure the client with.
func (ps *PredictionServer) APIURL() string {
	return ps.URL + "/v1"
}

// VideoURL is the output URL of every prediction.
func (ps *PredictionServer) VideoURL() string {
	return ps.URL + "/files/video.mp4"
}

// Inputs returns the input of every prediction created so far.
func (ps *PredictionServer) Inputs() []map[string]any {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]map[string]any(nil), ps.inputs...)
}

// Requests returns the number of requests served.
func (ps *PredictionServer) Requests() int {
	return int(ps.requests.Load())
}

func (ps *PredictionServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	n := ps.requests.Add(1)

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"title": "Unauthenticated", "detail": "You did not pass a valid authentication token"})
		return
	}

	var body struct {
		Input map[string]any `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"title": "Invalid input", "detail": err.Error()})
		return
	}

	ps.mu.Lock()
	ps.inputs = append(ps.inputs, body.Input)
	ps.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"id":     fmt.Sprintf("pred-%d", n),
		"status": "succeeded",
		"output": ps.VideoURL(),
	})
}
