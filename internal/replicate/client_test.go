package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	replicatego "github.com/replicate/replicate-go"
)

type createBody struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

func TestGenerate_ModelEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/models/wavespeedai/wan-2.1-t2v-720p/predictions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}

		var body createBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Version != "" {
			t.Errorf("expected no version, got %q", body.Version)
		}
		if body.Input["prompt"] != "a cat" {
			t.Errorf("expected prompt 'a cat', got %v", body.Input["prompt"])
		}
		if body.Input["seed"] != float64(42) {
			t.Errorf("expected seed 42, got %v", body.Input["seed"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"p1","status":"succeeded","output":"https://cdn.example.com/out.mp4"}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL + "/v1", Token: "test-token"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	out, err := client.Generate(context.Background(), "wavespeedai/wan-2.1-t2v-720p", map[string]any{
		"prompt": "a cat",
		"seed":   42,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	u, err := out.URL()
	if err != nil {
		t.Fatalf("URL() error = %v", err)
	}
	if u != "https://cdn.example.com/out.mp4" {
		t.Errorf("URL() = %q", u)
	}
}

func TestGenerate_VersionEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predictions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body createBody
		json.NewDecoder(r.Body).Decode(&body)
		if body.Version != "abc123" {
			t.Errorf("expected version abc123, got %q", body.Version)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"p1","status":"succeeded","output":["https://cdn.example.com/a.mp4"]}`))
	}))
	defer server.Close()

	client, _ := New(Config{BaseURL: server.URL, Token: "t"})
	out, err := client.Generate(context.Background(), "owner/model:abc123", map[string]any{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if u, _ := out.URL(); u != "https://cdn.example.com/a.mp4" {
		t.Errorf("URL() = %q", u)
	}
}

func TestGenerate_PollsUntilTerminal(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"p1","status":"starting"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/p1":
			if polls.Add(1) < 3 {
				w.Write([]byte(`{"id":"p1","status":"processing"}`))
				return
			}
			w.Write([]byte(`{"id":"p1","status":"succeeded","output":{"url":"https://cdn.example.com/b.mp4"}}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, _ := New(Config{BaseURL: server.URL, Token: "t", PollInterval: 5 * time.Millisecond})
	out, err := client.Generate(context.Background(), "owner/model", nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if polls.Load() != 3 {
		t.Errorf("expected 3 polls, got %d", polls.Load())
	}
	if u, _ := out.URL(); u != "https://cdn.example.com/b.mp4" {
		t.Errorf("URL() = %q", u)
	}
}

func TestGenerate_PredictionFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"p9","status":"failed","error":"CUDA out of memory"}`))
	}))
	defer server.Close()

	client, _ := New(Config{BaseURL: server.URL, Token: "t"})
	_, err := client.Generate(context.Background(), "owner/model", nil)

	var predErr *PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("expected *PredictionError, got %T: %v", err, err)
	}
	if predErr.ID != "p9" || predErr.Status != StatusFailed {
		t.Errorf("unexpected prediction error %+v", predErr)
	}
	if predErr.Message != "CUDA out of memory" {
		t.Errorf("Message = %q", predErr.Message)
	}
}

func TestGenerate_MalformedCreateResponse(t *testing.T) {
	var gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, _ := New(Config{BaseURL: server.URL, Token: "t", PollInterval: 5 * time.Millisecond})
	_, err := client.Generate(ctx, "owner/model", nil)
	if !errors.Is(err, ErrMalformedPrediction) {
		t.Fatalf("expected ErrMalformedPrediction, got %v", err)
	}
	if ctx.Err() != nil {
		t.Error("expected Generate to return before the deadline")
	}
	if gets.Load() != 0 {
		t.Errorf("expected no polling, got %d GETs", gets.Load())
	}
}

func TestWait_NoIDIsMalformed(t *testing.T) {
	client, _ := New(Config{BaseURL: "http://127.0.0.1:0", Token: "t"})

	pred := &replicatego.Prediction{Status: StatusStarting}
	if err := client.Wait(context.Background(), pred); !errors.Is(err, ErrMalformedPrediction) {
		t.Errorf("expected ErrMalformedPrediction, got %v", err)
	}
}

func TestGenerate_APIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"title":"Unauthenticated","detail":"You did not pass a valid authentication token","status":401}`, IsUnauthorized},
		{"not found", http.StatusNotFound, `{"title":"Not found","detail":"model not found","status":404}`, IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, _ := New(Config{BaseURL: server.URL, Token: "t"})
			_, err := client.Generate(context.Background(), "owner/model", nil)
			if !tt.check(err) {
				t.Errorf("classification failed for %v", err)
			}
		})
	}
}

func TestGenerate_ContextCanceledWhilePolling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
		}
		w.Write([]byte(`{"id":"p1","status":"processing"}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client, _ := New(Config{BaseURL: server.URL, Token: "t", PollInterval: 10 * time.Millisecond})
	_, err := client.Generate(ctx, "owner/model", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestNew_RequiresToken(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestNew_LogsRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"p1","status":"succeeded","output":"https://cdn.example.com/out.mp4"}`))
	}))
	defer server.Close()

	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client, _ := New(Config{BaseURL: server.URL, Token: "t", Logger: logger})
	if _, err := client.Generate(context.Background(), "owner/model", nil); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "msg=request method=POST") {
		t.Errorf("expected request log line, got %q", out)
	}
	if !strings.Contains(out, "status=201") {
		t.Errorf("expected response log line, got %q", out)
	}
}

func TestParseModel_Invalid(t *testing.T) {
	for _, model := range []string{"", "noslash", "/name", "owner/", "a/b/c", "owner/name:"} {
		if _, _, _, err := parseModel(model); err == nil {
			t.Errorf("parseModel(%q): expected error", model)
		}
	}
}

func TestParseModel(t *testing.T) {
	owner, name, version, err := parseModel("wavespeedai/wan-2.1-t2v-720p:abc")
	if err != nil {
		t.Fatalf("parseModel() error = %v", err)
	}
	if owner != "wavespeedai" || name != "wan-2.1-t2v-720p" || version != "abc" {
		t.Errorf("parseModel() = %q, %q, %q", owner, name, version)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
