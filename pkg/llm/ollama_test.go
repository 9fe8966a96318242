package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	ollama "github.com/ollama/ollama/api"
)

type fakeOllama struct {
	embedding []float64
	response  string
	lastGen   map[string]any
	status    int
}

func (f *fakeOllama) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": f.embedding})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&f.lastGen); err != nil {
			t.Errorf("decode generate request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":    "mistral",
			"response": f.response,
			"done":     true,
		})
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeOllama) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return NewWithAPI(ollama.NewClient(u, srv.Client()), Config{
		Model:          "mistral",
		EmbeddingModel: "all-minilm",
		Timeout:        5 * time.Second,
	})
}

func TestEmbedNormalizes(t *testing.T) {
	c := newTestClient(t, &fakeOllama{embedding: []float64{3, 4}})

	vec, err := c.Embed(context.Background(), "semiconductors")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || math.Abs(vec[0]-0.6) > 1e-9 || math.Abs(vec[1]-0.8) > 1e-9 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestEmbedErrors(t *testing.T) {
	c := newTestClient(t, &fakeOllama{})
	if _, err := c.Embed(context.Background(), "text"); !errors.Is(err, ErrEmptyEmbedding) {
		t.Fatalf("expected ErrEmptyEmbedding, got %v", err)
	}
	if _, err := c.Embed(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty text")
	}

	failing := newTestClient(t, &fakeOllama{status: http.StatusNotFound})
	if _, err := failing.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error for backend failure")
	}
}

func TestGenerateSendsSchemaAndTemperature(t *testing.T) {
	f := &fakeOllama{response: "<think>hmm</think>\n{\"flashcards\":[]}"}
	c := newTestClient(t, f)

	schema := json.RawMessage(`{"type":"object"}`)
	out, err := c.Generate(context.Background(), "make cards", schema)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(out) != `{"flashcards":[]}` {
		t.Fatalf("unexpected output %q", out)
	}

	if f.lastGen["prompt"] != "make cards" || f.lastGen["model"] != "mistral" {
		t.Fatalf("unexpected request %v", f.lastGen)
	}
	if f.lastGen["stream"] != false {
		t.Fatalf("expected non-streaming request, got %v", f.lastGen["stream"])
	}
	format, _ := f.lastGen["format"].(map[string]any)
	if format["type"] != "object" {
		t.Fatalf("expected schema as format, got %v", f.lastGen["format"])
	}
	opts, _ := f.lastGen["options"].(map[string]any)
	if opts["temperature"] != float64(0) {
		t.Fatalf("expected temperature 0, got %v", opts["temperature"])
	}
}

func TestHeartbeat(t *testing.T) {
	c := newTestClient(t, &fakeOllama{})
	if err := c.Heartbeat(context.Background()); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	u, _ := url.Parse("http://127.0.0.1:1")
	down := NewWithAPI(ollama.NewClient(u, http.DefaultClient), Config{})
	if err := down.Heartbeat(context.Background()); err == nil {
		t.Fatal("expected heartbeat failure for unreachable host")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Model: "m"}); err == nil {
		t.Fatal("expected error without embedding model")
	}
	if _, err := New(Config{Host: "::bad", Model: "m", EmbeddingModel: "e"}); err == nil {
		t.Fatal("expected error for invalid host")
	}
	if _, err := New(Config{Host: "http://localhost:11434", Model: "m", EmbeddingModel: "e"}); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestRemoveThinkBlock(t *testing.T) {
	if got := removeThinkBlock("<think>a\nb</think> answer "); got != "answer" {
		t.Fatalf("removeThinkBlock = %q", got)
	}
}
