package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
	"github.com/samvad-hq/samvad-flashcards/internal/similarity"
)

// ErrEmptyEmbedding is returned when the backend answers without a vector.
var ErrEmptyEmbedding = errors.New("empty embedding returned")

// Config selects the ollama endpoint and models.
type Config struct {
	// Host overrides OLLAMA_HOST when set (e.g. http://127.0.0.1:11434).
	Host           string
	Model          string
	EmbeddingModel string
	// Timeout bounds each generate/embed call.
	Timeout time.Duration
}

// Client wraps the ollama API for structured generation and embeddings.
type Client struct {
	api            *ollama.Client
	model          string
	embeddingModel string
	timeout        time.Duration
}

// New builds a client from cfg, falling back to the OLLAMA_HOST environment.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" || strings.TrimSpace(cfg.EmbeddingModel) == "" {
		return nil, fmt.Errorf("llm model and embedding model are required")
	}

	var (
		api *ollama.Client
		err error
	)
	if host := strings.TrimSpace(cfg.Host); host != "" {
		u, perr := url.Parse(host)
		if perr != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid ollama host %q", host)
		}
		api = ollama.NewClient(u, http.DefaultClient)
	} else {
		api, err = ollama.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client from environment: %w", err)
		}
	}

	return NewWithAPI(api, cfg), nil
}

// NewWithAPI wraps an existing ollama client.
func NewWithAPI(api *ollama.Client, cfg Config) *Client {
	return &Client{
		api:            api,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        cfg.Timeout,
	}
}

// Heartbeat checks that the ollama server is reachable.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.api.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat: %w", err)
	}
	return nil
}

// Embed returns the unit-length embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.Embeddings(ctx, &ollama.EmbeddingRequest{
		Model:  c.embeddingModel,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	embedding := make([]float64, len(resp.Embedding))
	copy(embedding, resp.Embedding)
	similarity.NormalizeVector(embedding)
	return embedding, nil
}

// Generate runs prompt at temperature 0 with output constrained to schema and
// returns the raw model answer.
func (c *Client) Generate(ctx context.Context, prompt string, schema json.RawMessage) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	stream := false
	req := &ollama.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: &stream,
		Format: schema,
		Options: map[string]interface{}{
			"temperature": 0,
		},
	}

	var response strings.Builder
	err := c.api.Generate(ctx, req, func(res ollama.GenerateResponse) error {
		response.WriteString(res.Response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate with %s: %w", c.model, err)
	}

	return []byte(removeThinkBlock(response.String())), nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// removeThinkBlock drops reasoning blocks some models prepend to answers.
func removeThinkBlock(input string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(input, ""))
}
