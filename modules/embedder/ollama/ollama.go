// Package ollama provides the embedder service backed by a local Ollama
// instance.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/contextcore/contextd/internal/core"
	"github.com/contextcore/contextd/internal/memory"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ memory.Embedder   = (*embedder)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "nomic-embed-text"
)

// Module provides the embedder service.
type Module struct {
	config   Config
	logger   *slog.Logger
	embedder *embedder
}

// Config holds the Ollama embedder configuration.
type Config struct {
	// BaseURL points at the Ollama server. Defaults to
	// http://localhost:11434.
	BaseURL string `yaml:"base_url"`

	// Model selects the embedding model. Defaults to nomic-embed-text.
	Model string `yaml:"model"`

	// Timeout bounds each HTTP call. Defaults to 60s.
	Timeout time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

type embedder struct {
	baseURL string
	model   string
	client  *http.Client
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "embedder.ollama",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("ollama: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.config.defaults()

	m.embedder = &embedder{
		baseURL: m.config.BaseURL,
		model:   m.config.Model,
		client:  &http.Client{Timeout: m.config.Timeout},
	}

	ctx.RegisterService("embedder", m.embedder)
	m.logger.Info("ollama embedder provisioned",
		"base_url", m.config.BaseURL, "model", m.config.Model)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if _, err := url.Parse(m.config.BaseURL); err != nil {
		return fmt.Errorf("ollama: invalid base_url %q: %w", m.config.BaseURL, err)
	}
	return nil
}

// Embedder returns the Embedder implementation.
func (m *Module) Embedder() memory.Embedder {
	return m.embedder
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, msg)
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama: empty embedding returned")
	}
	return result.Embedding, nil
}

func (e *embedder) Dimension() int {
	switch e.model {
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	default:
		return 768
	}
}

func (e *embedder) Name() string {
	return "ollama/" + e.model
}
