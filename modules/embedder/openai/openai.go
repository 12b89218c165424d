// Package openai provides the embedder service backed by OpenAI's embedding
// models through the go-openai client.
package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/contextcore/contextd/internal/core"
	"github.com/contextcore/contextd/internal/memory"
	"github.com/sashabaranov/go-openai"
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

const defaultModel = "text-embedding-3-small"

// Module provides the embedder service.
type Module struct {
	config   Config
	logger   *slog.Logger
	embedder *embedder
}

// Config holds the OpenAI embedder configuration.
type Config struct {
	// APIKey authenticates against the API. Required; usually supplied
	// through ${OPENAI_API_KEY} in the config file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the API endpoint for compatible gateways.
	BaseURL string `yaml:"base_url"`

	// Model selects the embedding model. Defaults to
	// text-embedding-3-small.
	Model string `yaml:"model"`
}

type embedder struct {
	client *openai.Client
	model  string
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "embedder.openai",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("openai: decode config: %w", err)
	}
	if m.config.Model == "" {
		m.config.Model = defaultModel
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	if m.config.Model == "" {
		m.config.Model = defaultModel
	}

	cfg := openai.DefaultConfig(m.config.APIKey)
	if m.config.BaseURL != "" {
		cfg.BaseURL = m.config.BaseURL
	}
	m.embedder = &embedder{
		client: openai.NewClientWithConfig(cfg),
		model:  m.config.Model,
	}

	ctx.RegisterService("embedder", m.embedder)
	m.logger.Info("openai embedder provisioned", "model", m.config.Model)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.APIKey == "" {
		return fmt.Errorf("openai: api_key is required")
	}
	return nil
}

// Embedder returns the Embedder implementation.
func (m *Module) Embedder() memory.Embedder {
	return m.embedder
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai: create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai: no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}

func (e *embedder) Dimension() int {
	switch e.model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

func (e *embedder) Name() string {
	return "openai/" + e.model
}
