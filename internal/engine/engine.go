// Package engine wires the storage backends and the embedder into the
// context store and retriever, and publishes both as services for the
// gateway.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/contextcore/contextd/internal/core"
	"github.com/contextcore/contextd/internal/memory"
	"github.com/contextcore/contextd/internal/retrieval"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Engine{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Engine)(nil)
	_ core.Provisioner  = (*Engine)(nil)
	_ core.Starter      = (*Engine)(nil)
)

// Engine is the module that assembles the context store and retriever from
// the backend services. Backends register their services during Provision;
// the engine resolves them at Start, after every module has provisioned.
type Engine struct {
	config Config
	appCtx *core.AppContext
	logger *slog.Logger

	store     *memory.ContextStore
	retriever *retrieval.Retriever
}

// Config holds the engine configuration.
type Config struct {
	// RequestTimeout bounds each embedding provider call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxEmbedChars is the compression threshold for text sent to the
	// embedder.
	MaxEmbedChars int `yaml:"max_embed_chars"`

	// Retrieval sets the default slice shape.
	Retrieval retrieval.Config `yaml:"retrieval"`
}

// ModuleInfo implements core.Module.
func (e *Engine) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "context.engine",
		New: func() core.Module { return &Engine{} },
	}
}

// Configure implements core.Configurable.
func (e *Engine) Configure(node *yaml.Node) error {
	if err := node.Decode(&e.config); err != nil {
		return fmt.Errorf("engine: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (e *Engine) Provision(ctx *core.AppContext) error {
	e.appCtx = ctx
	e.logger = ctx.Logger
	return nil
}

// Start implements core.Starter. Backend resolution happens here because
// sorted start order puts the engine ahead of the gateway, which resolves
// the engine's services in its own Start.
func (e *Engine) Start() error {
	messages, err := resolve[memory.MessageStore](e.appCtx, "store.messages")
	if err != nil {
		return err
	}
	sessions, err := resolve[memory.SessionRegistry](e.appCtx, "store.sessions")
	if err != nil {
		return err
	}
	index, err := resolve[memory.VectorIndex](e.appCtx, "vector.index")
	if err != nil {
		return err
	}
	embedder, err := resolve[memory.Embedder](e.appCtx, "embedder")
	if err != nil {
		return err
	}

	e.store = memory.NewContextStore(memory.Config{
		RequestTimeout: e.config.RequestTimeout,
		MaxEmbedChars:  e.config.MaxEmbedChars,
	}, e.logger, messages, sessions, index, embedder)
	e.retriever = retrieval.New(e.config.Retrieval, e.logger, e.store)

	e.appCtx.RegisterService("context.store", e.store)
	e.appCtx.RegisterService("context.retriever", e.retriever)

	e.logger.Info("context engine started", "embedder", embedder.Name(), "dimension", embedder.Dimension())
	return nil
}

// Store returns the assembled context store.
func (e *Engine) Store() *memory.ContextStore { return e.store }

// Retriever returns the assembled retriever.
func (e *Engine) Retriever() *retrieval.Retriever { return e.retriever }

func resolve[T any](ctx *core.AppContext, name string) (T, error) {
	var zero T
	svc, ok := ctx.Service(name)
	if !ok {
		return zero, fmt.Errorf("engine: required service %q not registered, is its module configured?", name)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("engine: service %q has unexpected type %T", name, svc)
	}
	return typed, nil
}
