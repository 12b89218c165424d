// Package chromem implements the vector index backed by chromem-go, a pure
// Go embedded vector database. Each session maps to its own collection so
// similarity search never crosses the session boundary.
package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"gopkg.in/yaml.v3"

	"github.com/contextcore/contextd/internal/core"
	"github.com/contextcore/contextd/internal/memory"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ memory.VectorIndex = (*index)(nil)
	_ core.Configurable  = (*Module)(nil)
	_ core.Provisioner   = (*Module)(nil)
	_ core.Validator     = (*Module)(nil)
)

// Module provides the VectorIndex service.
type Module struct {
	config Config
	logger *slog.Logger
	index  *index
}

// index implements memory.VectorIndex over per-session collections.
type index struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "vector.chromem",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("chromem: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger

	var db *chromem.DB
	if m.config.persistent() {
		path := m.config.Path
		if path == "" {
			path = filepath.Join(ctx.DataDir, defaultIndexDir)
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("chromem: create directory %s: %w", path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(path, m.config.Compress)
		if err != nil {
			return fmt.Errorf("chromem: open persistent db %s: %w", path, err)
		}
		m.logger.Info("chromem index provisioned", "path", path, "compress", m.config.Compress)
	} else {
		db = chromem.NewDB()
		m.logger.Info("chromem index provisioned", "path", "memory")
	}

	m.index = &index{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}
	ctx.RegisterService("vector.index", m.index)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Index returns the VectorIndex implementation.
func (m *Module) Index() memory.VectorIndex {
	return m.index
}

// collection returns the session's collection, creating it on first use.
func (x *index) collection(sessionID string) (*chromem.Collection, error) {
	x.mu.RLock()
	col, ok := x.collections[sessionID]
	x.mu.RUnlock()
	if ok {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, ok := x.collections[sessionID]; ok {
		return col, nil
	}

	col, err := x.db.GetOrCreateCollection(collectionName(sessionID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}
	x.collections[sessionID] = col
	return col, nil
}

func collectionName(sessionID string) string {
	return "session_" + sessionID
}

// Add indexes one document. Embeddings are supplied by the caller; the
// collection carries no embedding function of its own.
func (x *index) Add(ctx context.Context, sessionID string, doc memory.VectorDoc) error {
	col, err := x.collection(sessionID)
	if err != nil {
		return err
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: doc.Embedding,
		Metadata:  map[string]string{"type": string(doc.Type)},
	})
	if err != nil {
		return fmt.Errorf("chromem: add document: %w", err)
	}
	return nil
}

// Search returns up to topK hits, most similar first. chromem rejects
// nResults larger than the collection, so topK is clamped to the document
// count first.
func (x *index) Search(ctx context.Context, sessionID string, query []float32, topK int, typeFilter memory.MessageType) ([]memory.VectorHit, error) {
	col, err := x.collection(sessionID)
	if err != nil {
		return nil, err
	}

	if n := col.Count(); n < topK {
		topK = n
	}
	if topK <= 0 {
		return nil, nil
	}

	var where map[string]string
	if typeFilter != "" {
		where = map[string]string{"type": string(typeFilter)}
	}

	results, err := col.QueryEmbedding(ctx, query, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	hits := make([]memory.VectorHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, memory.VectorHit{ID: r.ID, Score: r.Similarity})
	}
	return hits, nil
}

// Remove deletes documents by ID, ignoring IDs not present.
func (x *index) Remove(ctx context.Context, sessionID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := x.collection(sessionID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("chromem: delete documents: %w", err)
	}
	return nil
}

// DropSession discards the session's collection entirely. Dropping a session
// that was never indexed is a no-op.
func (x *index) DropSession(_ context.Context, sessionID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.db.DeleteCollection(collectionName(sessionID)); err != nil {
		return fmt.Errorf("chromem: delete collection: %w", err)
	}
	delete(x.collections, sessionID)
	return nil
}
