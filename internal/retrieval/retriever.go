// Package retrieval merges semantic and recency retrieval into a single
// bounded context slice with per-item provenance.
package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/contextcore/contextd/internal/memory"
)

var tracer = otel.Tracer("github.com/contextcore/contextd/internal/retrieval")

const (
	defaultSemanticK    = 5
	defaultRecentK      = 3
	defaultMaxSliceSize = 8
)

// Store is the subset of the context store the retriever needs.
type Store interface {
	QuerySemantic(ctx context.Context, sessionID, query string, topK int, typeFilter memory.MessageType) ([]memory.ScoredMessage, error)
	Recent(ctx context.Context, sessionID string, limit, offset int, typeFilter memory.MessageType) ([]memory.Message, error)
}

// Config carries the retriever defaults. Requests may override each knob
// per call through Options.
type Config struct {
	SemanticK    int `yaml:"semantic_k"`
	RecentK      int `yaml:"recent_k"`
	MaxSliceSize int `yaml:"max_slice_size"`
}

func (c Config) withDefaults() Config {
	if c.SemanticK <= 0 {
		c.SemanticK = defaultSemanticK
	}
	if c.RecentK <= 0 {
		c.RecentK = defaultRecentK
	}
	if c.MaxSliceSize <= 0 {
		c.MaxSliceSize = defaultMaxSliceSize
	}
	return c
}

// Options overrides the configured defaults for one request. Zero values
// fall back to the configured defaults.
type Options struct {
	SemanticK    int
	RecentK      int
	MaxSliceSize int
	TypeFilter   memory.MessageType
}

// Provenance records which retrieval paths produced an item.
type Provenance uint8

const (
	FromSemantic Provenance = 1 << iota
	FromRecent
)

func (p Provenance) String() string {
	switch p {
	case FromSemantic:
		return "semantic"
	case FromRecent:
		return "recent"
	case FromSemantic | FromRecent:
		return "semantic+recent"
	}
	return "unknown"
}

// MarshalJSON renders the provenance as its tag string.
func (p Provenance) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// Item is one message in the slice with its retrieval provenance. Score is
// only meaningful when the semantic path contributed the item.
type Item struct {
	Message    memory.Message `json:"message"`
	Score      float32        `json:"score,omitempty"`
	Provenance Provenance     `json:"provenance"`
}

// Slice is the assembled context for one query. Degraded is set when the
// semantic path failed and only recency results are present.
type Slice struct {
	Items    []Item `json:"items"`
	Degraded bool   `json:"degraded"`
}

// Retriever assembles context slices from a store.
type Retriever struct {
	cfg   Config
	log   *slog.Logger
	store Store
}

// New returns a retriever over store with cfg defaults applied.
func New(cfg Config, log *slog.Logger, store Store) *Retriever {
	return &Retriever{cfg: cfg.withDefaults(), log: log, store: store}
}

// Retrieve builds the context slice for a query. Semantic and dual-hit items
// lead the slice ordered by descending score; recency-only items follow
// ordered by descending timestamp. When the slice exceeds its size bound,
// recency-only items are dropped first.
//
// A semantic path failure caused by the embedding provider degrades to a
// recency-only slice instead of failing the request. Every other error is
// returned as is.
func (r *Retriever) Retrieve(ctx context.Context, sessionID, query string, opts Options) (Slice, error) {
	ctx, span := tracer.Start(ctx, "context.retrieve",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	semanticK := opts.SemanticK
	if semanticK <= 0 {
		semanticK = r.cfg.SemanticK
	}
	recentK := opts.RecentK
	if recentK <= 0 {
		recentK = r.cfg.RecentK
	}
	maxSize := opts.MaxSliceSize
	if maxSize <= 0 {
		maxSize = r.cfg.MaxSliceSize
	}

	degraded := false
	scored, err := r.store.QuerySemantic(ctx, sessionID, query, semanticK, opts.TypeFilter)
	if err != nil {
		if !errors.Is(err, memory.ErrUpstreamUnavailable) && !errors.Is(err, memory.ErrUpstreamTimeout) {
			return Slice{}, err
		}
		r.log.Warn("semantic retrieval degraded to recency only",
			"session_id", sessionID, "error", err)
		degraded = true
		scored = nil
	}

	recent, err := r.store.Recent(ctx, sessionID, recentK, 0, opts.TypeFilter)
	if err != nil {
		return Slice{}, err
	}

	items := make([]Item, 0, len(scored))
	index := make(map[string]int, len(scored))
	for _, sm := range scored {
		index[sm.Message.ID] = len(items)
		items = append(items, Item{Message: sm.Message, Score: sm.Score, Provenance: FromSemantic})
	}

	var recentOnly []Item
	for _, m := range recent {
		if i, ok := index[m.ID]; ok {
			items[i].Provenance |= FromRecent
			continue
		}
		recentOnly = append(recentOnly, Item{Message: m, Provenance: FromRecent})
	}
	sort.SliceStable(recentOnly, func(i, j int) bool {
		return recentOnly[i].Message.Timestamp.After(recentOnly[j].Message.Timestamp)
	})

	if len(items) > maxSize {
		items = items[:maxSize]
	}
	for _, it := range recentOnly {
		if len(items) >= maxSize {
			break
		}
		items = append(items, it)
	}

	span.SetAttributes(
		attribute.Int("slice.items", len(items)),
		attribute.Bool("slice.degraded", degraded),
	)
	return Slice{Items: items, Degraded: degraded}, nil
}
