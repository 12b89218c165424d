package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/contextcore/contextd/internal/memory")

const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxEmbedChars  = 1000

	// MaxTopK caps semantic result counts no matter what the caller asks
	// for.
	MaxTopK = 20

	// MaxRecentLimit caps recency page sizes.
	MaxRecentLimit = 100
)

// Config tunes a ContextStore.
type Config struct {
	// RequestTimeout bounds each embedding provider call.
	RequestTimeout time.Duration
	// MaxEmbedChars is the compression threshold for text sent to the
	// embedder. Zero disables compression.
	MaxEmbedChars int
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxEmbedChars == 0 {
		c.MaxEmbedChars = defaultMaxEmbedChars
	}
	return c
}

// AddRequest carries one message into the store. Type falls back to
// InferType(Role) when empty; Timestamp falls back to the current time.
type AddRequest struct {
	SessionID string
	Role      Role
	Type      MessageType
	Content   string
	Timestamp time.Time
	Metadata  Metadata
}

// ContextStore coordinates the message store, the vector index and the
// embedder into one write path and three read paths. It is safe for
// concurrent use; writes are serialized per session, reads are not locked.
type ContextStore struct {
	cfg      Config
	log      *slog.Logger
	messages MessageStore
	sessions SessionRegistry
	index    VectorIndex
	embedder Embedder
	locks    *sessionLocks
}

// NewContextStore wires the three backends together.
func NewContextStore(cfg Config, log *slog.Logger, messages MessageStore, sessions SessionRegistry, index VectorIndex, embedder Embedder) *ContextStore {
	return &ContextStore{
		cfg:      cfg.withDefaults(),
		log:      log,
		messages: messages,
		sessions: sessions,
		index:    index,
		embedder: embedder,
		locks:    newSessionLocks(),
	}
}

// Embedder exposes the configured provider for health reporting.
func (s *ContextStore) Embedder() Embedder { return s.embedder }

// Sessions exposes the registry for health reporting and sweeping.
func (s *ContextStore) Sessions() SessionRegistry { return s.sessions }

// Add validates, embeds and persists one message. The embedding happens
// before the per-session lock is taken so slow providers do not serialize
// unrelated writes within the session any longer than necessary. Either the
// whole message becomes visible or none of it does.
func (s *ContextStore) Add(ctx context.Context, req AddRequest) (Message, error) {
	ctx, span := tracer.Start(ctx, "context.add",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer span.End()

	if err := ValidateSessionID(req.SessionID); err != nil {
		return Message{}, err
	}
	if !ValidRole(req.Role) {
		return Message{}, fmt.Errorf("%w: unknown role %q", ErrValidation, req.Role)
	}
	if req.Type == "" {
		req.Type = InferType(req.Role)
	} else if !ValidType(req.Type) {
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrValidation, req.Type)
	}
	if err := ValidateContent(req.Content); err != nil {
		return Message{}, err
	}
	if err := ValidateMetadata(req.Metadata); err != nil {
		return Message{}, err
	}

	emb, err := s.embed(ctx, CompressForEmbedding(req.Content, s.cfg.MaxEmbedChars))
	if err != nil {
		return Message{}, err
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := Message{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Role:      req.Role,
		Type:      req.Type,
		Content:   req.Content,
		Embedding: emb,
		Timestamp: ts,
		Metadata:  req.Metadata,
	}

	mu := s.locks.lock(req.SessionID)
	defer mu.Unlock()

	if err := s.index.Add(ctx, req.SessionID, VectorDoc{
		ID:        msg.ID,
		Content:   msg.Content,
		Embedding: emb,
		Type:      msg.Type,
	}); err != nil {
		return Message{}, fmt.Errorf("indexing message: %w", err)
	}
	stored, err := s.messages.Insert(ctx, msg)
	if err != nil {
		// Back out the index entry so semantic search never surfaces a
		// message the durable store rejected.
		if rerr := s.index.Remove(context.WithoutCancel(ctx), req.SessionID, msg.ID); rerr != nil {
			s.log.Error("orphaned vector document after failed insert",
				"session_id", req.SessionID, "message_id", msg.ID, "error", rerr)
		}
		return Message{}, fmt.Errorf("storing message: %w", err)
	}
	return stored, nil
}

// QuerySemantic embeds the query and returns the most similar messages,
// hydrated from the durable store, ordered by descending score with ties
// broken by recency. topK is clamped to [1, MaxTopK].
func (s *ContextStore) QuerySemantic(ctx context.Context, sessionID, query string, topK int, typeFilter MessageType) ([]ScoredMessage, error) {
	ctx, span := tracer.Start(ctx, "context.query_semantic",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if err := ValidateContent(query); err != nil {
		return nil, fmt.Errorf("%w: query is required", ErrValidation)
	}
	if typeFilter != "" && !ValidType(typeFilter) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrValidation, typeFilter)
	}
	if topK < 1 {
		topK = 1
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	emb, err := s.embed(ctx, CompressForEmbedding(query, s.cfg.MaxEmbedChars))
	if err != nil {
		return nil, err
	}
	hits, err := s.index.Search(ctx, sessionID, emb, topK, typeFilter)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	if len(hits) == 0 {
		return []ScoredMessage{}, nil
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float32, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = h.Score
	}
	// Hydrating from the durable store drops any hit whose insert never
	// committed, keeping half-written messages invisible.
	msgs, err := s.messages.GetByIDs(ctx, sessionID, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrating results: %w", err)
	}

	out := make([]ScoredMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ScoredMessage{Message: m, Score: scores[m.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Message.Timestamp.After(out[j].Message.Timestamp)
	})
	return out, nil
}

// Recent returns up to limit messages for the session, most recent first,
// skipping offset newer messages for pagination.
func (s *ContextStore) Recent(ctx context.Context, sessionID string, limit, offset int, typeFilter MessageType) ([]Message, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if typeFilter != "" && !ValidType(typeFilter) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrValidation, typeFilter)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrValidation)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrValidation)
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	return s.messages.Recent(ctx, sessionID, limit, offset, typeFilter)
}

// Stats summarizes a session. Missing sessions yield zeroed stats.
func (s *ContextStore) Stats(ctx context.Context, sessionID string) (Stats, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return Stats{}, err
	}
	return s.messages.Stats(ctx, sessionID)
}

// Clear removes the session from both stores and reports how many messages
// were dropped. Clearing an unknown session succeeds with a zero count.
func (s *ContextStore) Clear(ctx context.Context, sessionID string) (int64, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return 0, err
	}
	mu := s.locks.lock(sessionID)
	defer mu.Unlock()

	if err := s.index.DropSession(ctx, sessionID); err != nil {
		return 0, fmt.Errorf("dropping session index: %w", err)
	}
	n, err := s.messages.Clear(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("clearing session: %w", err)
	}
	return n, nil
}

func (s *ContextStore) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, s.classifyUpstream(err)
	}
	if len(emb) != s.embedder.Dimension() {
		return nil, fmt.Errorf("%w: provider returned %d dimensions, expected %d",
			ErrUpstreamUnavailable, len(emb), s.embedder.Dimension())
	}
	return emb, nil
}

func (s *ContextStore) classifyUpstream(err error) error {
	if errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, ErrUpstreamUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
