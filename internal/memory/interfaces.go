package memory

import (
	"context"
	"time"
)

// Embedder turns text into a fixed-dimension vector. Implementations live in
// modules/embedder and register themselves under the "embedder" service name.
type Embedder interface {
	// Embed returns the vector for text, honoring ctx cancellation.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the length of every vector Embed returns.
	Dimension() int
	// Name identifies the provider and model for health reporting.
	Name() string
}

// MessageStore is the durable, ordered record of messages per session.
type MessageStore interface {
	// Insert persists msg, assigning Seq and clamping Timestamp so that
	// ordering within the session is monotonic. The stored message is
	// returned.
	Insert(ctx context.Context, msg Message) (Message, error)
	// GetByIDs hydrates messages by ID. Unknown IDs are skipped; order of
	// the result follows the order of ids.
	GetByIDs(ctx context.Context, sessionID string, ids []string) ([]Message, error)
	// Recent returns up to limit messages for the session, most recent
	// first, skipping offset newer messages. A missing session yields an
	// empty slice.
	Recent(ctx context.Context, sessionID string, limit, offset int, typeFilter MessageType) ([]Message, error)
	// Stats summarizes the session, zero-valued when it does not exist.
	Stats(ctx context.Context, sessionID string) (Stats, error)
	// Clear removes every message for the session and its registry row,
	// returning the number of messages removed. Clearing a missing session
	// returns 0, nil.
	Clear(ctx context.Context, sessionID string) (int64, error)
}

// SessionRegistry tracks which sessions exist, independently of their
// messages.
type SessionRegistry interface {
	// Exists reports whether the session has been created and not cleared.
	Exists(ctx context.Context, sessionID string) (bool, error)
	// Count returns the number of live sessions.
	Count(ctx context.Context) (int64, error)
	// IdleBefore lists sessions whose last activity predates cutoff.
	IdleBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// VectorDoc is the slice of a message the vector index needs.
type VectorDoc struct {
	ID        string
	Content   string
	Embedding []float32
	Type      MessageType
}

// VectorHit is one semantic search result, score in [0,1], higher is closer.
type VectorHit struct {
	ID    string
	Score float32
}

// VectorIndex is the similarity-search side of the store. Sessions are fully
// isolated from one another; DropSession discards one session's documents
// without touching any other.
type VectorIndex interface {
	Add(ctx context.Context, sessionID string, doc VectorDoc) error
	// Search returns up to topK hits for the query vector, most similar
	// first, optionally restricted to one message type. A session with no
	// documents yields an empty slice.
	Search(ctx context.Context, sessionID string, query []float32, topK int, typeFilter MessageType) ([]VectorHit, error)
	// Remove deletes single documents, used to back out a failed insert.
	Remove(ctx context.Context, sessionID string, ids ...string) error
	DropSession(ctx context.Context, sessionID string) error
}
