package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/contextcore/contextd/internal/core"
	"github.com/contextcore/contextd/internal/memory"
	"github.com/contextcore/contextd/internal/memory/memtest"
)

func newTestIndex(t *testing.T) *index {
	t.Helper()

	m := &Module{}
	ctx := core.NewAppContext(slog.Default(), t.TempDir())
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return m.index
}

func addDoc(t *testing.T, x *index, emb *memtest.Embedder, sessionID, id, content string, typ memory.MessageType) []float32 {
	t.Helper()
	vec, err := emb.Embed(context.Background(), content)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	err = x.Add(context.Background(), sessionID, memory.VectorDoc{
		ID:        id,
		Content:   content,
		Embedding: vec,
		Type:      typ,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	return vec
}

func TestSearchRanksByClosestVector(t *testing.T) {
	x := newTestIndex(t)
	emb := memtest.NewEmbedder(32)

	target := addDoc(t, x, emb, "s1", "m1", "retry the failing request", memory.TypeUserQuery)
	addDoc(t, x, emb, "s1", "m2", "unrelated words entirely", memory.TypeUserQuery)
	addDoc(t, x, emb, "s1", "m3", "something else again", memory.TypeUserQuery)

	hits, err := x.Search(context.Background(), "s1", target, 3, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	if hits[0].ID != "m1" {
		t.Errorf("best hit = %s, want m1", hits[0].ID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not ordered by descending score at %d", i)
		}
	}
}

func TestSearchClampsToCollectionSize(t *testing.T) {
	x := newTestIndex(t)
	emb := memtest.NewEmbedder(32)

	query := addDoc(t, x, emb, "s1", "m1", "only document", memory.TypeUserQuery)

	hits, err := x.Search(context.Background(), "s1", query, 10, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits, want 1", len(hits))
	}
}

func TestSearchEmptySession(t *testing.T) {
	x := newTestIndex(t)
	emb := memtest.NewEmbedder(32)

	query, err := emb.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	hits, err := x.Search(context.Background(), "never-seen", query, 5, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("empty session returned %d hits", len(hits))
	}
}

func TestSearchTypeFilter(t *testing.T) {
	x := newTestIndex(t)
	emb := memtest.NewEmbedder(32)

	query := addDoc(t, x, emb, "s1", "q1", "run the linter", memory.TypeUserQuery)
	addDoc(t, x, emb, "s1", "t1", "lint output clean", memory.TypeToolResult)
	addDoc(t, x, emb, "s1", "t2", "lint output dirty", memory.TypeToolResult)

	hits, err := x.Search(context.Background(), "s1", query, 5, memory.TypeToolResult)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	for _, h := range hits {
		if h.ID == "q1" {
			t.Error("type filter leaked a user_query hit")
		}
	}
}

func TestSessionIsolation(t *testing.T) {
	x := newTestIndex(t)
	emb := memtest.NewEmbedder(32)

	query := addDoc(t, x, emb, "a", "m1", "session a content", memory.TypeUserQuery)

	hits, err := x.Search(context.Background(), "b", query, 5, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("session b sees %d documents from session a", len(hits))
	}
}

func TestRemove(t *testing.T) {
	x := newTestIndex(t)
	emb := memtest.NewEmbedder(32)

	query := addDoc(t, x, emb, "s1", "m1", "to be removed", memory.TypeUserQuery)
	addDoc(t, x, emb, "s1", "m2", "to be kept", memory.TypeUserQuery)

	if err := x.Remove(context.Background(), "s1", "m1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	hits, err := x.Search(context.Background(), "s1", query, 5, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, h := range hits {
		if h.ID == "m1" {
			t.Error("removed document still returned")
		}
	}
}

func TestDropSession(t *testing.T) {
	x := newTestIndex(t)
	emb := memtest.NewEmbedder(32)

	query := addDoc(t, x, emb, "s1", "m1", "content", memory.TypeUserQuery)

	if err := x.DropSession(context.Background(), "s1"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	hits, err := x.Search(context.Background(), "s1", query, 5, "")
	if err != nil {
		t.Fatalf("search after drop: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("dropped session returned %d hits", len(hits))
	}

	// Dropping again is a no-op.
	if err := x.DropSession(context.Background(), "missing"); err != nil {
		t.Fatalf("drop missing: %v", err)
	}
}

func TestManySessions(t *testing.T) {
	x := newTestIndex(t)
	emb := memtest.NewEmbedder(16)

	for i := 0; i < 10; i++ {
		sid := fmt.Sprintf("s%d", i)
		addDoc(t, x, emb, sid, fmt.Sprintf("m%d", i), fmt.Sprintf("content for %s", sid), memory.TypeUserQuery)
	}
	query, err := emb.Embed(context.Background(), "content for s4")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	hits, err := x.Search(context.Background(), "s4", query, 5, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "m4" {
		t.Errorf("unexpected hits: %+v", hits)
	}
}
