package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/contextcore/contextd/internal/core"
	"github.com/contextcore/contextd/internal/memory"
	"github.com/contextcore/contextd/internal/memory/memtest"
	"github.com/contextcore/contextd/internal/retrieval"

	_ "github.com/contextcore/contextd/modules/store/sqlite"  // module registration
	_ "github.com/contextcore/contextd/modules/vector/chromem" // module registration
)

// newTestEngine provisions the real sqlite and chromem backends with a mock
// embedder and starts the engine over them.
func newTestEngine(t *testing.T) (*Engine, *memtest.Embedder) {
	t.Helper()

	appCtx := core.NewAppContext(slog.Default(), t.TempDir())

	storeMod, err := appCtx.LoadModule("store.sqlite")
	if err != nil {
		t.Fatalf("load store.sqlite: %v", err)
	}
	t.Cleanup(func() {
		if stopper, ok := storeMod.(core.Stopper); ok {
			_ = stopper.Stop(context.Background())
		}
	})
	if _, err := appCtx.LoadModule("vector.chromem"); err != nil {
		t.Fatalf("load vector.chromem: %v", err)
	}

	emb := memtest.NewEmbedder(32)
	appCtx.RegisterService("embedder", emb)

	e := &Engine{}
	if err := e.Provision(appCtx); err != nil {
		t.Fatalf("provision engine: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	return e, emb
}

func add(t *testing.T, e *Engine, sessionID string, role memory.Role, content string) memory.Message {
	t.Helper()
	msg, err := e.Store().Add(context.Background(), memory.AddRequest{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	})
	if err != nil {
		t.Fatalf("add %q: %v", content, err)
	}
	return msg
}

func TestEngine_StartFailsWithoutBackends(t *testing.T) {
	e := &Engine{}
	if err := e.Provision(core.NewAppContext(slog.Default(), t.TempDir())); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := e.Start(); err == nil {
		t.Fatal("expected start to fail with no services registered")
	}
}

func TestEngine_AddQueryRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	stored := add(t, e, "s1", memory.RoleUser, "why does the websocket reconnect loop")
	add(t, e, "s1", memory.RoleAssistant, "the backoff timer resets on partial reads")
	add(t, e, "s1", memory.RoleTool, "grep found 3 call sites")

	got, err := e.Store().QuerySemantic(ctx, "s1", "why does the websocket reconnect loop", 5, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no results")
	}
	if got[0].Message.ID != stored.ID {
		t.Errorf("best match = %q, want the identical content", got[0].Message.Content)
	}
	if got[0].Message.Embedding != nil {
		t.Error("hydrated message carries an embedding")
	}
}

func TestEngine_SessionIsolation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	add(t, e, "tenant-a", memory.RoleUser, "rotate the staging credentials")

	results, err := e.Store().QuerySemantic(ctx, "tenant-b", "rotate the staging credentials", 5, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("tenant-b sees %d messages from tenant-a", len(results))
	}

	slice, err := e.Retriever().Retrieve(ctx, "tenant-b", "credentials", retrieval.Options{})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(slice.Items) != 0 {
		t.Errorf("retriever leaked %d items across sessions", len(slice.Items))
	}
}

func TestEngine_RetrieveMergesAndBounds(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// Enough messages that semantic and recent sets differ.
	for i := 0; i < 12; i++ {
		add(t, e, "s1", memory.RoleUser, fmt.Sprintf("step %d of the migration", i))
	}
	add(t, e, "s1", memory.RoleUser, "the unique needle about tls certificates")

	slice, err := e.Retriever().Retrieve(ctx, "s1", "the unique needle about tls certificates", retrieval.Options{})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if slice.Degraded {
		t.Error("unexpected degraded flag")
	}
	if len(slice.Items) == 0 || len(slice.Items) > 8 {
		t.Fatalf("slice size = %d, want within (0, 8]", len(slice.Items))
	}

	// The needle is both the best semantic match and the most recent
	// message, so it must appear exactly once with dual provenance.
	seen := 0
	for _, item := range slice.Items {
		if item.Message.Content == "the unique needle about tls certificates" {
			seen++
			if item.Provenance != retrieval.FromSemantic|retrieval.FromRecent {
				t.Errorf("needle provenance = %s, want semantic+recent", item.Provenance)
			}
		}
	}
	if seen != 1 {
		t.Errorf("needle appeared %d times, want 1", seen)
	}
}

func TestEngine_DegradedFallback(t *testing.T) {
	e, emb := newTestEngine(t)
	ctx := context.Background()

	add(t, e, "s1", memory.RoleUser, "first message")
	add(t, e, "s1", memory.RoleAssistant, "second message")

	emb.Fail = errors.New("connection refused")

	slice, err := e.Retriever().Retrieve(ctx, "s1", "anything", retrieval.Options{})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !slice.Degraded {
		t.Fatal("degraded flag not set with a failing embedder")
	}
	if len(slice.Items) != 2 {
		t.Fatalf("degraded slice has %d items, want 2", len(slice.Items))
	}
	if slice.Items[0].Message.Content != "second message" {
		t.Errorf("degraded slice not ordered by recency: %+v", slice.Items[0].Message.Content)
	}
	for _, item := range slice.Items {
		if item.Provenance != retrieval.FromRecent {
			t.Errorf("degraded item provenance = %s", item.Provenance)
		}
	}
}

func TestEngine_OrderingSurvivesBackdatedTimestamps(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	t1 := time.Now().Add(-time.Minute)
	for i, ts := range []time.Time{t1, t1.Add(-time.Hour), t1.Add(time.Second)} {
		_, err := e.Store().Add(ctx, memory.AddRequest{
			SessionID: "s1",
			Role:      memory.RoleUser,
			Content:   fmt.Sprintf("m%d", i),
			Timestamp: ts,
		})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	recent, err := e.Store().Recent(ctx, "s1", 3, 0, "")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d messages, want 3", len(recent))
	}
	// Insert order wins regardless of client timestamps.
	for i, want := range []string{"m2", "m1", "m0"} {
		if recent[i].Content != want {
			t.Errorf("recent[%d] = %q, want %q", i, recent[i].Content, want)
		}
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].Timestamp.After(recent[i-1].Timestamp) {
			t.Errorf("timestamps disagree with insertion order at %d", i)
		}
	}
}

func TestEngine_ClearIsCompleteAndIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	add(t, e, "s1", memory.RoleUser, "to be erased")
	add(t, e, "s2", memory.RoleUser, "to be kept")

	n, err := e.Store().Clear(ctx, "s1")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 1 {
		t.Errorf("cleared %d, want 1", n)
	}

	got, err := e.Store().QuerySemantic(ctx, "s1", "to be erased", 5, "")
	if err != nil {
		t.Fatalf("query after clear: %v", err)
	}
	if len(got) != 0 {
		t.Error("cleared message still retrievable semantically")
	}
	stats, err := e.Store().Stats(ctx, "s1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MessageCount != 0 {
		t.Errorf("stats count = %d after clear", stats.MessageCount)
	}

	if n, err := e.Store().Clear(ctx, "s1"); err != nil || n != 0 {
		t.Errorf("second clear = (%d, %v), want (0, nil)", n, err)
	}

	kept, err := e.Store().Recent(ctx, "s2", 5, 0, "")
	if err != nil {
		t.Fatalf("recent s2: %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("s2 lost messages to s1's clear")
	}
}

func TestEngine_EmptySessionReads(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	got, err := e.Store().QuerySemantic(ctx, "ghost", "anything", 5, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Error("empty session returned semantic results")
	}

	stats, err := e.Store().Stats(ctx, "ghost")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MessageCount != 0 || stats.SessionID != "ghost" {
		t.Errorf("stats = %+v, want zeroed for ghost", stats)
	}
}

func TestEngine_StatsByType(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	add(t, e, "s1", memory.RoleUser, "a question")
	add(t, e, "s1", memory.RoleAssistant, "an answer")
	add(t, e, "s1", memory.RoleTool, "a tool result")
	add(t, e, "s1", memory.RoleUser, "another question")

	stats, err := e.Store().Stats(ctx, "s1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MessageCount != 4 {
		t.Errorf("count = %d, want 4", stats.MessageCount)
	}
	want := map[memory.MessageType]int64{
		memory.TypeUserQuery:     2,
		memory.TypeAgentResponse: 1,
		memory.TypeToolResult:    1,
	}
	for typ, n := range want {
		if stats.ByType[typ] != n {
			t.Errorf("by_type[%s] = %d, want %d", typ, stats.ByType[typ], n)
		}
	}
}
