package memtest

import (
	"context"
	"math"
	"testing"
)

func TestEmbedderDeterministic(t *testing.T) {
	e := NewEmbedder(16)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "refactor the parser")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	a2, err := e.Embed(ctx, "refactor the parser")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(a1) != 16 {
		t.Fatalf("dimension = %d, want 16", len(a1))
	}
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatal("equal inputs produced different vectors")
		}
	}

	b, err := e.Embed(ctx, "completely different text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	same := true
	for i := range a1 {
		if a1[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different inputs produced identical vectors")
	}

	var norm float64
	for _, v := range a1 {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-3 {
		t.Errorf("vector norm = %f, want 1", math.Sqrt(norm))
	}

	if e.Calls() != 3 {
		t.Errorf("calls = %d, want 3", e.Calls())
	}
}
