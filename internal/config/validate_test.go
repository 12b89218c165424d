package config

import (
	"strings"
	"testing"

	"github.com/contextcore/contextd/internal/core"
	"gopkg.in/yaml.v3"
)

// stubModule is a basic module for testing.
type stubModule struct {
	id string
}

func (m *stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return &stubModule{id: m.id} },
	}
}

func registerStub(t *testing.T, id string) {
	t.Helper()
	core.RegisterModule(&stubModule{id: id})
}

func TestValidate_Valid(t *testing.T) {
	id := t.Name() + ".mod"
	registerStub(t, id)
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{id: {}},
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingVersion(t *testing.T) {
	id := t.Name() + ".mod"
	registerStub(t, id)
	cfg := &Config{
		Modules: map[string]yaml.Node{id: {}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing version")
	}
	if !strings.Contains(err.Error(), "version") {
		t.Errorf("error should mention version: %v", err)
	}
}

func TestValidate_UnsupportedVersion(t *testing.T) {
	id := t.Name() + ".mod"
	registerStub(t, id)
	cfg := &Config{
		Version: "99",
		Modules: map[string]yaml.Node{id: {}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for unsupported version")
	}
	if !strings.Contains(err.Error(), "unsupported version") {
		t.Errorf("error should mention unsupported version: %v", err)
	}
}

func TestValidate_NoModules(t *testing.T) {
	cfg := &Config{Version: "1"}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty modules")
	}
	if !strings.Contains(err.Error(), "at least one module") {
		t.Errorf("error should mention missing modules: %v", err)
	}
}

func TestValidate_UnknownModule(t *testing.T) {
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{"no.such.module": {}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for unknown module")
	}
	if !strings.Contains(err.Error(), "unknown module") {
		t.Errorf("error should mention unknown module: %v", err)
	}
}

func TestValidate_MultipleEmbedders(t *testing.T) {
	a := "embedder." + t.Name() + ".a"
	b := "embedder." + t.Name() + ".b"
	registerStub(t, a)
	registerStub(t, b)
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{a: {}, b: {}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for multiple embedders")
	}
	if !strings.Contains(err.Error(), "at most one embedder") {
		t.Errorf("error should mention embedder conflict: %v", err)
	}
}

func TestValidate_EngineRequiresBackends(t *testing.T) {
	registerStub(t, "context.engine")
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{"context.engine": {}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for engine without backends")
	}
	for _, ns := range []string{"store.", "vector.", "embedder."} {
		if !strings.Contains(err.Error(), ns) {
			t.Errorf("error should mention missing %s* module: %v", ns, err)
		}
	}
}

func TestResolve_SortedOrder(t *testing.T) {
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{
			"gateway.http":   {},
			"context.engine": {},
			"store.sqlite":   {},
		},
	}
	ids := Resolve(cfg)
	want := []string{"context.engine", "gateway.http", "store.sqlite"}
	if len(ids) != len(want) {
		t.Fatalf("got %d ids, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}
