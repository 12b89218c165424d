package core

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestAppContext_ForModule(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := NewAppContext(logger, "/data")
	child := ctx.ForModule("store.sqlite")

	child.Logger.Info("hello")

	if !bytes.Contains(buf.Bytes(), []byte("store.sqlite")) {
		t.Errorf("expected child logger to contain module ID, got: %s", buf.String())
	}
}

func TestAppContext_Services(t *testing.T) {
	ctx := NewAppContext(nil, "/data")
	ctx.RegisterService("embedder.mock", "a")
	ctx.RegisterService("embedder.openai", "b")
	ctx.RegisterService("store.messages", "c")

	// Derived contexts share the registry.
	child := ctx.ForModule("context.engine")
	if svc, ok := child.Service("store.messages"); !ok || svc != "c" {
		t.Fatalf("expected store.messages from child context, got %v (%v)", svc, ok)
	}

	if _, ok := ctx.Service("does.not.exist"); ok {
		t.Error("expected missing service lookup to return false")
	}

	names := ctx.ServicesByPrefix("embedder.")
	slices.Sort(names)
	want := []string{"embedder.mock", "embedder.openai"}
	if !slices.Equal(names, want) {
		t.Errorf("ServicesByPrefix = %v, want %v", names, want)
	}
}

func TestAppContext_LoadModule(t *testing.T) {
	t.Cleanup(resetRegistry)

	provisioned := false
	validated := false

	RegisterModule(&trackingModule{
		id:          "test.loadmod",
		onProvision: func() { provisioned = true },
		onValidate:  func() { validated = true },
	})

	ctx := NewAppContext(nil, "/data")
	mod, err := ctx.LoadModule("test.loadmod")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mod == nil {
		t.Fatal("expected non-nil module")
	}
	if !provisioned {
		t.Error("expected Provision to be called")
	}
	if !validated {
		t.Error("expected Validate to be called")
	}
}

func TestAppContext_LoadModule_UnknownID(t *testing.T) {
	t.Cleanup(resetRegistry)

	ctx := NewAppContext(nil, "/data")
	_, err := ctx.LoadModule("does.not.exist")
	if err == nil {
		t.Fatal("expected error for unknown module")
	}
}

func TestAppContext_LoadModule_ConfigureError(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{
		id:           "test.badconfig",
		configureErr: errors.New("bad config"),
	})

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("key: value"), &node); err != nil {
		t.Fatalf("yaml: %v", err)
	}

	ctx := NewAppContext(nil, "/data")
	ctx = ctx.WithModuleConfigs(map[string]yaml.Node{"test.badconfig": node})

	_, err := ctx.LoadModule("test.badconfig")
	if err == nil {
		t.Fatal("expected configure error to propagate")
	}
}

func TestRegisterModule_Duplicate(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "test.dup"})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	RegisterModule(&trackingModule{id: "test.dup"})
}

func TestModuleID_Namespace(t *testing.T) {
	tests := []struct {
		id   ModuleID
		want string
	}{
		{"store.sqlite", "store"},
		{"embedder.openai", "embedder"},
		{"gateway", "gateway"},
	}
	for _, tt := range tests {
		if got := tt.id.Namespace(); got != tt.want {
			t.Errorf("Namespace(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

// trackingModule is a configurable test module that records lifecycle calls.
type trackingModule struct {
	id           ModuleID
	configureErr error
	onProvision  func()
	onValidate   func()
}

func (m *trackingModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		ID: m.id,
		New: func() Module {
			return &trackingModule{
				id:           m.id,
				configureErr: m.configureErr,
				onProvision:  m.onProvision,
				onValidate:   m.onValidate,
			}
		},
	}
}

func (m *trackingModule) Configure(_ *yaml.Node) error {
	return m.configureErr
}

func (m *trackingModule) Provision(_ *AppContext) error {
	if m.onProvision != nil {
		m.onProvision()
	}
	return nil
}

func (m *trackingModule) Validate() error {
	if m.onValidate != nil {
		m.onValidate()
	}
	return nil
}
