package core

// ModuleID uniquely identifies a module, namespaced by dots
// (e.g. "store.sqlite", "embedder.openai", "gateway.http").
type ModuleID string

// Namespace returns the portion of the ID before the first dot,
// or the whole ID if there is no dot.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// Module is the minimal interface every module implements.
// Lifecycle behavior is added through the optional interfaces in
// lifecycle.go (Configurable, Provisioner, Validator, Starter, Stopper).
type Module interface {
	ModuleInfo() ModuleInfo
}

// ModuleInfo describes a module for the registry.
type ModuleInfo struct {
	// ID is the unique module identifier.
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	New func() Module
}
