// Package memory defines the conversational memory domain: messages,
// sessions, the storage and embedding contracts, and the ContextStore that
// composes them into the add/query/recent/stats/clear operations.
//
// The package is the dependency leaf of the repository. Backends implement
// its interfaces as modules (modules/store/sqlite, modules/vector/chromem,
// modules/embedder/*); the retrieval strategy and the HTTP gateway consume
// the ContextStore built on top of them.
//
// Isolation: every operation is scoped to a session_id. Nothing in this
// package ever reads or writes across sessions.
package memory
