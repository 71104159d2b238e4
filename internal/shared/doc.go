// Package shared holds code used by several packages that belongs to none of
// them. Today that is only testutil: captured slog handlers and deterministic
// series fixtures for tests.
package shared
