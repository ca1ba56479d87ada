// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug
// any structured logger. Engine code defaults to NoOpLogger so the library
// stays silent unless a logger is injected.
package logging
