// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer FeedMeshLogger with contextual
// helpers (component, agent, session) and protocol specific logging helpers
// for state transitions, negotiations and message dispatch.
package logging
