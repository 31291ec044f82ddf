// Package session implements the A2A session lifecycle state machine: one
// Handler per authenticated local agent identity, owning the lifecycle state,
// the negotiated capability set and the conversation registry, and reacting
// to events arriving on the shared bus.
//
// A Handler is created in the discovering state when an agent identity is
// authenticated and attached, progresses through connecting and negotiating,
// and exchanges application messages in ready. The error and disconnected
// states are terminal: a fresh Handler must be created for a new attempt.
//
// Handlers are driven by cooperative event delivery; every state mutation is
// guarded by the Handler's own mutex, so different sessions progress fully in
// parallel with no shared mutable state beyond the bus. The Registry tracks
// live handlers with an explicit create/lookup/remove lifecycle and is owned
// by the transport adapter.
package session
