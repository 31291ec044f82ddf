// Package core provides the foundational domain types shared by the FeedMesh
// protocol engine and its collaborators. It defines:
//
//   - The A2A message envelope (a closed tagged union over text, json,
//     binary and control content) with wire-level JSON encoding
//   - Schema validation for inbound payloads prior to any state mutation
//   - The capability vocabulary and pure set-intersection helpers
//   - Capability negotiation request/response contracts and the pure
//     Negotiate algorithm
//   - The protocol error taxonomy (codes, not exception types)
//
// Everything in this package is stateless and safe for concurrent use from
// any number of sessions. Implementation concerns (session lifecycle, event
// delivery, transports, persistence) live in their own packages and depend
// on the contracts defined here.
package core
