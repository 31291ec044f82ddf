// Package audit records every message crossing a session boundary. A Log
// stores entries queryable by conversation or agent; the in-memory
// implementation serves tests and ephemeral setups, the Postgres one durable
// deployments. The Recorder bridges the event bus to a Log so auditing stays
// out of the session engine entirely.
package audit
