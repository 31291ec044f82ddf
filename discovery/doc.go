// Package discovery locates remote agents. A Directory maps agent ids to
// reachable endpoints, with an in-memory implementation for single-process
// setups and a Redis-backed one for shared deployments. The Broker drives the
// discovery phase of a session: it resolves an agent through the directory,
// announces the discovery on the bus, dials the endpoint and reports the
// connection result.
package discovery
