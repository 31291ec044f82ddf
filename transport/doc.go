// Package transport carries the A2A protocol over websockets. The Server
// upgrades authenticated HTTP requests, creates a session per agent identity
// and pumps frames between the socket and the event bus; the Client is the
// outbound side used by agents connecting to a remote mesh node. The session
// engine itself never sees a socket.
package transport
