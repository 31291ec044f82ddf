package transport

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/hupe1980/feedmesh/core"
)

// Authenticator derives the agent identity from an incoming upgrade request.
// Returning an error rejects the connection before any session is created.
type Authenticator func(r *http.Request) (agentID string, err error)

// APIKeyAuthenticator authenticates with a shared bearer token and takes the
// agent identity from the X-Agent-ID header.
func APIKeyAuthenticator(apiKey string) Authenticator {
	return func(r *http.Request) (string, error) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			return "", core.NewProtocolError(core.CodeInvalidAgent, "invalid or missing bearer token")
		}
		agentID := r.Header.Get("X-Agent-ID")
		if agentID == "" {
			return "", core.NewProtocolError(core.CodeInvalidAgent, "X-Agent-ID header is required")
		}
		return agentID, nil
	}
}

// HeaderAuthenticator trusts the X-Agent-ID header without further checks.
// Meant for tests and deployments behind an authenticating proxy.
func HeaderAuthenticator() Authenticator {
	return func(r *http.Request) (string, error) {
		agentID := r.Header.Get("X-Agent-ID")
		if agentID == "" {
			return "", core.NewProtocolError(core.CodeInvalidAgent, "X-Agent-ID header is required")
		}
		return agentID, nil
	}
}
