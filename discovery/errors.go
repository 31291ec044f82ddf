package discovery

import (
	"fmt"

	"github.com/hupe1980/feedmesh/core"
)

func validateEndpoint(ep Endpoint) error {
	if ep.AgentID == "" {
		return core.NewProtocolError(core.CodeInvalidAgent, "endpoint agent id must not be empty")
	}
	if ep.Address == "" {
		return core.NewProtocolError(core.CodeInvalidAgent,
			fmt.Sprintf("endpoint for agent %q has no address", ep.AgentID))
	}
	return nil
}

func notFoundError(agentID string) error {
	return core.NewProtocolError(core.CodeAgentNotFound,
		fmt.Sprintf("agent %q is not registered", agentID))
}
