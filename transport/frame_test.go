package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/feedmesh/core"
)

func TestFrame_RoundTrip(t *testing.T) {
	msg := core.NewTextMessage("agent-a", "agent-b", core.NewConversationID(), "hello")
	data, err := EncodeFrame(FrameKindMessage, msg)
	require.NoError(t, err)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, FrameKindMessage, frame.Kind)

	decoded, err := core.DecodeMessage(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, core.TextContent{Text: "hello"}, decoded.Content)
}

func TestDecodeFrame_RejectsUnknownKind(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"kind":"telepathy","payload":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telepathy")
}

func TestDecodeFrame_RejectsGarbage(t *testing.T) {
	_, err := DecodeFrame([]byte(`not json`))
	require.Error(t, err)
}
