package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_EmptyPayloadYieldsZeroValue(t *testing.T) {
	v, ok := decodePayload[JoinQueuePayload](Frame{Type: EventJoinQueue})
	require.True(t, ok)
	assert.Equal(t, JoinQueuePayload{}, v)
}

func TestDecodePayload_MalformedJSONIsRejected(t *testing.T) {
	_, ok := decodePayload[JoinQueuePayload](Frame{Type: EventJoinQueue, Payload: json.RawMessage(`not-json`)})
	assert.False(t, ok)
}

func TestEncodeFrame_RoundTrips(t *testing.T) {
	b, err := encodeFrame(EventMatched, MatchedPayload{PartnerInfo: PublicInfo{Name: "Bob", Age: 30}})
	require.NoError(t, err)

	var f Frame
	require.NoError(t, json.Unmarshal(b, &f))
	assert.Equal(t, EventMatched, f.Type)

	var payload MatchedPayload
	require.NoError(t, json.Unmarshal(f.Payload, &payload))
	assert.Equal(t, "Bob", payload.PartnerInfo.Name)
}
