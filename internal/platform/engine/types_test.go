package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeFillEvent(t *testing.T) {
	raw := []byte(`{"type":"fill","session_id":"s1","amount":"-0.5","price":"1000.25"}`)

	var ev FeedEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	require.Equal(t, EventFill, ev.Type)
	require.Equal(t, "s1", ev.SessionID)

	fill, err := ev.Fill()
	require.NoError(t, err)
	require.Equal(t, "-0.5", fill.Amount.String())
	require.Equal(t, "1000.25", fill.Price.String())
}

func TestDecodePriceEvent(t *testing.T) {
	raw := []byte(`{"type":"price","session_id":"s1","price":"999.99"}`)

	var ev FeedEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	require.Equal(t, EventPrice, ev.Type)

	price, err := ev.PriceValue()
	require.NoError(t, err)
	require.Equal(t, "999.99", price.String())
}

func TestDecodeRejectsMalformedAmounts(t *testing.T) {
	ev := FeedEvent{Type: EventFill, SessionID: "s1", Amount: "abc", Price: "1000"}
	_, err := ev.Fill()
	require.Error(t, err)

	ev = FeedEvent{Type: EventPrice, SessionID: "s1", Price: ""}
	_, err = ev.PriceValue()
	require.Error(t, err)
}

func TestControlCommandRoundTrip(t *testing.T) {
	cmd := ControlCommand{Op: OpAbort, SessionID: "s1"}
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	require.JSONEq(t, `{"op":"abort","session_id":"s1"}`, string(data))

	var ack ControlAck
	require.NoError(t, json.Unmarshal([]byte(`{"op":"ack","session_id":"s1"}`), &ack))
	require.Equal(t, OpAck, ack.Op)
	require.Empty(t, ack.Error)
}
