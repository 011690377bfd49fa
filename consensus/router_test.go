package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancourn/kaldr/events"
)

func collectEvent(t *testing.T, ch chan events.SyncEvent) events.SyncEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, ch chan events.SyncEvent) {
	t.Helper()
	select {
	case event := <-ch:
		t.Fatalf("unexpected event %s", event.Type())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleSyncRequest(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	router := NewRouter(bus)

	router.Handle(&Message{Type: MsgSyncRequest, Sender: "peer-1", BlockHeight: 42})

	event := collectEvent(t, ch)
	require.Equal(t, events.EventSyncRequestReceived, event.Type())
	req := event.(*events.SyncRequestReceived)
	assert.Equal(t, "peer-1", req.Sender())
	assert.Equal(t, uint64(42), req.Height())
}

func TestHandleSyncResponse(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	router := NewRouter(bus)

	router.Handle(&Message{
		Type:        MsgSyncResponse,
		Sender:      "peer-2",
		BlockHeight: 7,
		BlockHash:   "abc123",
		Payload:     []byte(`{"header":{}}`),
	})

	event := collectEvent(t, ch)
	require.Equal(t, events.EventSyncResponseReceived, event.Type())
	resp := event.(*events.SyncResponseReceived)
	assert.Equal(t, "peer-2", resp.Sender())
	assert.Equal(t, "abc123", resp.BlockHash())
	assert.NotEmpty(t, resp.Payload())
}

func TestHandleSyncResponseMissingPayloadDropped(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	router := NewRouter(bus)

	router.Handle(&Message{
		Type:        MsgSyncResponse,
		Sender:      "peer-2",
		BlockHeight: 7,
		BlockHash:   "abc123",
	})

	assertNoEvent(t, ch)
}

func TestHandleSyncResponseMissingHashDropped(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	router := NewRouter(bus)

	router.Handle(&Message{
		Type:        MsgSyncResponse,
		Sender:      "peer-2",
		BlockHeight: 7,
		Payload:     []byte("data"),
	})

	assertNoEvent(t, ch)
}

func TestHandlePropose(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	router := NewRouter(bus)

	router.Handle(&Message{Type: MsgPropose, Sender: "leader", BlockHeight: 100, BlockHash: "ff00"})

	event := collectEvent(t, ch)
	require.Equal(t, events.EventProposalReceived, event.Type())
	proposal := event.(*events.ProposalReceived)
	assert.Equal(t, "leader", proposal.Sender())
	assert.Equal(t, uint64(100), proposal.Height())
	assert.Equal(t, "ff00", proposal.BlockHash())
}

func TestHandleUnknownAndUnhandledTypes(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	router := NewRouter(bus)

	// None of these may panic, error out, or emit events
	router.Handle(&Message{Type: MsgVote, Sender: "peer-3"})
	router.Handle(&Message{Type: MsgCommit, Sender: "peer-3"})
	router.Handle(&Message{Type: "GOSSIP", Sender: "peer-3"})
	router.Handle(nil)

	assertNoEvent(t, ch)
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	msg := &Message{
		Type:        MsgSyncResponse,
		BlockHeight: 12,
		BlockHash:   "beef",
		Sender:      "peer-9",
		Payload:     []byte("payload"),
	}

	data, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg.Type, decoded.Type)
	assert.Equal(t, msg.BlockHeight, decoded.BlockHeight)
	assert.Equal(t, msg.Payload, decoded.Payload)
}

func TestHandleIsConcurrencySafe(t *testing.T) {
	bus := events.NewEventBus()
	router := NewRouter(bus)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				router.Handle(&Message{Type: MsgPropose, Sender: "peer", BlockHeight: uint64(n*100 + j)})
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
