package consensus

import (
	"fmt"

	"github.com/ancourn/kaldr/events"
	"github.com/ancourn/kaldr/logx"
	"github.com/ancourn/kaldr/monitoring"
)

// Router dispatches inbound consensus messages to event subscribers.
// It is stateless and safe to call from the network layer's own
// goroutines, concurrently with the catch-up loop. Malformed messages
// are logged and dropped, never surfaced as errors.
type Router struct {
	bus *events.EventBus
}

func NewRouter(bus *events.EventBus) *Router {
	return &Router{bus: bus}
}

// Handle consumes one message. It never returns an error and never
// blocks beyond a non-blocking event publish.
func (r *Router) Handle(msg *Message) {
	if msg == nil {
		logx.Warn("ROUTER", "Dropping nil consensus message")
		monitoring.IncreaseDroppedMessageCount(monitoring.MsgUnknownType)
		return
	}

	switch msg.Type {
	case MsgSyncRequest:
		logx.Debug("ROUTER", fmt.Sprintf("Sync request from %s for height %d", msg.Sender, msg.BlockHeight))
		r.bus.Publish(events.NewSyncRequestReceived(msg.Sender, msg.BlockHeight))

	case MsgSyncResponse:
		if msg.BlockHash == "" {
			logx.Warn("ROUTER", fmt.Sprintf("Dropping sync response from %s: missing block hash", msg.Sender))
			monitoring.IncreaseDroppedMessageCount(monitoring.MsgMissingBlockHash)
			return
		}
		if len(msg.Payload) == 0 {
			logx.Warn("ROUTER", fmt.Sprintf("Dropping sync response from %s: missing payload", msg.Sender))
			monitoring.IncreaseDroppedMessageCount(monitoring.MsgMissingPayload)
			return
		}
		r.bus.Publish(events.NewSyncResponseReceived(msg.Sender, msg.BlockHeight, msg.BlockHash, msg.Payload))

	case MsgPropose:
		logx.Debug("ROUTER", fmt.Sprintf("Proposal from %s at height %d", msg.Sender, msg.BlockHeight))
		r.bus.Publish(events.NewProposalReceived(msg.Sender, msg.BlockHeight, msg.BlockHash))

	case MsgVote, MsgCommit:
		// Voting happens in the consensus engine, not in catch-up.
		logx.Warn("ROUTER", fmt.Sprintf("No handler for %s message from %s", msg.Type, msg.Sender))
		monitoring.IncreaseDroppedMessageCount(monitoring.MsgUnhandledType)

	default:
		logx.Warn("ROUTER", fmt.Sprintf("Unknown consensus message type %q from %s", msg.Type, msg.Sender))
		monitoring.IncreaseDroppedMessageCount(monitoring.MsgUnknownType)
	}
}
