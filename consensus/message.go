package consensus

import (
	"github.com/ancourn/kaldr/jsonx"
)

// MessageType tags a consensus protocol message
type MessageType string

const (
	MsgPropose      MessageType = "PROPOSE"
	MsgVote         MessageType = "VOTE"
	MsgCommit       MessageType = "COMMIT"
	MsgSyncRequest  MessageType = "SYNC_REQUEST"
	MsgSyncResponse MessageType = "SYNC_RESPONSE"
)

// Message is a protocol-level notification from a peer. Constructed by
// the network layer on receipt and consumed exactly once by the router;
// never persisted by this subsystem.
type Message struct {
	Type        MessageType `json:"type"`
	BlockHeight uint64      `json:"block_height"`
	BlockHash   string      `json:"block_hash,omitempty"`
	Sender      string      `json:"sender"`
	Signature   []byte      `json:"signature,omitempty"`
	Payload     []byte      `json:"payload,omitempty"`
}

// DecodeMessage parses a wire-encoded message
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := jsonx.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Encode serializes the message for the wire
func (m *Message) Encode() ([]byte, error) {
	return jsonx.Marshal(m)
}
