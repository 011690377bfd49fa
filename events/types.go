package events

import (
	"time"

	"github.com/ancourn/kaldr/utils"
)

// EventType is an enum-like string type for sync lifecycle events
type EventType string

const (
	EventCatchupStarted       EventType = "CatchupStarted"
	EventCatchupProgress      EventType = "CatchupProgress"
	EventBatchSynced          EventType = "BatchSynced"
	EventCatchupError         EventType = "CatchupError"
	EventCatchupCompleted     EventType = "CatchupCompleted"
	EventBlockValidated       EventType = "BlockValidated"
	EventSyncRequestReceived  EventType = "SyncRequestReceived"
	EventSyncResponseReceived EventType = "SyncResponseReceived"
	EventProposalReceived     EventType = "ProposalReceived"
)

// SyncEvent represents any event emitted by the catch-up subsystem
type SyncEvent interface {
	Type() EventType
	Timestamp() time.Time
	Height() uint64
}

// CatchupStarted is emitted when a catch-up session begins
type CatchupStarted struct {
	fromHeight uint64
	toHeight   uint64
	timestamp  time.Time
}

func NewCatchupStarted(fromHeight, toHeight uint64) *CatchupStarted {
	return &CatchupStarted{fromHeight: fromHeight, toHeight: toHeight, timestamp: time.Now()}
}

func (e *CatchupStarted) Type() EventType      { return EventCatchupStarted }
func (e *CatchupStarted) Timestamp() time.Time { return e.timestamp }
func (e *CatchupStarted) Height() uint64       { return e.fromHeight }
func (e *CatchupStarted) FromHeight() uint64   { return e.fromHeight }
func (e *CatchupStarted) ToHeight() uint64     { return e.toHeight }

// CatchupProgress is emitted after every batch advances the session
type CatchupProgress struct {
	currentHeight          uint64
	targetHeight           uint64
	progressPercent        float64
	syncSpeed              float64
	estimatedTimeRemaining float64
	timestamp              time.Time
}

func NewCatchupProgress(currentHeight, targetHeight uint64, progressPercent, syncSpeed, estimatedTimeRemaining float64) *CatchupProgress {
	return &CatchupProgress{
		currentHeight:          currentHeight,
		targetHeight:           targetHeight,
		progressPercent:        progressPercent,
		syncSpeed:              syncSpeed,
		estimatedTimeRemaining: estimatedTimeRemaining,
		timestamp:              time.Now(),
	}
}

func (e *CatchupProgress) Type() EventType      { return EventCatchupProgress }
func (e *CatchupProgress) Timestamp() time.Time { return e.timestamp }
func (e *CatchupProgress) Height() uint64       { return e.currentHeight }
func (e *CatchupProgress) CurrentHeight() uint64 {
	return e.currentHeight
}
func (e *CatchupProgress) TargetHeight() uint64      { return e.targetHeight }
func (e *CatchupProgress) ProgressPercent() float64  { return e.progressPercent }
func (e *CatchupProgress) SyncSpeed() float64        { return e.syncSpeed }
func (e *CatchupProgress) EstimatedTimeRemaining() float64 {
	return e.estimatedTimeRemaining
}

// BatchSynced is emitted when a batch passes validation and is stored
type BatchSynced struct {
	startHeight uint64
	endHeight   uint64
	blockCount  int
	timestamp   time.Time
}

func NewBatchSynced(startHeight, endHeight uint64, blockCount int) *BatchSynced {
	return &BatchSynced{startHeight: startHeight, endHeight: endHeight, blockCount: blockCount, timestamp: time.Now()}
}

func (e *BatchSynced) Type() EventType      { return EventBatchSynced }
func (e *BatchSynced) Timestamp() time.Time { return e.timestamp }
func (e *BatchSynced) Height() uint64       { return e.endHeight }
func (e *BatchSynced) StartHeight() uint64  { return e.startHeight }
func (e *BatchSynced) EndHeight() uint64    { return e.endHeight }
func (e *BatchSynced) BlockCount() int      { return e.blockCount }

// CatchupError is emitted when a batch fails to fetch or validate
type CatchupError struct {
	fromHeight uint64
	toHeight   uint64
	err        error
	timestamp  time.Time
}

func NewCatchupError(fromHeight, toHeight uint64, err error) *CatchupError {
	return &CatchupError{fromHeight: fromHeight, toHeight: toHeight, err: err, timestamp: time.Now()}
}

func (e *CatchupError) Type() EventType      { return EventCatchupError }
func (e *CatchupError) Timestamp() time.Time { return e.timestamp }
func (e *CatchupError) Height() uint64       { return e.fromHeight }
func (e *CatchupError) FromHeight() uint64   { return e.fromHeight }
func (e *CatchupError) ToHeight() uint64     { return e.toHeight }
func (e *CatchupError) Err() error           { return e.err }

// CatchupCompleted is emitted when a session reaches its target or is
// aborted by the batch-retry limit. Never emitted on Shutdown.
type CatchupCompleted struct {
	finalHeight uint64
	duration    time.Duration
	success     bool
	timestamp   time.Time
}

func NewCatchupCompleted(finalHeight uint64, duration time.Duration, success bool) *CatchupCompleted {
	return &CatchupCompleted{finalHeight: finalHeight, duration: duration, success: success, timestamp: time.Now()}
}

func (e *CatchupCompleted) Type() EventType         { return EventCatchupCompleted }
func (e *CatchupCompleted) Timestamp() time.Time    { return e.timestamp }
func (e *CatchupCompleted) Height() uint64          { return e.finalHeight }
func (e *CatchupCompleted) FinalHeight() uint64     { return e.finalHeight }
func (e *CatchupCompleted) Duration() time.Duration { return e.duration }
func (e *CatchupCompleted) DurationMs() int64       { return utils.DurationMillis(e.duration) }
func (e *CatchupCompleted) Success() bool           { return e.success }

// BlockValidated is emitted per header drained from the validation queue
type BlockValidated struct {
	height    uint64
	blockHash string
	isValid   bool
	timestamp time.Time
}

func NewBlockValidated(height uint64, blockHash string, isValid bool) *BlockValidated {
	return &BlockValidated{height: height, blockHash: blockHash, isValid: isValid, timestamp: time.Now()}
}

func (e *BlockValidated) Type() EventType      { return EventBlockValidated }
func (e *BlockValidated) Timestamp() time.Time { return e.timestamp }
func (e *BlockValidated) Height() uint64       { return e.height }
func (e *BlockValidated) BlockHash() string    { return e.blockHash }
func (e *BlockValidated) IsValid() bool        { return e.isValid }

// SyncRequestReceived is emitted when a peer asks this node for headers.
// Serving the request is an export-side concern outside this subsystem.
type SyncRequestReceived struct {
	sender    string
	height    uint64
	timestamp time.Time
}

func NewSyncRequestReceived(sender string, height uint64) *SyncRequestReceived {
	return &SyncRequestReceived{sender: sender, height: height, timestamp: time.Now()}
}

func (e *SyncRequestReceived) Type() EventType      { return EventSyncRequestReceived }
func (e *SyncRequestReceived) Timestamp() time.Time { return e.timestamp }
func (e *SyncRequestReceived) Height() uint64       { return e.height }
func (e *SyncRequestReceived) Sender() string       { return e.sender }

// SyncResponseReceived is emitted for well-formed SYNC_RESPONSE messages
type SyncResponseReceived struct {
	sender    string
	height    uint64
	blockHash string
	payload   []byte
	timestamp time.Time
}

func NewSyncResponseReceived(sender string, height uint64, blockHash string, payload []byte) *SyncResponseReceived {
	return &SyncResponseReceived{sender: sender, height: height, blockHash: blockHash, payload: payload, timestamp: time.Now()}
}

func (e *SyncResponseReceived) Type() EventType      { return EventSyncResponseReceived }
func (e *SyncResponseReceived) Timestamp() time.Time { return e.timestamp }
func (e *SyncResponseReceived) Height() uint64       { return e.height }
func (e *SyncResponseReceived) Sender() string       { return e.sender }
func (e *SyncResponseReceived) BlockHash() string    { return e.blockHash }
func (e *SyncResponseReceived) Payload() []byte      { return e.payload }

// ProposalReceived is emitted for PROPOSE messages; no voting happens here
type ProposalReceived struct {
	sender    string
	height    uint64
	blockHash string
	timestamp time.Time
}

func NewProposalReceived(sender string, height uint64, blockHash string) *ProposalReceived {
	return &ProposalReceived{sender: sender, height: height, blockHash: blockHash, timestamp: time.Now()}
}

func (e *ProposalReceived) Type() EventType      { return EventProposalReceived }
func (e *ProposalReceived) Timestamp() time.Time { return e.timestamp }
func (e *ProposalReceived) Height() uint64       { return e.height }
func (e *ProposalReceived) Sender() string       { return e.sender }
func (e *ProposalReceived) BlockHash() string    { return e.blockHash }
