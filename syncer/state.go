package syncer

import "time"

// Phase is the coordinator's lifecycle state
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSyncing   Phase = "syncing"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// SyncState is the externally observable session state. Readers always
// receive a copy; the coordinator's loop is the only writer.
type SyncState struct {
	CurrentHeight uint64
	TargetHeight  uint64
	// SyncSpeed is blocks per second over the whole session
	SyncSpeed float64
	// EstimatedTimeRemaining is seconds until the target at the current
	// speed; +Inf while the speed is still zero
	EstimatedTimeRemaining float64
	IsSyncing              bool
	LastSyncUpdate         time.Time
}
