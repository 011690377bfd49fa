package config

const (
	DefaultMaxBatchSize  = 50
	DefaultSyncTimeoutMs = 30000
	DefaultRetryAttempts = 3
	DefaultParallelSyncs = 3

	DefaultValidationDepth  = 10
	DefaultValidationTickMs = 5000

	// batch_retry_limit = 0 retries a failing batch range forever
	DefaultBatchRetryLimit = 10
	DefaultBatchCooldownMs = 5000
	DefaultBatchIntervalMs = 100
)
