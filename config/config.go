package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/ancourn/kaldr/logx"
)

// LoadGenesisConfig reads and parses the genesis.yml file
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		logx.Error("CONFIG", "Failed to open genesis config: ", err)
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		logx.Error("CONFIG", "Failed to decode genesis YAML: ", err)
		return nil, err
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded genesis config: SelfNode=%s, PeerNodes=%d, Validators=%d", cfgFile.Config.SelfNode.PubKey, len(cfgFile.Config.PeerNodes), len(cfgFile.Config.Validators)))
	return &cfgFile.Config, nil
}

// LoadEd25519PrivKey loads an Ed25519 private key from a file (expects hex encoding)
func LoadEd25519PrivKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length %d", len(key))
	}
	return ed25519.PrivateKey(key), nil
}

// CatchupConfig controls the catch-up session. Immutable after load.
type CatchupConfig struct {
	MaxBatchSize     int `ini:"max_batch_size"`
	SyncTimeoutMs    int `ini:"sync_timeout_ms"`
	RetryAttempts    int `ini:"retry_attempts"`
	ParallelSyncs    int `ini:"parallel_syncs"`
	ValidationDepth  int `ini:"validation_depth"`
	BatchRetryLimit  int `ini:"batch_retry_limit"`
	BatchCooldownMs  int `ini:"batch_cooldown_ms"`
	BatchIntervalMs  int `ini:"batch_interval_ms"`
	ValidationTickMs int `ini:"validation_tick_ms"`
}

// LoadCatchupConfig reads catch-up config from an .ini file
func LoadCatchupConfig(path string) (*CatchupConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	catchupSection := cfg.Section("catchup")
	catchupCfg := DefaultCatchupConfig()
	err = catchupSection.MapTo(catchupCfg)
	if err != nil {
		return nil, err
	}
	if err := catchupCfg.Validate(); err != nil {
		return nil, err
	}
	return catchupCfg, nil
}

// DefaultCatchupConfig returns the built-in defaults
func DefaultCatchupConfig() *CatchupConfig {
	return &CatchupConfig{
		MaxBatchSize:     DefaultMaxBatchSize,
		SyncTimeoutMs:    DefaultSyncTimeoutMs,
		RetryAttempts:    DefaultRetryAttempts,
		ParallelSyncs:    DefaultParallelSyncs,
		ValidationDepth:  DefaultValidationDepth,
		BatchRetryLimit:  DefaultBatchRetryLimit,
		BatchCooldownMs:  DefaultBatchCooldownMs,
		BatchIntervalMs:  DefaultBatchIntervalMs,
		ValidationTickMs: DefaultValidationTickMs,
	}
}

// Validate rejects settings the coordinator cannot run with
func (c *CatchupConfig) Validate() error {
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be >= 1, got %d", c.MaxBatchSize)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be >= 0, got %d", c.RetryAttempts)
	}
	if c.ParallelSyncs < 1 {
		return fmt.Errorf("parallel_syncs must be >= 1, got %d", c.ParallelSyncs)
	}
	if c.ValidationDepth < 1 {
		return fmt.Errorf("validation_depth must be >= 1, got %d", c.ValidationDepth)
	}
	if c.ValidationTickMs < 1 {
		return fmt.Errorf("validation_tick_ms must be >= 1, got %d", c.ValidationTickMs)
	}
	if c.BatchRetryLimit < 0 {
		return fmt.Errorf("batch_retry_limit must be >= 0, got %d", c.BatchRetryLimit)
	}
	return nil
}
