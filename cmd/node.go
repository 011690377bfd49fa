package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ancourn/kaldr/config"
	"github.com/ancourn/kaldr/db"
	"github.com/ancourn/kaldr/events"
	"github.com/ancourn/kaldr/exception"
	"github.com/ancourn/kaldr/logx"
	"github.com/ancourn/kaldr/monitoring"
	"github.com/ancourn/kaldr/network"
	"github.com/ancourn/kaldr/store"
	"github.com/ancourn/kaldr/syncer"
	"github.com/ancourn/kaldr/validator"
)

var (
	genesisPath   string
	catchupPath   string
	dataDir       string
	dbBackend     string
	targetHeight  uint64
	simSeed       int64
	simFailRate   float64
	metricsAddr   string
	skipArchiving bool
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a node catch-up session against a simulated peer source",
	RunE:  runNode,
}

func init() {
	nodeCmd.Flags().StringVar(&genesisPath, "genesis", "", "path to genesis.yml (optional)")
	nodeCmd.Flags().StringVar(&catchupPath, "catchup-config", "", "path to catchup .ini config (optional)")
	nodeCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory for the header archive")
	nodeCmd.Flags().StringVar(&dbBackend, "db-backend", string(db.BackendLevelDB), "header archive backend (leveldb|bolt)")
	nodeCmd.Flags().Uint64Var(&targetHeight, "target", 1000, "height to catch up to")
	nodeCmd.Flags().Int64Var(&simSeed, "sim-seed", 42, "seed for the simulated peer source")
	nodeCmd.Flags().Float64Var(&simFailRate, "sim-fail-rate", 0.1, "per-fetch failure probability of the simulated source")
	nodeCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "prometheus listen address (empty disables)")
	nodeCmd.Flags().BoolVar(&skipArchiving, "no-archive", false, "disable the persistent header archive")
	rootCmd.AddCommand(nodeCmd)
}

func runNode(cmd *cobra.Command, args []string) error {
	monitoring.SetNodeUp()

	catchupCfg := config.DefaultCatchupConfig()
	if catchupPath != "" {
		loaded, err := config.LoadCatchupConfig(catchupPath)
		if err != nil {
			return fmt.Errorf("failed to load catchup config: %w", err)
		}
		catchupCfg = loaded
	}

	if genesisPath != "" {
		if _, err := config.LoadGenesisConfig(genesisPath); err != nil {
			return fmt.Errorf("failed to load genesis config: %w", err)
		}
	}

	if metricsAddr != "" {
		exception.SafeGo("metrics-server", func() {
			if err := monitoring.ServeMetrics(metricsAddr); err != nil {
				logx.Error("CMD", "Metrics server stopped: ", err)
			}
		})
	}

	source := network.NewSimulatedSource(simSeed, targetHeight, simFailRate, 5*time.Millisecond, 50*time.Millisecond)
	verifier := validator.NewEd25519Verifier([]string{source.ValidatorPubKey()})
	bus := events.NewEventBus()

	coordinator := syncer.NewCoordinator(catchupCfg, source, verifier, bus)

	startHeight := uint64(0)
	if !skipArchiving {
		provider, err := db.NewProvider(db.Backend(dbBackend), dataDir)
		if err != nil {
			return fmt.Errorf("failed to open header archive: %w", err)
		}
		archive, err := store.NewHeaderStore(provider)
		if err != nil {
			provider.Close()
			return fmt.Errorf("failed to init header archive: %w", err)
		}
		defer archive.MustClose()
		coordinator.WithArchive(archive)

		startHeight = resumeHeight(archive, targetHeight)
		if startHeight > 0 {
			logx.Info("CMD", fmt.Sprintf("Resuming catchup from archived height %d", startHeight))
		}
	}

	vq := syncer.NewValidationQueue(catchupCfg, verifier, bus)
	coordinator.WithValidationQueue(vq)
	vq.Start()
	defer vq.Stop()

	subID, eventCh := bus.Subscribe()
	defer bus.Unsubscribe(subID)
	exception.SafeGo("event-logger", func() {
		for event := range eventCh {
			logx.Info("EVENT", fmt.Sprintf("%s at height %d", event.Type(), event.Height()))
		}
	})

	if err := coordinator.StartCatchup(startHeight, targetHeight); err != nil {
		return err
	}

	done := make(chan struct{})
	exception.SafeGo("catchup-waiter", func() {
		coordinator.Wait()
		close(done)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logx.Info("CMD", "Signal received, shutting down")
		coordinator.Shutdown()
	case <-done:
	}

	state := coordinator.GetSyncState()
	logx.Info("CMD", fmt.Sprintf("Final state: height=%d/%d, phase=%s", state.CurrentHeight, state.TargetHeight, coordinator.GetPhase()))
	return nil
}

// resumeHeight picks the catch-up starting point: the archive's latest
// height when it holds anything, clamped to the target.
func resumeHeight(archive *store.HeaderStore, target uint64) uint64 {
	latest, hasAny := archive.LatestHeight()
	if !hasAny {
		return 0
	}
	if latest > target {
		return target
	}
	return latest
}
