package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"gatekeep/internal/agents"
	"gatekeep/internal/audit"
	"gatekeep/internal/budget"
	"gatekeep/internal/classify"
	"gatekeep/internal/config"
	"gatekeep/internal/events"
	"gatekeep/internal/execution"
	"gatekeep/internal/pipeline"
	"gatekeep/internal/types"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dataDir    string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gatekeep",
	Short: "gatekeep - governed execution pipeline for agent actions",
	Long: `gatekeep is a fail-closed admission-control pipeline that stands between
a raw human request and any autonomous agent action.

A request only executes after its intent has been structurally encoded,
validated, cost-estimated, scope-bounded, budget-checked, and matched to a
compatible agent. Every completed run appends a hash-chained audit entry to
the owning thread, so tampering with history is independently detectable.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var (
	runRequester string
	runThread    string
	runSphere    string
	runDataspace string
	runCredit    float64
	runApprove   bool
)

// runCmd submits one or more requests through the pipeline. Multiple inputs
// run concurrently; audit appends to the same thread serialize on the chain.
var runCmd = &cobra.Command{
	Use:   "run [input]...",
	Short: "Submit requests through the governed execution pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ledger, err := budget.NewSQLiteLedger(filepath.Join(dataDir, "ledger.db"))
		if err != nil {
			return err
		}
		defer ledger.Close()

		auditStore, err := audit.NewSQLiteStore(filepath.Join(dataDir, "audit.db"))
		if err != nil {
			return err
		}
		defer auditStore.Close()

		if runCredit > 0 {
			if err := ledger.Credit(ctx, runRequester, runCredit); err != nil {
				return err
			}
		}

		bus := events.NewBus()
		sub := bus.Subscribe(func(ev events.Event) {
			logger.Debug("pipeline event",
				zap.String("type", string(ev.Type)),
				zap.String("run_id", ev.RunID),
				zap.String("stage", string(ev.Stage)),
				zap.String("message", ev.Message))
		})
		defer sub.Unsubscribe()

		registry := defaultRegistry(cfg)
		approvals := execution.NewApprovals()
		supervisor := execution.NewSupervisor(
			execution.NewScriptedBackend(), approvals, bus,
			cfg.Execution.CheckpointLimit, 0, logger)
		chain := audit.NewChain(auditStore, logger)

		orch, err := pipeline.NewOrchestrator(cfg,
			classify.NewDefaultClassifier(), classify.StopwordDetector{},
			ledger, registry, supervisor, chain, bus, logger)
		if err != nil {
			return err
		}

		results := make([]types.RunResult, len(args))
		g, gctx := errgroup.WithContext(ctx)
		for i, input := range args {
			g.Go(func() error {
				req := types.Request{
					Input:       input,
					RequesterID: runRequester,
					ThreadID:    runThread,
					SphereID:    runSphere,
					DataspaceID: runDataspace,
				}
				run := orch.NewRun(req)
				if runApprove {
					approvals.Record(run.ID, runRequester)
				}
				results[i] = orch.Execute(gctx, run, nil).Outcome()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// verifyCmd replays a thread's audit chain and reports the first broken link.
var verifyCmd = &cobra.Command{
	Use:   "verify [thread-id]",
	Short: "Verify a thread's audit hash chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := audit.NewSQLiteStore(filepath.Join(dataDir, "audit.db"))
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Entries(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if idx, err := audit.VerifyEntries(entries); idx >= 0 {
			return fmt.Errorf("chain broken: %w", err)
		}
		fmt.Printf("chain intact: %d entries verified for thread %s\n", len(entries), args[0])
		return nil
	},
}

// agentsCmd lists the registered execution agents.
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List registered execution agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(defaultRegistry(cfg).Profiles(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// defaultRegistry builds the built-in agent roster. Deployments replace this
// with profiles loaded from their own agent catalog.
func defaultRegistry(cfg *config.Config) *agents.Registry {
	registry := agents.NewRegistry(agents.DefaultWeights(),
		cfg.Matching.MinScore, cfg.Matching.MaxAlternatives, logger)

	_ = registry.Register(agents.Profile{
		ID:    "agent-creator",
		Level: 1,
		SupportedActions: []types.ActionKind{
			types.ActionCreate, types.ActionUpdate, types.ActionSchedule,
		},
		MaxSensitivity: types.SensitivityConfidential,
	})
	_ = registry.Register(agents.Profile{
		ID:    "agent-reader",
		Level: 1,
		SupportedActions: []types.ActionKind{
			types.ActionRead, types.ActionSearch, types.ActionFilter, types.ActionSort,
		},
		MaxSensitivity: types.SensitivityInternal,
	})
	_ = registry.Register(agents.Profile{
		ID:    "agent-reasoner",
		Level: 3,
		SupportedActions: []types.ActionKind{
			types.ActionAnalyze, types.ActionGenerate, types.ActionTransform,
			types.ActionSummarize, types.ActionAggregate,
		},
		MaxSensitivity: types.SensitivitySecret,
	})
	return registry
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "gatekeep.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".gatekeep", "directory for ledger and audit databases")

	runCmd.Flags().StringVar(&runRequester, "requester", "local-user", "requester id")
	runCmd.Flags().StringVar(&runThread, "thread", "thread-local", "owning thread id for the audit chain")
	runCmd.Flags().StringVar(&runSphere, "sphere", "", "sphere context id")
	runCmd.Flags().StringVar(&runDataspace, "dataspace", "", "dataspace context id")
	runCmd.Flags().Float64Var(&runCredit, "credit", 0, "credit the requester's balance before running")
	runCmd.Flags().BoolVar(&runApprove, "approve", false, "record a human approval for secret-sensitivity runs")

	rootCmd.AddCommand(runCmd, verifyCmd, agentsCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
