package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/boristopalov/tangle/pkg/agent"
	"github.com/boristopalov/tangle/pkg/config"
	"github.com/boristopalov/tangle/pkg/control"
	"github.com/boristopalov/tangle/pkg/dataset"
	"github.com/boristopalov/tangle/pkg/environment"
	"github.com/boristopalov/tangle/pkg/evaluation"
	"github.com/boristopalov/tangle/pkg/experiment"
	"github.com/boristopalov/tangle/pkg/instructions"
	"github.com/boristopalov/tangle/pkg/metrics"
)

var pendulumActions = []float64{0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 1.0}

func main() {
	for _, envFile := range []string{
		".env",
		"../../.env",
		"../../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.ExperimentConfig{}

	rootCmd := &cobra.Command{
		Use:          "tangle",
		Short:        "Tangle trains tangled program graphs on image classification and control tasks.",
		SilenceUsage: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.Uint64Var(&cfg.Seed, "seed", 0, "seed of the environments and the learning agent")
	flags.StringVar(&cfg.ParamsPath, "params", "", "learning parameters file, JSON or YAML (env "+config.EnvParams+")")
	flags.StringVar(&cfg.OutDir, "out", "", "directory receiving graphs, statistics and reports (env "+config.EnvOutDir+")")
	flags.IntVar(&cfg.Generations, "generations", 0, "number of generations, overrides the parameters file when > 0")
	flags.BoolVar(&cfg.Console, "console", false, "read commands from stdin, q stops after the current generation")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&cfg.LogLevel, "log-level", "", "debug, info, warn or error (env "+config.EnvLogLevel+")")

	mnistCmd := &cobra.Command{
		Use:   "mnist",
		Short: "Train a classifier of handwritten digits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMNIST(cmd.Context(), cfg)
		},
	}
	mnistCmd.Flags().StringVar(&cfg.DataDir, "data", "", "directory holding the MNIST IDX files (env "+config.EnvDataDir+")")
	mnistCmd.Flags().StringVar(&cfg.ReportFile, "report", "classification.log", "evaluation report file, relative to --out")
	mnistCmd.Flags().BoolVar(&cfg.Readable, "readable", false, "overwrite the report with the full confusion matrix instead of appending accuracies")

	actions := pendulumActions
	pendulumCmd := &cobra.Command{
		Use:   "pendulum",
		Short: "Train a pendulum swing-up controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPendulum(cmd.Context(), cfg, actions)
		},
	}
	pendulumCmd.Flags().Float64SliceVar(&actions, "actions", pendulumActions, "torque fractions applied in each direction")

	rootCmd.AddCommand(mnistCmd, pendulumCmd)
	return rootCmd
}

// session holds what both experiments set up the same way
type session struct {
	cfg      *config.ExperimentConfig
	params   config.Params
	logger   *slog.Logger
	recorder *metrics.Recorder
	stop     chan control.Command
	cleanup  []func()
}

func newSession(ctx context.Context, name string, cfg *config.ExperimentConfig) (*session, error) {
	cfg.Name = name
	cfg.ApplyEnv()

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	runID := "run-" + uuid.New().String()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).
		With("experiment", name, "run", runID)
	slog.SetDefault(logger)

	params, err := config.LoadParams(cfg.ParamsPath)
	if err != nil {
		return nil, err
	}
	if cfg.Generations > 0 {
		params.NbGenerations = cfg.Generations
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	s := &session{
		cfg:      cfg,
		params:   params,
		logger:   logger,
		recorder: metrics.New(name),
		stop:     make(chan control.Command, 1),
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.recorder.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", "err", err)
			}
		}()
		s.cleanup = append(s.cleanup, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", "err", err)
			}
		})
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	if cfg.Console {
		broker := control.NewBroker()
		if err := broker.Subscribe(runID, s.stop); err != nil {
			return nil, err
		}
		go func() {
			if err := control.Listen(ctx, os.Stdin, broker, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("console listener stopped", "err", err)
			}
		}()
		logger.Info("press q then enter to stop after the current generation")
	}

	logger.Info("parameters loaded",
		"generations", params.NbGenerations,
		"roots", params.Mutation.TPG.NbRoots,
		"threads", params.NbThreads,
		"seed", cfg.Seed,
	)
	return s, nil
}

func (s *session) close() {
	for _, fn := range s.cleanup {
		fn()
	}
}

func (s *session) options() []experiment.Option {
	return []experiment.Option{
		experiment.WithOutDir(s.cfg.OutDir),
		experiment.WithStop(s.stop),
		experiment.WithRecorder(s.recorder),
		experiment.WithLogger(s.logger),
	}
}

func (s *session) report(exp *experiment.Experiment, result experiment.Result) {
	status := exp.Status()
	s.logger.Info("training finished",
		"generations", result.Generations,
		"stopped", result.Stopped,
		"best_score", result.BestScore,
		"elapsed", status.EndTime.Sub(status.StartTime),
	)
}

func runMNIST(ctx context.Context, cfg *config.ExperimentConfig) error {
	s, err := newSession(ctx, "mnist", cfg)
	if err != nil {
		return err
	}
	defer s.close()

	store, err := dataset.Load(cfg.DataDir, s.logger)
	if err != nil {
		return err
	}

	set := instructions.MNIST()
	env := environment.NewMNIST(store, cfg.Seed)
	learner := agent.NewLearningAgent(env, set, s.params,
		agent.WithSeed(cfg.Seed),
		agent.WithLogger(s.logger),
	)

	evaluate := experiment.ClassificationEvaluation(
		evaluation.NewEvaluator("MNIST", environment.MNISTNbClasses, s.logger),
		environment.NewMNIST(store, cfg.Seed),
		filepath.Join(cfg.OutDir, cfg.ReportFile),
		cfg.Readable,
		s.recorder,
	)
	exp := experiment.NewExperiment("mnist", learner, set, s.params.NbGenerations,
		append(s.options(), experiment.WithEvaluation(evaluate))...)

	result, err := exp.Run(ctx)
	if err != nil {
		return fmt.Errorf("mnist experiment: %w", err)
	}
	s.report(exp, result)
	return nil
}

func runPendulum(ctx context.Context, cfg *config.ExperimentConfig, actions []float64) error {
	s, err := newSession(ctx, "pendulum", cfg)
	if err != nil {
		return err
	}
	defer s.close()

	set := instructions.Pendulum()
	learner := agent.NewLearningAgent(environment.NewPendulum(actions), set, s.params,
		agent.WithSeed(cfg.Seed),
		agent.WithLogger(s.logger),
	)
	exp := experiment.NewExperiment("pendulum", learner, set, s.params.NbGenerations,
		append(s.options(), experiment.WithValidation())...)

	result, err := exp.Run(ctx)
	if err != nil {
		return fmt.Errorf("pendulum experiment: %w", err)
	}
	s.report(exp, result)
	return nil
}
