package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boristopalov/tangle/pkg/agent"
	"github.com/boristopalov/tangle/pkg/control"
	"github.com/boristopalov/tangle/pkg/core"
	"github.com/boristopalov/tangle/pkg/instructions"
	"github.com/boristopalov/tangle/pkg/memory"
	"github.com/boristopalov/tangle/pkg/metrics"
	"github.com/boristopalov/tangle/pkg/tpg"
)

const (
	BestDotFile         = "out_best.dot"
	BestStatsFile       = "out_best_stats.md"
	BestPolicyStatsFile = "bestPolicyStats.md"

	historySize = 100
)

// DotFile returns the graph artifact name of a generation
func DotFile(generation int) string {
	return fmt.Sprintf("out_%04d.dot", generation)
}

// Learner is the learning agent as seen by the driver
type Learner interface {
	Init()
	Graph() *tpg.Graph
	EvaluateAllRoots(ctx context.Context, generation uint64, mode core.LearningMode) ([]agent.Result, error)
	TrainOneGeneration(ctx context.Context, generation uint64) (core.GenerationStats, error)
	KeepBestPolicy() error
	BestRoot() (*tpg.Vertex, float64)
	Policy(root *tpg.Vertex) core.Policy
}

// EvaluateFunc measures the best policy after the training step of a generation
type EvaluateFunc func(ctx context.Context, generation int, policy core.Policy) error

type Status struct {
	Running    bool
	Generation int
	StartTime  time.Time
	EndTime    time.Time
}

// Result summarizes a finished run
type Result struct {
	Generations int
	Stopped     bool
	BestScore   float64
	History     []core.GenerationStats
}

type Params struct {
	OutDir   string
	Validate bool
	Evaluate EvaluateFunc
	Stop     <-chan control.Command
	Recorder *metrics.Recorder
	Logger   *slog.Logger
}

type Option func(*Params)

func WithOutDir(dir string) Option {
	return func(p *Params) {
		p.OutDir = dir
	}
}

// WithValidation evaluates every root in validation mode before each
// training step
func WithValidation() Option {
	return func(p *Params) {
		p.Validate = true
	}
}

func WithEvaluation(fn EvaluateFunc) Option {
	return func(p *Params) {
		p.Evaluate = fn
	}
}

// WithStop makes the driver stop at the next generation boundary once a
// Stop command arrives on ch
func WithStop(ch <-chan control.Command) Option {
	return func(p *Params) {
		p.Stop = ch
	}
}

func WithRecorder(r *metrics.Recorder) Option {
	return func(p *Params) {
		p.Recorder = r
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Params) {
		p.Logger = l
	}
}

// Experiment is the generational driver: export, validate, train and
// evaluate each generation, then keep and export the best policy.
type Experiment struct {
	name        string
	learner     Learner
	set         *instructions.Set
	generations int
	params      Params
	history     *memory.Memory[core.GenerationStats]

	mu     sync.RWMutex
	status Status
}

func NewExperiment(name string, learner Learner, set *instructions.Set, generations int, opts ...Option) *Experiment {
	p := Params{OutDir: ".", Logger: slog.Default()}
	for _, opt := range opts {
		opt(&p)
	}
	return &Experiment{
		name:        name,
		learner:     learner,
		set:         set,
		generations: generations,
		params:      p,
		history:     memory.NewMemory[core.GenerationStats](historySize),
	}
}

func (e *Experiment) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *Experiment) path(name string) string {
	return filepath.Join(e.params.OutDir, name)
}

func (e *Experiment) Run(ctx context.Context) (Result, error) {
	e.mu.Lock()
	e.status.Running = true
	e.status.StartTime = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.status.Running = false
		e.status.EndTime = time.Now()
		e.mu.Unlock()
	}()

	defer e.set.Release()

	// a cancelled run still exports the best policy found so far
	result, err := e.runLoop(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return result, err
	}
	e.finish(&result)
	return result, err
}

func (e *Experiment) runLoop(ctx context.Context) (Result, error) {
	logger := e.params.Logger
	e.learner.Init()

	statsFile, err := os.Create(e.path(BestPolicyStatsFile))
	if err != nil {
		logger.Warn("failed to create policy stats file", "err", err)
	} else {
		defer statsFile.Close()
	}

	var result Result
	dot := tpg.NewDotExporter(e.path(DotFile(0)), e.learner.Graph())
	for gen := 0; gen < e.generations; gen++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if e.params.Stop != nil && control.Stopped(e.params.Stop) {
			logger.Info("stopping", "generation", gen)
			result.Stopped = true
			break
		}

		e.mu.Lock()
		e.status.Generation = gen
		e.mu.Unlock()

		dot.SetNewFilePath(e.path(DotFile(gen)))
		if err := dot.Print(); err != nil {
			logger.Warn("failed to export graph", "generation", gen, "err", err)
		}

		attrs := []any{"generation", gen}
		if e.params.Validate {
			start := time.Now()
			results, err := e.learner.EvaluateAllRoots(ctx, uint64(gen), core.Validation)
			if err != nil {
				return result, fmt.Errorf("validation of generation %d: %w", gen, err)
			}
			valid := agent.Summarize(gen, e.learner.Graph().NbVertices(), results)
			if e.params.Recorder != nil {
				e.params.Recorder.ObserveValidation(valid)
			}
			attrs = append(attrs,
				"vertices", valid.NbVertices,
				"min", valid.Min,
				"avg", valid.Avg,
				"max", valid.Max,
				"tvalid", time.Since(start))
		}

		start := time.Now()
		stats, err := e.learner.TrainOneGeneration(ctx, uint64(gen))
		if err != nil {
			return result, fmt.Errorf("training generation %d: %w", gen, err)
		}
		elapsed := time.Since(start)
		e.history.Store(stats)
		if e.params.Recorder != nil {
			e.params.Recorder.ObserveTraining(stats, elapsed)
		}
		if !e.params.Validate {
			attrs = append(attrs,
				"vertices", stats.NbVertices,
				"min", stats.Min,
				"avg", stats.Avg,
				"max", stats.Max)
		}
		logger.Info("generation done", append(attrs, "ttrain", elapsed)...)

		best, _ := e.learner.BestRoot()
		if e.params.Evaluate != nil {
			if err := e.params.Evaluate(ctx, gen, e.learner.Policy(best)); err != nil {
				return result, fmt.Errorf("evaluation of generation %d: %w", gen, err)
			}
		}
		if statsFile != nil {
			if err := e.writeGenerationStats(statsFile, gen, best); err != nil {
				logger.Warn("failed to write policy stats", "generation", gen, "err", err)
			}
		}
		result.Generations++
	}
	return result, nil
}

func (e *Experiment) writeGenerationStats(w io.Writer, gen int, best *tpg.Vertex) error {
	if _, err := fmt.Fprintf(w, "# Generation %d\n\n", gen); err != nil {
		return err
	}
	return tpg.AnalyzePolicy(e.learner.Graph(), best).WriteMarkdown(w)
}

// finish keeps the best policy and exports it
func (e *Experiment) finish(result *Result) {
	logger := e.params.Logger

	result.History = e.history.All()
	if last, ok := e.history.Last(); ok {
		logger.Info("last generation",
			"generation", last.Generation,
			"min", last.Min,
			"avg", last.Avg,
			"max", last.Max)
	}
	best, score := e.learner.BestRoot()
	if best == nil {
		logger.Warn("no trained policy to export")
		return
	}
	result.BestScore = score
	if err := e.learner.KeepBestPolicy(); err != nil {
		logger.Warn("failed to keep best policy", "err", err)
		return
	}
	if err := tpg.NewDotExporter(e.path(BestDotFile), e.learner.Graph()).Print(); err != nil {
		logger.Warn("failed to export best policy", "err", err)
	}

	f, err := os.Create(e.path(BestStatsFile))
	if err != nil {
		logger.Warn("failed to create best policy stats", "err", err)
		return
	}
	defer f.Close()
	if err := tpg.AnalyzePolicy(e.learner.Graph(), best).WriteMarkdown(f); err != nil {
		logger.Warn("failed to write best policy stats", "err", err)
	}
	logger.Info("best policy exported", "experiment", e.name, "score", score, "vertices", e.learner.Graph().NbVertices())
}
