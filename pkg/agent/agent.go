package agent

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/boristopalov/tangle/pkg/config"
	"github.com/boristopalov/tangle/pkg/core"
	"github.com/boristopalov/tangle/pkg/instructions"
	"github.com/boristopalov/tangle/pkg/tpg"
)

var ErrNotInitialized = errors.New("learning agent has no root")

// Result is the mean score of one root over its evaluation iterations
type Result struct {
	Root  *tpg.Vertex
	Score float64
}

type AgentParams struct {
	AgentID string
	Seed    uint64
	Logger  *slog.Logger
}

type AgentOption func(*AgentParams)

func WithAgentID(id string) AgentOption {
	return func(p *AgentParams) {
		p.AgentID = id
	}
}

func WithSeed(seed uint64) AgentOption {
	return func(p *AgentParams) {
		p.Seed = seed
	}
}

func WithLogger(l *slog.Logger) AgentOption {
	return func(p *AgentParams) {
		p.Logger = l
	}
}

func defaultAgentParams() *AgentParams {
	return &AgentParams{
		AgentID: "agent-" + uuid.New().String(),
		Logger:  slog.Default(),
	}
}

// LearningAgent trains a graph of teams on one environment
type LearningAgent struct {
	id     string
	env    core.LearningEnvironment
	set    *instructions.Set
	params config.Params
	seed   uint64
	rng    *rand.Rand
	logger *slog.Logger

	graph   *tpg.Graph
	mutator *tpg.Mutator

	bestRoot  *tpg.Vertex
	bestScore float64
}

func NewLearningAgent(env core.LearningEnvironment, set *instructions.Set, params config.Params, opts ...AgentOption) *LearningAgent {
	p := defaultAgentParams()
	for _, opt := range opts {
		opt(p)
	}
	a := &LearningAgent{
		id:     p.AgentID,
		env:    env,
		set:    set,
		params: params,
		seed:   p.Seed,
		rng:    rand.New(rand.NewPCG(p.Seed, 0)),
		logger: p.Logger.With("agent", p.AgentID),
	}
	a.reset()
	return a
}

func (a *LearningAgent) reset() {
	a.graph = tpg.NewGraph(a.set, a.env.NbActions(), a.params.NbRegisters)
	a.mutator = tpg.NewMutator(a.graph, a.params.Mutation, a.env.DataSources(), a.rng)
	a.bestRoot, a.bestScore = nil, 0
}

func (a *LearningAgent) ID() string {
	return a.id
}

func (a *LearningAgent) Graph() *tpg.Graph {
	return a.graph
}

// Init replaces the graph with nbRoots random root teams
func (a *LearningAgent) Init() {
	a.reset()
	a.mutator.InitRoots(a.params.Mutation.TPG.NbRoots)
	a.logger.Debug("graph initialized", "roots", a.params.Mutation.TPG.NbRoots, "vertices", a.graph.NbVertices())
}

// evaluationSeed is shared by every root of a generation so that all of
// them face the same episodes.
func evaluationSeed(seed, generation uint64, mode core.LearningMode, iteration int) uint64 {
	r := rand.New(rand.NewPCG(seed^generation, uint64(mode)<<32|uint64(iteration)))
	return r.Uint64()
}

func (a *LearningAgent) evaluateRoot(engine *tpg.ExecutionEngine, env core.LearningEnvironment, root *tpg.Vertex, generation uint64, mode core.LearningMode) (float64, error) {
	total := 0.0
	for iter := range a.params.NbIterationsPerPolicyEvaluation {
		env.Reset(evaluationSeed(a.seed, generation, mode, iter), mode)
		for step := 0; step < a.params.MaxNbActionsPerEval && !env.IsTerminal(); step++ {
			path, err := engine.ExecuteFromRoot(root, env.DataSources())
			if err != nil {
				return 0, err
			}
			if err := env.DoAction(uint64(path[len(path)-1].Action)); err != nil {
				return 0, err
			}
		}
		total += env.Score()
	}
	return total / float64(a.params.NbIterationsPerPolicyEvaluation), nil
}

// EvaluateAllRoots scores every root in mode. Roots are evaluated on
// NbThreads clones of the environment when it is copyable, on the
// environment itself otherwise. Results follow the order of Graph().Roots().
func (a *LearningAgent) EvaluateAllRoots(ctx context.Context, generation uint64, mode core.LearningMode) ([]Result, error) {
	roots := a.graph.Roots()
	if len(roots) == 0 {
		return nil, ErrNotInitialized
	}

	nbThreads := a.params.NbThreads
	if !a.env.IsCopyable() {
		nbThreads = 1
	}
	pool := make(chan core.LearningEnvironment, nbThreads)
	if a.env.IsCopyable() {
		for range nbThreads {
			pool <- a.env.Clone()
		}
	} else {
		pool <- a.env
	}

	results := make([]Result, len(roots))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(nbThreads)
	for i, root := range roots {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			env := <-pool
			defer func() { pool <- env }()

			score, err := a.evaluateRoot(tpg.NewExecutionEngine(a.graph), env, root, generation, mode)
			if err != nil {
				return fmt.Errorf("evaluate root %d: %w", root.ID, err)
			}
			results[i] = Result{Root: root, Score: score}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Summarize computes the score spread of results
func Summarize(generation, nbVertices int, results []Result) core.GenerationStats {
	stats := core.GenerationStats{Generation: generation, NbVertices: nbVertices}
	if len(results) == 0 {
		return stats
	}
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
	}
	stats.Min = floats.Min(scores)
	stats.Max = floats.Max(scores)
	stats.Avg = stat.Mean(scores, nil)
	return stats
}

// TrainOneGeneration refills the root population with mutated children,
// evaluates every root in training mode and deletes the worst
// ratioDeletedRoots of them. The best root seen so far is never deleted.
func (a *LearningAgent) TrainOneGeneration(ctx context.Context, generation uint64) (core.GenerationStats, error) {
	if len(a.graph.Roots()) == 0 {
		return core.GenerationStats{}, ErrNotInitialized
	}
	a.mutator.Populate(a.params.Mutation.TPG.NbRoots)

	results, err := a.EvaluateAllRoots(ctx, generation, core.Training)
	if err != nil {
		return core.GenerationStats{}, err
	}
	ranked := slices.Clone(results)
	slices.SortStableFunc(ranked, func(x, y Result) int { return cmp.Compare(y.Score, x.Score) })

	if a.bestRoot == nil || ranked[0].Score > a.bestScore {
		a.bestRoot, a.bestScore = ranked[0].Root, ranked[0].Score
		a.logger.Debug("new best root", "generation", generation, "root", a.bestRoot.ID, "score", a.bestScore)
	}

	nbDelete := int(a.params.RatioDeletedRoots * float64(len(ranked)))
	for i := len(ranked) - 1; i >= 0 && nbDelete > 0; i-- {
		if ranked[i].Root == a.bestRoot {
			continue
		}
		a.graph.RemoveVertex(ranked[i].Root)
		nbDelete--
	}
	return Summarize(int(generation), a.graph.NbVertices(), results), nil
}

// BestRoot returns the best root found by training and its training score
func (a *LearningAgent) BestRoot() (*tpg.Vertex, float64) {
	return a.bestRoot, a.bestScore
}

// KeepBestPolicy removes every team the best root cannot reach
func (a *LearningAgent) KeepBestPolicy() error {
	if a.bestRoot == nil {
		return ErrNotInitialized
	}
	a.graph.KeepReachable(a.bestRoot)
	return nil
}

// Policy returns a decision function over the graph below root
func (a *LearningAgent) Policy(root *tpg.Vertex) core.Policy {
	return tpg.NewPolicy(a.graph, root)
}
