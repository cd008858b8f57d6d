package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidParams = errors.New("invalid learning parameters")

// Params is the learning-parameter bundle handed to the learning agent. Field
// names follow the params.json files shipped with the experiments; JSON is
// valid YAML so both formats load.
type Params struct {
	NbGenerations                   int      `yaml:"nbGenerations"`
	NbThreads                       int      `yaml:"nbThreads"`
	NbIterationsPerPolicyEvaluation int      `yaml:"nbIterationsPerPolicyEvaluation"`
	MaxNbActionsPerEval             int      `yaml:"maxNbActionsPerEval"`
	RatioDeletedRoots               float64  `yaml:"ratioDeletedRoots"`
	NbRegisters                     int      `yaml:"nbRegisters"`
	Mutation                        Mutation `yaml:"mutation"`
}

type Mutation struct {
	TPG  TPGMutation  `yaml:"tpg"`
	Prog ProgMutation `yaml:"prog"`
}

type TPGMutation struct {
	NbRoots                  int     `yaml:"nbRoots"`
	MaxInitOutgoingEdges     int     `yaml:"maxInitOutgoingEdges"`
	MaxOutgoingEdges         int     `yaml:"maxOutgoingEdges"`
	PEdgeDeletion            float64 `yaml:"pEdgeDeletion"`
	PEdgeAddition            float64 `yaml:"pEdgeAddition"`
	PProgramMutation         float64 `yaml:"pProgramMutation"`
	PEdgeDestinationChange   float64 `yaml:"pEdgeDestinationChange"`
	PEdgeDestinationIsAction float64 `yaml:"pEdgeDestinationIsAction"`
}

type ProgMutation struct {
	MaxProgramSize int     `yaml:"maxProgramSize"`
	PAdd           float64 `yaml:"pAdd"`
	PDelete        float64 `yaml:"pDelete"`
	PMutate        float64 `yaml:"pMutate"`
	PSwap          float64 `yaml:"pSwap"`
}

// DefaultParams returns the parameters of the pendulum experiment
func DefaultParams() Params {
	return Params{
		NbGenerations:                   1200,
		NbThreads:                       4,
		NbIterationsPerPolicyEvaluation: 5,
		MaxNbActionsPerEval:             1000,
		RatioDeletedRoots:               0.5,
		NbRegisters:                     8,
		Mutation: Mutation{
			TPG: TPGMutation{
				NbRoots:                  360,
				MaxInitOutgoingEdges:     3,
				MaxOutgoingEdges:         5,
				PEdgeDeletion:            0.7,
				PEdgeAddition:            0.7,
				PProgramMutation:         0.2,
				PEdgeDestinationChange:   0.1,
				PEdgeDestinationIsAction: 0.5,
			},
			Prog: ProgMutation{
				MaxProgramSize: 20,
				PAdd:           0.5,
				PDelete:        0.5,
				PMutate:        1.0,
				PSwap:          1.0,
			},
		},
	}
}

// LoadParams reads path over the defaults. An empty path or a missing file
// keeps the defaults.
func LoadParams(path string) (Params, error) {
	params := DefaultParams()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return params, fmt.Errorf("read params: %w", err)
		default:
			if err := yaml.Unmarshal(data, &params); err != nil {
				return params, fmt.Errorf("parse params %s: %w", path, err)
			}
		}
	}
	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

func (p Params) Validate() error {
	var problems []string
	if p.NbGenerations < 0 {
		problems = append(problems, "nbGenerations must be >= 0")
	}
	if p.NbThreads < 1 {
		problems = append(problems, "nbThreads must be >= 1")
	}
	if p.NbIterationsPerPolicyEvaluation < 1 {
		problems = append(problems, "nbIterationsPerPolicyEvaluation must be >= 1")
	}
	if p.MaxNbActionsPerEval < 1 {
		problems = append(problems, "maxNbActionsPerEval must be >= 1")
	}
	if p.RatioDeletedRoots < 0 || p.RatioDeletedRoots >= 1 {
		problems = append(problems, "ratioDeletedRoots must be in [0, 1)")
	}
	if p.NbRegisters < 1 {
		problems = append(problems, "nbRegisters must be >= 1")
	}
	tpg := p.Mutation.TPG
	if tpg.NbRoots < 2 {
		problems = append(problems, "mutation.tpg.nbRoots must be >= 2")
	}
	if tpg.MaxInitOutgoingEdges < 2 || tpg.MaxOutgoingEdges < tpg.MaxInitOutgoingEdges {
		problems = append(problems, "mutation.tpg edges need 2 <= maxInitOutgoingEdges <= maxOutgoingEdges")
	}
	if p.Mutation.Prog.MaxProgramSize < 1 {
		problems = append(problems, "mutation.prog.maxProgramSize must be >= 1")
	}
	for name, v := range map[string]float64{
		"pEdgeDeletion":            tpg.PEdgeDeletion,
		"pEdgeAddition":            tpg.PEdgeAddition,
		"pProgramMutation":         tpg.PProgramMutation,
		"pEdgeDestinationChange":   tpg.PEdgeDestinationChange,
		"pEdgeDestinationIsAction": tpg.PEdgeDestinationIsAction,
		"pAdd":                     p.Mutation.Prog.PAdd,
		"pDelete":                  p.Mutation.Prog.PDelete,
		"pMutate":                  p.Mutation.Prog.PMutate,
		"pSwap":                    p.Mutation.Prog.PSwap,
	} {
		if v < 0 || v > 1 {
			problems = append(problems, name+" must be in [0, 1]")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(problems, "; "))
	}
	return nil
}

// ExperimentConfig holds the process-level controls of one run
type ExperimentConfig struct {
	Name        string
	Seed        uint64
	ParamsPath  string
	DataDir     string
	OutDir      string
	ReportFile  string
	Readable    bool
	Generations int // overrides Params.NbGenerations when > 0
	Console     bool
	MetricsAddr string
	LogLevel    string
}

// Environment variables consulted by ApplyEnv
const (
	EnvDataDir  = "TANGLE_DATA_DIR"
	EnvOutDir   = "TANGLE_OUT_DIR"
	EnvParams   = "TANGLE_PARAMS"
	EnvLogLevel = "TANGLE_LOG_LEVEL"
)

// ApplyEnv fills the fields left empty by flags from the environment
func (c *ExperimentConfig) ApplyEnv() {
	for _, f := range []struct {
		dst *string
		env string
	}{
		{&c.DataDir, EnvDataDir},
		{&c.OutDir, EnvOutDir},
		{&c.ParamsPath, EnvParams},
		{&c.LogLevel, EnvLogLevel},
	} {
		if *f.dst == "" {
			*f.dst = os.Getenv(f.env)
		}
	}
	if c.OutDir == "" {
		c.OutDir = "."
	}
}

// ParseLogLevel maps debug, info, warn and error to slog levels. The empty
// string is info.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}
