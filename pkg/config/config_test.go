package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadParams(t *testing.T) {
	dir := t.TempDir()

	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, DefaultParams().Validate())
	})

	t.Run("missing file keeps defaults", func(t *testing.T) {
		p, err := LoadParams(filepath.Join(dir, "absent.json"))
		require.NoError(t, err)
		assert.Equal(t, DefaultParams(), p)
	})

	t.Run("json overrides", func(t *testing.T) {
		path := filepath.Join(dir, "params.json")
		json := `{
  "nbGenerations": 7,
  "nbThreads": 2,
  "mutation": {
    "tpg": {"nbRoots": 40, "pEdgeDeletion": 0.3},
    "prog": {"maxProgramSize": 12}
  }
}`
		require.NoError(t, os.WriteFile(path, []byte(json), 0o644))

		p, err := LoadParams(path)
		require.NoError(t, err)
		assert.Equal(t, 7, p.NbGenerations)
		assert.Equal(t, 2, p.NbThreads)
		assert.Equal(t, 40, p.Mutation.TPG.NbRoots)
		assert.Equal(t, 0.3, p.Mutation.TPG.PEdgeDeletion)
		assert.Equal(t, 12, p.Mutation.Prog.MaxProgramSize)
		assert.Equal(t, DefaultParams().MaxNbActionsPerEval, p.MaxNbActionsPerEval)
	})

	t.Run("yaml overrides", func(t *testing.T) {
		path := filepath.Join(dir, "params.yaml")
		require.NoError(t, os.WriteFile(path, []byte("nbIterationsPerPolicyEvaluation: 3\nratioDeletedRoots: 0.9\n"), 0o644))

		p, err := LoadParams(path)
		require.NoError(t, err)
		assert.Equal(t, 3, p.NbIterationsPerPolicyEvaluation)
		assert.Equal(t, 0.9, p.RatioDeletedRoots)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"nbThreads": 0, "ratioDeletedRoots": 1.5}`), 0o644))

		_, err := LoadParams(path)
		assert.ErrorIs(t, err, ErrInvalidParams)
		assert.ErrorContains(t, err, "nbThreads")
		assert.ErrorContains(t, err, "ratioDeletedRoots")
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"nbThreads": [`), 0o644))

		_, err := LoadParams(path)
		assert.Error(t, err)
	})
}

func TestExperimentConfigApplyEnv(t *testing.T) {
	t.Setenv(EnvDataDir, "/data/mnist")
	t.Setenv(EnvOutDir, "")
	t.Setenv(EnvLogLevel, "debug")

	cfg := ExperimentConfig{ParamsPath: "from-flag.json"}
	cfg.ApplyEnv()
	assert.Equal(t, "/data/mnist", cfg.DataDir)
	assert.Equal(t, ".", cfg.OutDir)
	assert.Equal(t, "from-flag.json", cfg.ParamsPath)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}
