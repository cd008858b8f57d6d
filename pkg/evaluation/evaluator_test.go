package evaluation

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/boristopalov/tangle/pkg/core"
	"github.com/boristopalov/tangle/pkg/dataset"
	"github.com/boristopalov/tangle/pkg/environment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constPolicy uint64

func (p constPolicy) Decide([]core.DataSource) (uint64, error) {
	return uint64(p), nil
}

// pixelPolicy answers the value of the first pixel, which the test images set
// to a class index
type pixelPolicy struct {
	calls int
}

func (p *pixelPolicy) Decide(sources []core.DataSource) (uint64, error) {
	p.calls++
	return uint64(sources[0].At(0)), nil
}

type failingPolicy struct{}

func (failingPolicy) Decide([]core.DataSource) (uint64, error) {
	return 0, errors.New("no action")
}

// newEnv builds an MNIST environment whose test images carry guess as their
// first pixel and whose test labels are labels
func newEnv(t *testing.T, labels []uint8, guesses []uint8) *environment.MNIST {
	t.Helper()
	imgs := make([][]float64, len(labels))
	for i := range imgs {
		imgs[i] = make([]float64, dataset.ImageSize)
		imgs[i][0] = float64(guesses[i])
	}
	train := [][]float64{make([]float64, dataset.ImageSize)}
	store, err := dataset.New(train, []uint8{0}, imgs, labels)
	require.NoError(t, err)

	env := environment.NewMNIST(store, 99)
	env.Reset(1234, core.Training)
	return env
}

func TestSweep(t *testing.T) {
	t.Run("constant policy over two balanced classes", func(t *testing.T) {
		env := newEnv(t, []uint8{0, 0, 1, 1}, []uint8{0, 0, 0, 0})
		ev := NewEvaluator("MNIST", 2, nil)

		m, err := ev.Sweep(constPolicy(0), env)
		require.NoError(t, err)
		assert.Equal(t, [][]uint64{{2, 0}, {2, 0}}, m.Counts)
		assert.Equal(t, []uint64{2, 2}, m.Totals)
		assert.Equal(t, []float64{1, 0}, m.ClassAccuracies())
		assert.InDelta(t, 0.5, m.MeanAccuracy(), 1e-12)
	})

	t.Run("every sample is visited once", func(t *testing.T) {
		labels := []uint8{0, 1, 2, 0, 1, 2, 0}
		env := newEnv(t, labels, labels)
		policy := &pixelPolicy{}
		ev := NewEvaluator("MNIST", 3, nil)

		m, err := ev.Sweep(policy, env)
		require.NoError(t, err)
		assert.Equal(t, len(labels), policy.calls)
		assert.Equal(t, []uint64{3, 2, 2}, m.Totals)
		assert.Equal(t, 1.0, m.MeanAccuracy())

		for truth, row := range m.Counts {
			var sum uint64
			for _, n := range row {
				sum += n
			}
			assert.Equal(t, m.Totals[truth], sum, "row %d sums to its total", truth)
		}
	})

	t.Run("mean averages class ratios", func(t *testing.T) {
		env := newEnv(t, []uint8{0, 0, 0, 1}, []uint8{0, 0, 0, 0})
		ev := NewEvaluator("MNIST", 2, nil)

		m, err := ev.Sweep(&pixelPolicy{}, env)
		require.NoError(t, err)

		diagonal := float64(m.Counts[0][0]+m.Counts[1][1]) / float64(m.Total())
		assert.InDelta(t, 0.75, diagonal, 1e-12)
		assert.InDelta(t, 0.5, m.MeanAccuracy(), 1e-12)
	})

	t.Run("class without samples counts as zero", func(t *testing.T) {
		env := newEnv(t, []uint8{0, 1}, []uint8{0, 1})
		ev := NewEvaluator("MNIST", 4, nil)

		m, err := ev.Sweep(&pixelPolicy{}, env)
		require.NoError(t, err)
		assert.Equal(t, 0.0, m.ClassAccuracy(2))
		assert.Equal(t, 0.0, m.Ratio(3, 1))
		assert.InDelta(t, 0.5, m.MeanAccuracy(), 1e-12)
	})

	t.Run("policy errors abort the sweep", func(t *testing.T) {
		env := newEnv(t, []uint8{0, 1}, []uint8{0, 1})
		_, err := NewEvaluator("MNIST", 2, nil).Sweep(failingPolicy{}, env)
		assert.Error(t, err)
	})

	t.Run("out of range action", func(t *testing.T) {
		env := newEnv(t, []uint8{0, 1}, []uint8{0, 1})
		_, err := NewEvaluator("MNIST", 2, nil).Sweep(constPolicy(7), env)
		assert.Error(t, err)
	})
}

func TestEvaluateAppendLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fileClassificationTable.txt")
	env := newEnv(t, []uint8{0, 0, 1, 1}, []uint8{0, 0, 0, 0})
	ev := NewEvaluator("MNIST", 2, nil)

	_, err := ev.Evaluate(constPolicy(0), env, 0, path, false)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, " MNIST training, maxScore: 100%\n\n Gen    TOT\n   0  50.00\n", string(data))

	_, err = ev.Evaluate(&pixelPolicy{}, env, 1, path, false)
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, " MNIST training, maxScore: 100%\n\n Gen    TOT\n   0  50.00\n   1  50.00\n", string(data))

	t.Run("unopenable path is not fatal", func(t *testing.T) {
		m, err := ev.Evaluate(constPolicy(1), env, 2, filepath.Join(dir, "missing", "table.txt"), false)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1}, m.ClassAccuracies())

		after, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, data, after)
	})
}

func TestEvaluateReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("stale content that must disappear\n"), 0o644))

	env := newEnv(t, []uint8{0, 0, 1, 1}, []uint8{0, 0, 0, 0})
	_, err := NewEvaluator("MNIST", 2, nil).Evaluate(constPolicy(0), env, 5, path, true)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "\t0\t1\tNb\n" +
		"0\t\033[0;32m100.0\t\033[0m0.0\t   2\n" +
		"1\t100.0\t\033[0;32m0.0\t\033[0m   2\n" +
		"\n"
	assert.Equal(t, want, string(data))
}

func TestWriteLogLine(t *testing.T) {
	m := NewConfusionMatrix(2)
	m.Add(0, 0)
	m.Add(1, 0)

	var buf bytes.Buffer
	require.NoError(t, WriteLogLine(&buf, "MNIST", 12, m))
	assert.Equal(t, "  12  50.00\n", buf.String())
}
