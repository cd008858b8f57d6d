package evaluation

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/boristopalov/tangle/pkg/core"
)

// Environment is the part of a classification environment the evaluator drives
type Environment interface {
	Reset(seed uint64, mode core.LearningMode)
	DoAction(actionID uint64) error
	DataSources() []core.DataSource
	CurrentImageLabel() uint8
	DatasetSize(mode core.LearningMode) int
}

const (
	colorDiagonal = "\033[0;32m"
	colorReset    = "\033[0m"
)

// Evaluator runs deterministic test sweeps and writes their confusion matrix
type Evaluator struct {
	domain    string
	nbClasses int
	logger    *slog.Logger
}

func NewEvaluator(domain string, nbClasses int, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		domain:    domain,
		nbClasses: nbClasses,
		logger:    logger,
	}
}

// Evaluate resets env in testing mode with seed 0, lets policy classify every
// test sample exactly once, then writes the result to outputPath.
//
// With humanReadable false a line "<generation> <mean accuracy %>" is appended
// to outputPath, preceded by a header when generation is 0. With humanReadable
// true outputPath is overwritten with the full percentage matrix.
//
// Failing to open outputPath is logged and does not fail the evaluation.
func (ev *Evaluator) Evaluate(policy core.Policy, env Environment, generation int, outputPath string, humanReadable bool) (*ConfusionMatrix, error) {
	m, err := ev.Sweep(policy, env)
	if err != nil {
		return nil, err
	}

	if humanReadable {
		err = writeFile(outputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, func(w io.Writer) error {
			return WriteReport(w, m)
		})
	} else {
		err = writeFile(outputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, func(w io.Writer) error {
			return WriteLogLine(w, ev.domain, generation, m)
		})
	}
	if err != nil {
		ev.logger.Warn("unable to write classification table", "path", outputPath, "err", err)
	}

	ev.logger.Debug("evaluation done",
		"generation", generation,
		"samples", m.Total(),
		"mean_accuracy", m.MeanAccuracy(),
	)
	return m, nil
}

// Sweep tabulates the policy's predictions over one full testing sweep of env
func (ev *Evaluator) Sweep(policy core.Policy, env Environment) (*ConfusionMatrix, error) {
	env.Reset(0, core.Testing)

	m := NewConfusionMatrix(ev.nbClasses)
	steps := env.DatasetSize(core.Testing)
	for i := 0; i < steps; i++ {
		label := int(env.CurrentImageLabel())
		if label >= ev.nbClasses {
			return nil, fmt.Errorf("sample %d: label %d out of range [0, %d)", i, label, ev.nbClasses)
		}

		action, err := policy.Decide(env.DataSources())
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		if action >= uint64(ev.nbClasses) {
			return nil, fmt.Errorf("sample %d: action %d out of range [0, %d)", i, action, ev.nbClasses)
		}

		m.Add(label, int(action))

		if err := env.DoAction(action); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return m, nil
}

// WriteLogLine writes one time-series line of mean accuracy in percent. The
// header is written for generation 0 only.
func WriteLogLine(w io.Writer, domain string, generation int, m *ConfusionMatrix) error {
	if generation == 0 {
		if _, err := fmt.Fprintf(w, " %s training, maxScore: 100%%\n\n Gen    TOT\n", domain); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%4d %6.2f\n", generation, 100*m.MeanAccuracy())
	return err
}

// WriteReport writes the percentage matrix: a header of class indices, one row
// per true class with the diagonal highlighted, and the class sample count.
func WriteReport(w io.Writer, m *ConfusionMatrix) error {
	bw := bufio.NewWriter(w)
	n := m.NbClasses()

	fmt.Fprint(bw, "\t")
	for j := 0; j < n; j++ {
		fmt.Fprintf(bw, "%d\t", j)
	}
	fmt.Fprint(bw, "Nb\n")

	for i := 0; i < n; i++ {
		fmt.Fprintf(bw, "%d\t", i)
		for j := 0; j < n; j++ {
			if i == j {
				fmt.Fprint(bw, colorDiagonal)
			}
			fmt.Fprintf(bw, "%2.1f\t", 100*m.Ratio(i, j))
			if i == j {
				fmt.Fprint(bw, colorReset)
			}
		}
		fmt.Fprintf(bw, "%4d\n", m.Totals[i])
	}
	fmt.Fprint(bw, "\n")
	return bw.Flush()
}

func writeFile(path string, flag int, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
