package experiment

import (
	"context"

	"github.com/boristopalov/tangle/pkg/core"
	"github.com/boristopalov/tangle/pkg/evaluation"
	"github.com/boristopalov/tangle/pkg/metrics"
)

// ClassificationEvaluation runs a confusion-matrix sweep of env for the
// policy of each generation and records its mean accuracy. recorder may be
// nil.
func ClassificationEvaluation(ev *evaluation.Evaluator, env evaluation.Environment, outputPath string, humanReadable bool, recorder *metrics.Recorder) EvaluateFunc {
	return func(_ context.Context, generation int, policy core.Policy) error {
		m, err := ev.Evaluate(policy, env, generation, outputPath, humanReadable)
		if err != nil {
			return err
		}
		if recorder != nil {
			recorder.ObserveAccuracy(m.MeanAccuracy())
		}
		return nil
	}
}
