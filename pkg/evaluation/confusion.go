// Package evaluation replays a trained policy over the full test split and
// reports per-class accuracy as a confusion matrix.
package evaluation

import (
	"gonum.org/v1/gonum/stat"
)

// ConfusionMatrix counts predictions per true class. Rows are true classes,
// columns predicted classes.
type ConfusionMatrix struct {
	Counts [][]uint64
	Totals []uint64
}

func NewConfusionMatrix(nbClasses int) *ConfusionMatrix {
	m := &ConfusionMatrix{
		Counts: make([][]uint64, nbClasses),
		Totals: make([]uint64, nbClasses),
	}
	for i := range m.Counts {
		m.Counts[i] = make([]uint64, nbClasses)
	}
	return m
}

func (m *ConfusionMatrix) NbClasses() int {
	return len(m.Totals)
}

// Add records one sample of class truth predicted as predicted
func (m *ConfusionMatrix) Add(truth, predicted int) {
	m.Counts[truth][predicted]++
	m.Totals[truth]++
}

// Ratio returns the fraction of class truth samples predicted as predicted.
// A class without samples yields 0.
func (m *ConfusionMatrix) Ratio(truth, predicted int) float64 {
	if m.Totals[truth] == 0 {
		return 0
	}
	return float64(m.Counts[truth][predicted]) / float64(m.Totals[truth])
}

// ClassAccuracy is the diagonal ratio of class c
func (m *ConfusionMatrix) ClassAccuracy(c int) float64 {
	return m.Ratio(c, c)
}

func (m *ConfusionMatrix) ClassAccuracies() []float64 {
	acc := make([]float64, m.NbClasses())
	for c := range acc {
		acc[c] = m.ClassAccuracy(c)
	}
	return acc
}

// MeanAccuracy is the unweighted mean of the per-class accuracies: every class
// counts the same whatever its population. Classes without samples count as 0.
func (m *ConfusionMatrix) MeanAccuracy() float64 {
	if m.NbClasses() == 0 {
		return 0
	}
	return stat.Mean(m.ClassAccuracies(), nil)
}

// Total returns the number of recorded samples
func (m *ConfusionMatrix) Total() uint64 {
	var n uint64
	for _, t := range m.Totals {
		n += t
	}
	return n
}
