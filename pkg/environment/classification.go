package environment

// ClassificationOutcomeTracker accumulates, for each true class, how often each
// action was chosen. Action i is the attribution of class i.
type ClassificationOutcomeTracker struct {
	table [][]uint64
}

func NewClassificationOutcomeTracker(nbClasses int) ClassificationOutcomeTracker {
	table := make([][]uint64, nbClasses)
	for i := range table {
		table[i] = make([]uint64, nbClasses)
	}
	return ClassificationOutcomeTracker{table: table}
}

func (t *ClassificationOutcomeTracker) NbClasses() int {
	return len(t.table)
}

func (t *ClassificationOutcomeTracker) Reset() {
	for _, row := range t.table {
		clear(row)
	}
}

// Record counts one attribution of actionID to a sample of class truth.
// Both must be below NbClasses.
func (t *ClassificationOutcomeTracker) Record(truth int, actionID uint64) {
	t.table[truth][actionID]++
}

// Score is the fraction of correct attributions recorded since the last Reset,
// 0 when nothing was recorded.
func (t *ClassificationOutcomeTracker) Score() float64 {
	var correct, total uint64
	for truth, row := range t.table {
		for action, n := range row {
			total += n
			if truth == action {
				correct += n
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// Count returns how many samples of class truth were attributed to actionID
func (t *ClassificationOutcomeTracker) Count(truth int, actionID uint64) uint64 {
	return t.table[truth][actionID]
}

func (t ClassificationOutcomeTracker) clone() ClassificationOutcomeTracker {
	c := NewClassificationOutcomeTracker(len(t.table))
	for i, row := range t.table {
		copy(c.table[i], row)
	}
	return c
}
