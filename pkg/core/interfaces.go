package core

// DataSource is a read-only numeric buffer exposed to policies as sensory input.
type DataSource interface {
	// Len returns the number of scalar values in the source
	Len() int
	// At returns the value at flat (row-major) index i
	At(i int) float64
	// Dims returns the 2D shape of the source. Flat sources report (1, Len()).
	Dims() (rows, cols int)
}

// LearningEnvironment is the capability set a learning agent drives during training and evaluation
type LearningEnvironment interface {
	// NbActions returns the number of discrete actions accepted by DoAction
	NbActions() int
	// Reset fully reinitializes the per-instance state for a new episode
	Reset(seed uint64, mode LearningMode)
	// DoAction applies an action and advances the environment
	DoAction(actionID uint64) error
	// Score returns the score accumulated since the last Reset
	Score() float64
	// IsTerminal reports whether the current episode has ended
	IsTerminal() bool
	// IsCopyable reports whether Clone may be used for parallel evaluation
	IsCopyable() bool
	// Clone returns an independent copy sharing only read-only data
	Clone() LearningEnvironment
	// DataSources returns the sources a policy reads from
	DataSources() []DataSource
}

// Policy maps the current content of the data sources to an action
type Policy interface {
	Decide(sources []DataSource) (uint64, error)
}
