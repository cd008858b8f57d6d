package core

import "fmt"

// LearningMode selects sampling and bookkeeping semantics of an environment
type LearningMode int

const (
	Training LearningMode = iota
	Validation
	Testing
)

func (m LearningMode) String() string {
	switch m {
	case Training:
		return "training"
	case Validation:
		return "validation"
	case Testing:
		return "testing"
	default:
		return fmt.Sprintf("LearningMode(%d)", int(m))
	}
}

// GenerationStats summarizes one generation of training
type GenerationStats struct {
	Generation int
	NbVertices int
	Min        float64
	Avg        float64
	Max        float64
}
