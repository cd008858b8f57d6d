package environment

import (
	"fmt"

	"github.com/boristopalov/tangle/pkg/core"
	"github.com/boristopalov/tangle/pkg/dataset"
)

// MNISTNbClasses is the number of digit classes and of actions
const MNISTNbClasses = 10

// MNIST presents one image of the shared dataset at a time. Training and
// validation draw samples uniformly at random; testing sweeps the test split
// in order, wrapping around.
type MNIST struct {
	data *dataset.Store
	seed uint64

	mode         core.LearningMode
	currentIndex int
	currentLabel uint8
	image        *Buffer
	gen          generator

	outcomes ClassificationOutcomeTracker
}

var _ core.LearningEnvironment = (*MNIST)(nil)

// NewMNIST returns an environment reading data, ready in training mode. seed
// selects the random stream family of this instance; Reset seeds pick the
// stream within it.
func NewMNIST(data *dataset.Store, seed uint64) *MNIST {
	e := &MNIST{
		data:     data,
		seed:     seed,
		image:    NewBuffer(dataset.ImageRows, dataset.ImageCols),
		outcomes: NewClassificationOutcomeTracker(MNISTNbClasses),
	}
	e.Reset(0, core.Training)
	return e
}

func (e *MNIST) NbActions() int {
	return MNISTNbClasses
}

func (e *MNIST) Reset(seed uint64, mode core.LearningMode) {
	e.outcomes.Reset()
	e.mode = mode
	e.gen = newGenerator(e.seed, seed)

	// -1 so that the first testing sample is index 0
	e.currentIndex = -1
	e.changeCurrentImage()
}

func (e *MNIST) DoAction(actionID uint64) error {
	if actionID >= MNISTNbClasses {
		return fmt.Errorf("mnist: action %d out of range [0, %d)", actionID, MNISTNbClasses)
	}
	e.outcomes.Record(int(e.currentLabel), actionID)
	e.changeCurrentImage()
	return nil
}

func (e *MNIST) changeCurrentImage() {
	size := e.data.Size(e.mode)
	switch e.mode {
	case core.Training, core.Validation:
		e.currentIndex = e.gen.rng.IntN(size)
	default:
		e.currentIndex = (e.currentIndex + 1) % size
	}

	e.image.Load(e.data.Image(e.mode, e.currentIndex))
	e.currentLabel = e.data.Label(e.mode, e.currentIndex)
}

// Score is the fraction of correct attributions since the last Reset
func (e *MNIST) Score() float64 {
	return e.outcomes.Score()
}

func (e *MNIST) IsTerminal() bool {
	return false
}

func (e *MNIST) IsCopyable() bool {
	return true
}

// Clone duplicates the cursor, image buffer, generator and outcome counts.
// The dataset is shared.
func (e *MNIST) Clone() core.LearningEnvironment {
	return &MNIST{
		data:         e.data,
		seed:         e.seed,
		mode:         e.mode,
		currentIndex: e.currentIndex,
		currentLabel: e.currentLabel,
		image:        e.image.clone(),
		gen:          e.gen.clone(),
		outcomes:     e.outcomes.clone(),
	}
}

func (e *MNIST) DataSources() []core.DataSource {
	return []core.DataSource{e.image}
}

// CurrentImageLabel returns the true class of the image currently exposed
func (e *MNIST) CurrentImageLabel() uint8 {
	return e.currentLabel
}

func (e *MNIST) CurrentIndex() int {
	return e.currentIndex
}

func (e *MNIST) Mode() core.LearningMode {
	return e.mode
}

// DatasetSize returns the number of samples swept in the given mode
func (e *MNIST) DatasetSize(mode core.LearningMode) int {
	return e.data.Size(mode)
}

// Outcomes returns a copy of the attributions recorded since the last Reset
func (e *MNIST) Outcomes() ClassificationOutcomeTracker {
	return e.outcomes.clone()
}
