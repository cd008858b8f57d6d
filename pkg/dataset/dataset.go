// Package dataset holds the labelled image splits shared read-only by every
// classification environment of the process.
package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/boristopalov/tangle/internal/idx"
	"github.com/boristopalov/tangle/pkg/core"
)

const (
	ImageRows = 28
	ImageCols = 28
	ImageSize = ImageRows * ImageCols
)

// File names of the MNIST distribution, looked up with and without a .gz suffix
const (
	TrainImagesFile = "train-images-idx3-ubyte"
	TrainLabelsFile = "train-labels-idx1-ubyte"
	TestImagesFile  = "t10k-images-idx3-ubyte"
	TestLabelsFile  = "t10k-labels-idx1-ubyte"
)

var (
	ErrEmptyDataset  = errors.New("dataset: no labels loaded")
	ErrShapeMismatch = errors.New("dataset: shape mismatch")
)

// Store is immutable after construction. Accessors hand out views of the
// underlying slices; callers must not modify them.
type Store struct {
	trainImages [][]float64
	trainLabels []uint8
	testImages  [][]float64
	testLabels  []uint8
}

// New validates the splits and wraps them in a Store
func New(trainImages [][]float64, trainLabels []uint8, testImages [][]float64, testLabels []uint8) (*Store, error) {
	if len(trainLabels) == 0 || len(testLabels) == 0 {
		return nil, ErrEmptyDataset
	}
	if len(trainImages) != len(trainLabels) {
		return nil, fmt.Errorf("%w: %d training images, %d training labels", ErrShapeMismatch, len(trainImages), len(trainLabels))
	}
	if len(testImages) != len(testLabels) {
		return nil, fmt.Errorf("%w: %d test images, %d test labels", ErrShapeMismatch, len(testImages), len(testLabels))
	}
	for _, split := range [][][]float64{trainImages, testImages} {
		for i, img := range split {
			if len(img) != ImageSize {
				return nil, fmt.Errorf("%w: image %d has %d components, want %d", ErrShapeMismatch, i, len(img), ImageSize)
			}
		}
	}
	return &Store{
		trainImages: trainImages,
		trainLabels: trainLabels,
		testImages:  testImages,
		testLabels:  testLabels,
	}, nil
}

// Size returns the number of samples of the split read in the given mode.
// Training reads the training split; validation and testing read the test split.
func (s *Store) Size(mode core.LearningMode) int {
	if mode == core.Training {
		return len(s.trainLabels)
	}
	return len(s.testLabels)
}

// Image returns the i-th image of the split read in the given mode
func (s *Store) Image(mode core.LearningMode, i int) []float64 {
	if mode == core.Training {
		return s.trainImages[i]
	}
	return s.testImages[i]
}

// Label returns the i-th label of the split read in the given mode
func (s *Store) Label(mode core.LearningMode, i int) uint8 {
	if mode == core.Training {
		return s.trainLabels[i]
	}
	return s.testLabels[i]
}

func (s *Store) NbTrain() int { return len(s.trainLabels) }
func (s *Store) NbTest() int  { return len(s.testLabels) }

var (
	once    sync.Once
	shared  *Store
	errLoad error
)

// Load parses the MNIST files found in dir the first time it is called. Every
// later call returns the same Store and error, whatever dir is passed.
func Load(dir string, logger *slog.Logger) (*Store, error) {
	once.Do(func() {
		shared, errLoad = ReadDir(dir)
		if errLoad != nil {
			return
		}
		if logger == nil {
			logger = slog.Default()
		}
		logger.Info("dataset loaded",
			"dir", dir,
			"train", shared.NbTrain(),
			"test", shared.NbTest(),
		)
	})
	return shared, errLoad
}

// ReadDir parses the four MNIST files of dir into a new Store
func ReadDir(dir string) (*Store, error) {
	trainImages, err := readImages(dir, TrainImagesFile)
	if err != nil {
		return nil, err
	}
	trainLabels, err := readLabels(dir, TrainLabelsFile)
	if err != nil {
		return nil, err
	}
	testImages, err := readImages(dir, TestImagesFile)
	if err != nil {
		return nil, err
	}
	testLabels, err := readLabels(dir, TestLabelsFile)
	if err != nil {
		return nil, err
	}

	s, err := New(trainImages, trainLabels, testImages, testLabels)
	if err != nil {
		return nil, fmt.Errorf("initialization of MNIST database failed: %w", err)
	}
	return s, nil
}

func readImages(dir, name string) ([][]float64, error) {
	imgs, err := idx.ReadImages(locate(dir, name))
	if err != nil {
		return nil, err
	}
	if imgs.Rows != ImageRows || imgs.Cols != ImageCols {
		return nil, fmt.Errorf("%w: %s holds %dx%d images", ErrShapeMismatch, name, imgs.Rows, imgs.Cols)
	}
	return imgs.Pixels, nil
}

func readLabels(dir, name string) ([]uint8, error) {
	return idx.ReadLabels(locate(dir, name))
}

// locate prefers the uncompressed file and falls back to the .gz variant
func locate(dir, name string) string {
	plain := filepath.Join(dir, name)
	if _, err := os.Stat(plain); err == nil {
		return plain
	}
	return plain + ".gz"
}
