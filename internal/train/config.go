// Package train drives a Graph through epochs of mini-batch training.
//
// It is a collaborator of the core: batching, shuffling, metrics and
// checkpointing live here, while the Graph only knows flush, forward,
// backward and the optimizer step.
package train

import (
	"errors"
	"fmt"

	"github.com/born-ml/gradgraph/internal/optim"
)

// Common errors.
var (
	ErrInvalidConfig  = errors.New("invalid training config")
	ErrInvalidDataset = errors.New("invalid dataset")
)

// Config holds the training hyperparameters.
type Config struct {
	LR        float64 // Learning rate
	L1        float64 // L1 penalty coefficient
	L2        float64 // L2 penalty coefficient
	BatchSize int     // Samples per optimizer step; the last batch may be smaller
	Epochs    int     // Passes over the dataset
	Shuffle   bool    // Reshuffle the samples every epoch
	Seed      uint64  // Seed of the shuffle order

	// CheckpointPath, when set, receives the graph every time the epoch
	// accuracy improves on the best so far.
	CheckpointPath string
}

// DefaultConfig returns the default hyperparameters.
func DefaultConfig() Config {
	return Config{
		LR:        1e-3,
		L1:        1e-5,
		L2:        1e-5,
		BatchSize: 128,
		Epochs:    10,
		Shuffle:   true,
		Seed:      1,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := c.Optim().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("%w: epochs must be positive, got %d", ErrInvalidConfig, c.Epochs)
	}
	return nil
}

// Optim returns the optimizer part of the configuration.
func (c Config) Optim() optim.Config {
	return optim.Config{LR: c.LR, L1: c.L1, L2: c.L2}
}
