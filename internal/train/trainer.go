package train

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"time"

	"github.com/born-ml/gradgraph/internal/nn"
	"github.com/born-ml/gradgraph/internal/optim"
	"github.com/born-ml/gradgraph/internal/serialization"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// EpochStats summarizes one training epoch.
type EpochStats struct {
	Epoch    int           // 1-based
	Loss     float64       // Mean batch loss
	Accuracy float64       // Fraction of training samples classified correctly
	Duration time.Duration // Wall time of the epoch

	// ValAccuracy is the validation accuracy, set when Validated is true.
	ValAccuracy float64
	Validated   bool

	Checkpointed bool // The graph was saved after this epoch
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the progress logger. By default nothing is logged.
func WithLogger(logger *log.Logger) Option {
	return func(t *Trainer) {
		t.logger = logger
	}
}

// WithValidation evaluates ds after every epoch.
func WithValidation(ds *Dataset) Option {
	return func(t *Trainer) {
		t.validation = ds
	}
}

// WithMetadata sets the string metadata stored with every checkpoint.
func WithMetadata(metadata map[string]string) Option {
	return func(t *Trainer) {
		t.metadata = metadata
	}
}

// Trainer runs mini-batch training cycles over a Graph.
//
// Example:
//
//	trainer, err := train.NewTrainer(graph, train.DefaultConfig(), train.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	stats, err := trainer.Fit(ctx, ds)
type Trainer struct {
	graph      *nn.Graph
	cfg        Config
	opt        *optim.SGD
	logger     *log.Logger
	validation *Dataset
	metadata   map[string]string
	step       int
}

// NewTrainer validates cfg and returns a trainer for graph, which must end
// with a loss node.
func NewTrainer(graph *nn.Graph, cfg Config, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if graph.LossNode() == nil {
		return nil, fmt.Errorf("train.NewTrainer: %w", nn.ErrNoLossNode)
	}
	opt, err := optim.NewSGD(cfg.Optim())
	if err != nil {
		return nil, err
	}

	t := &Trainer{
		graph:  graph,
		cfg:    cfg,
		opt:    opt,
		logger: log.New(io.Discard, "", 0),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Fit trains for cfg.Epochs epochs and returns the statistics of every
// completed epoch.
//
// The context is checked between batches; on cancellation Fit returns the
// epochs completed so far with the context error. When CheckpointPath is
// set the graph is saved each time the epoch accuracy beats the best so far.
func (t *Trainer) Fit(ctx context.Context, ds *Dataset) ([]EpochStats, error) {
	var rng *rand.Rand
	if t.cfg.Shuffle {
		rng = rand.New(rand.NewPCG(t.cfg.Seed, t.cfg.Seed))
	}

	t.logger.Printf("training %d samples, %d parameters, batch %d, lr %.3g, l1 %.3g, l2 %.3g",
		ds.NumSamples(), t.graph.NumParams(), t.cfg.BatchSize, t.cfg.LR, t.cfg.L1, t.cfg.L2)

	history := make([]EpochStats, 0, t.cfg.Epochs)
	best := -1.0
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		stats, err := t.epoch(ctx, ds, rng)
		if err != nil {
			return history, err
		}
		stats.Epoch = epoch

		if t.validation != nil {
			stats.ValAccuracy = Evaluate(t.graph, t.validation, t.cfg.BatchSize)
			stats.Validated = true
		}

		if stats.Accuracy > best {
			best = stats.Accuracy
			if t.cfg.CheckpointPath != "" {
				if err := t.checkpoint(stats); err != nil {
					return history, err
				}
				stats.Checkpointed = true
			}
		}

		t.log(stats)
		history = append(history, stats)
	}
	return history, nil
}

// epoch runs one pass over ds in training mode.
func (t *Trainer) epoch(ctx context.Context, ds *Dataset, rng *rand.Rand) (EpochStats, error) {
	start := time.Now()
	t.graph.Train()

	var lossSum float64
	correct, batches := 0, 0
	for _, b := range ds.Batches(t.cfg.BatchSize, rng) {
		if err := ctx.Err(); err != nil {
			return EpochStats{}, err
		}

		if err := t.graph.SetLabels(b.Labels); err != nil {
			return EpochStats{}, err
		}
		t.graph.Flush()
		outs := t.graph.Forward(b.X)
		lossSum += outs[len(outs)-1].Item()
		correct += countCorrect(preLoss(b.X, outs), b.Labels)

		t.graph.Backward()
		if err := t.graph.Step(t.opt); err != nil {
			return EpochStats{}, fmt.Errorf("step %d: %w", t.step, err)
		}
		t.step++
		batches++
	}
	t.graph.Flush()

	return EpochStats{
		Loss:     lossSum / float64(batches),
		Accuracy: float64(correct) / float64(ds.NumSamples()),
		Duration: time.Since(start),
	}, nil
}

func (t *Trainer) checkpoint(stats EpochStats) error {
	ckpt := serialization.CheckpointMeta{
		Epoch:         stats.Epoch,
		Step:          t.step,
		Loss:          stats.Loss,
		Accuracy:      stats.Accuracy,
		OptimizerType: "SGD",
		OptimizerConfig: map[string]float64{
			"lr": t.cfg.LR,
			"l1": t.cfg.L1,
			"l2": t.cfg.L2,
		},
	}
	if err := t.graph.SaveCheckpoint(t.cfg.CheckpointPath, t.metadata, ckpt); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (t *Trainer) log(s EpochStats) {
	msg := fmt.Sprintf("epoch %d loss %.3e acc %.4f", s.Epoch, s.Loss, s.Accuracy)
	if s.Validated {
		msg += fmt.Sprintf(" val %.4f", s.ValAccuracy)
	}
	if s.Checkpointed {
		msg += " (saved)"
	}
	t.logger.Printf("%s in %v", msg, s.Duration.Round(time.Millisecond))
}

// Step returns the number of optimizer steps taken so far.
func (t *Trainer) Step() int { return t.step }

// Evaluate returns the fraction of ds that graph classifies correctly,
// predicting batchSize samples at a time. The graph is left in eval mode.
func Evaluate(graph *nn.Graph, ds *Dataset, batchSize int) float64 {
	if ds.NumSamples() == 0 {
		return 0
	}
	graph.Eval()
	correct := 0
	for _, b := range ds.Batches(batchSize, nil) {
		pred := graph.Predict(b.X)
		for i, p := range pred {
			if p == b.Labels[i] {
				correct++
			}
		}
	}
	return float64(correct) / float64(ds.NumSamples())
}

// preLoss returns the activation feeding the loss node.
func preLoss(x *tensor.Tensor, outs []*tensor.Tensor) *tensor.Tensor {
	if len(outs) < 2 {
		return x
	}
	return outs[len(outs)-2]
}

func countCorrect(scores *tensor.Tensor, labels []int) int {
	correct := 0
	for i, p := range scores.Reshape(-1, scores.Dim(-1)).ArgMaxRows() {
		if p == labels[i] {
			correct++
		}
	}
	return correct
}
