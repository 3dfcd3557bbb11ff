package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/born-ml/gradgraph/internal/models"
	"github.com/born-ml/gradgraph/internal/train"
)

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	var data dataFlags
	data.register(fs)

	kind := fs.String("arch", models.KindMLP, "Architecture: mlp or cnn")
	hidden := fs.String("hidden", "64", "Hidden widths (mlp) or channel counts (cnn), comma-separated")
	dropout := fs.Float64("dropout", 0, "Dropout probability (0 disables)")
	batchNorm := fs.Bool("batchnorm", false, "Insert batch normalization after every hidden layer")
	loss := fs.String("loss", models.LossNLL, "Loss head: nll (LogSoftmax+NLL) or ce (Softmax+CrossEntropy)")

	cfg := train.DefaultConfig()
	fs.Float64Var(&cfg.LR, "lr", cfg.LR, "Learning rate")
	fs.Float64Var(&cfg.L1, "l1", cfg.L1, "L1 regularization strength")
	fs.Float64Var(&cfg.L2, "l2", cfg.L2, "L2 regularization strength")
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Batch size")
	fs.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "Number of training epochs")
	fs.BoolVar(&cfg.Shuffle, "shuffle", cfg.Shuffle, "Shuffle batches every epoch")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	fs.StringVar(&cfg.CheckpointPath, "checkpoint", "", "Save the best epoch to this file")

	valRatio := fs.Float64("val", 0.2, "Fraction held out for validation (0 disables)")
	out := fs.String("out", "model.ggr", "Output file for the final graph")
	debug := fs.Bool("debug", false, "Trace every node of the first batch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rng := newRNG(cfg.Seed)
	ds, err := data.load(*kind, rng)
	if err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}
	ds = ds.Shuffled(rng)

	trainSet, valSet := ds, (*train.Dataset)(nil)
	if *valRatio > 0 {
		if trainSet, valSet, err = ds.Split(*valRatio); err != nil {
			return err
		}
	}

	hiddenSizes, err := models.ParseInts(*hidden)
	if err != nil {
		return fmt.Errorf("invalid -hidden: %w", err)
	}
	arch := models.Architecture{
		Kind:      *kind,
		Input:     ds.SampleShape(),
		Hidden:    hiddenSizes,
		Classes:   max(ds.NumClasses(), 2),
		Dropout:   *dropout,
		BatchNorm: *batchNorm,
		Loss:      *loss,
	}
	mean, std := trainSet.Stats()
	graph, err := arch.Build(mean, std, rng)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", log.Ltime)
	logger.Printf("graph: %v", graph.NodeNames())
	if *debug {
		graph.SetDebug(logger)
	}

	metadata := arch.Metadata()
	opts := []train.Option{train.WithLogger(logger), train.WithMetadata(metadata)}
	if valSet != nil {
		opts = append(opts, train.WithValidation(valSet))
	}
	trainer, err := train.NewTrainer(graph, cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *debug {
		// Only the first batch is traced.
		first := trainSet.Batches(cfg.BatchSize, nil)[0]
		if err := graph.SetLabels(first.Labels); err != nil {
			return err
		}
		graph.Forward(first.X)
		graph.Backward()
		graph.Flush()
		graph.SetDebug(nil)
	}

	history, err := trainer.Fit(ctx, trainSet)
	if err != nil {
		return err
	}

	graph.Eval()
	if err := graph.Save(*out, metadata); err != nil {
		return err
	}
	last := history[len(history)-1]
	logger.Printf("saved %s (%d parameters), final loss %.3e acc %.4f", *out, graph.NumParams(), last.Loss, last.Accuracy)
	if valSet != nil {
		logger.Printf("validation accuracy %.4f", train.Evaluate(graph, valSet, cfg.BatchSize))
	}
	return nil
}
