// cmd_train.go - Train Command
// Hauptfunktionen: TrainHandler
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/7blacky7/vae/checkpoint"
	"github.com/7blacky7/vae/dataset"
	"github.com/7blacky7/vae/envconfig"
	"github.com/7blacky7/vae/format"
	"github.com/7blacky7/vae/ml"
	"github.com/7blacky7/vae/ml/optim"
	"github.com/7blacky7/vae/model/vae"
	"github.com/7blacky7/vae/train"
	"github.com/7blacky7/vae/vision"
)

// TrainHandler - Trainiert ein Modell oder laedt mit --weights fertige Gewichte
func TrainHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rng := newRNG(cmd)

	m, err := vae.New(cfg, rng)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "model %s: %s parameters, image %v, latent %d\n", cfg.Name, format.HumanNumber(uint64(m.NumParams())), cfg.ImageShape()[1:], cfg.LatentDim)

	if weights, _ := cmd.Flags().GetString("weights"); weights != "" {
		meta, err := checkpoint.Load(weights, m)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "loaded %s (step %d, loss %.4f)\n", weights, meta.Step, meta.Loss)
	} else if err := runTraining(cmd, m, rng); err != nil {
		return err
	}

	return writeManifold(cmd, m)
}

func runTraining(cmd *cobra.Command, m *vae.Model, rng *ml.RNG) error {
	flags := cmd.Flags()
	cfg := m.Config

	dtypeName, _ := flags.GetString("dtype")
	if dtypeName == "" {
		dtypeName = envconfig.CheckpointDType()
	}
	dtype, err := ml.ParseDType(dtypeName)
	if err != nil {
		return err
	}

	opt, err := optim.New(cfg.Optimizer, cfg.LearningRate)
	if err != nil {
		return err
	}

	data, _ := flags.GetString("data")
	if data == "" {
		data = envconfig.Data()
	}
	// die Quelle laeuft im Prefetcher, der Sampler des Modells im Trainer
	src, err := openReader(data, cfg, rng.Split())
	if err != nil {
		return err
	}

	steps, _ := flags.GetInt("steps")
	batchSize, _ := flags.GetInt("batch-size")
	logEvery, _ := flags.GetInt("log-every")
	ckptEvery, _ := flags.GetInt("checkpoint-every")
	tolerance, _ := flags.GetFloat64("tolerance")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pf := dataset.NewPrefetcher(ctx, src, batchSize, int(envconfig.Prefetch()))
	defer pf.Close()

	tr, err := train.New(m, pf, opt,
		train.WithSteps(steps),
		train.WithBatchSize(batchSize),
		train.WithLogEvery(logEvery),
		train.WithCheckpointEvery(ckptEvery),
		train.WithTolerance(tolerance),
	)
	if err != nil {
		return err
	}

	output, _ := flags.GetString("output")
	output = checkpointPath(cfg, output)
	tr.Checkpointer = train.FileCheckpointer{Path: output, DType: dtype}

	if st := openStore(); st != nil {
		defer st.Close()
		tr.Recorder = st
	}

	summary, err := tr.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %s after %d steps in %s\n", summary.RunID, summary.State, summary.Steps, format.HumanDuration(summary.Duration))
	fmt.Fprintf(out, "loss %.4f (reconstruction %.4f, kl %.4f), mean %.4f, std %.4f\n",
		summary.Last.Total, summary.Last.Reconstruction, summary.Last.KL, summary.Mean, summary.StdDev)
	fmt.Fprintf(out, "checkpoint written to %s\n", output)
	return nil
}

// writeManifold - schreibt das Latent-Gitter, wenn --manifold gesetzt ist
func writeManifold(cmd *cobra.Command, m *vae.Model) error {
	path, _ := cmd.Flags().GetString("manifold")
	if path == "" {
		return nil
	}
	n, _ := cmd.Flags().GetInt("grid")
	r, _ := cmd.Flags().GetFloat64("range")

	canvas, err := vae.Manifold(m, n, -r, r)
	if err != nil {
		return err
	}
	var sink vision.Sink = vision.PNGSink{}
	if err := sink.Write(canvas, filepath.Clean(path)); err != nil {
		return err
	}
	slog.Debug("manifold", "grid", n, "range", r)
	return nil
}

// newTrainCmd - Erstellt den train Command
func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model",
		Long: `Train a variational autoencoder on synthetic scenes, a directory of images
or an MNIST idx file. The checkpoint is written atomically at every
checkpoint interval and at the end of the run.`,
		Example: `  vae train --preset mnist --data train-images-idx3-ubyte.gz --steps 5000
  vae train --preset scene --manifold manifold.png
  vae train --preset mnist --weights mnist.safetensors --manifold digits.png`,
		Args: cobra.ExactArgs(0),
		RunE: TrainHandler,
	}

	cmd.Flags().String("preset", "scene", "Architecture preset (scene, mnist)")
	cmd.Flags().String("config", "", "JSON model config, overrides --preset")
	cmd.Flags().BoolP("mse", "m", false, "Use mean squared error instead of binary cross entropy")
	cmd.Flags().StringP("weights", "w", "", "Load weights instead of training")
	cmd.Flags().String("data", "", "Image directory or idx file (default synthetic scenes)")
	cmd.Flags().StringP("output", "o", "", "Checkpoint path (default $VAE_MODELS/<preset>.safetensors)")
	cmd.Flags().String("dtype", "", "Checkpoint storage type: f32, f16, bf16")
	cmd.Flags().Int("steps", 1000, "Maximum number of optimizer steps")
	cmd.Flags().Int("batch-size", 36, "Images per step")
	cmd.Flags().Int("log-every", 100, "Log and convergence check interval")
	cmd.Flags().Int("checkpoint-every", 0, "Checkpoint interval, 0 writes only at the end")
	cmd.Flags().Float64("tolerance", 0, "Stop when the smoothed loss changes less than this fraction between log intervals")
	cmd.Flags().Uint64("seed", 0, "Random seed (default $VAE_SEED or time based)")
	cmd.Flags().String("manifold", "", "Write a latent manifold PNG after training")
	cmd.Flags().Int("grid", 20, "Manifold grid size")
	cmd.Flags().Float64("range", 3, "Manifold covers [-range, range] on both latent axes")
	return cmd
}
