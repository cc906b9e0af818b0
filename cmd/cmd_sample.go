// cmd_sample.go - Sample Command
// Hauptfunktionen: SampleHandler
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/7blacky7/vae/checkpoint"
	"github.com/7blacky7/vae/ml"
	"github.com/7blacky7/vae/model/vae"
	"github.com/7blacky7/vae/vision"
)

// SampleHandler - Dekodiert ein Latent-Gitter oder einzelne Punkte aus --z
func SampleHandler(cmd *cobra.Command, args []string) error {
	path, err := checkpointArg(cmd, args)
	if err != nil {
		return err
	}
	m, meta, err := checkpoint.Open(path, newRNG(cmd))
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	var canvas *ml.Tensor
	if zs, _ := cmd.Flags().GetStringArray("z"); len(zs) > 0 {
		canvas, err = decodePoints(m, zs)
	} else {
		n, _ := cmd.Flags().GetInt("grid")
		r, _ := cmd.Flags().GetFloat64("range")
		canvas, err = vae.Manifold(m, n, -r, r)
	}
	if err != nil {
		return err
	}

	if err := (vision.PNGSink{}).Write(canvas, output); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s from %s (step %d)\n", output, path, meta.Step)
	return nil
}

// parseLatent - "0.5,-1" -> [0.5, -1]
func parseLatent(s string, dim int) ([]float32, error) {
	parts := strings.Split(s, ",")
	if len(parts) != dim {
		return nil, fmt.Errorf("latent %q has %d values, model expects %d", s, len(parts), dim)
	}
	z := make([]float32, dim)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("latent %q: %w", s, err)
		}
		z[i] = float32(v)
	}
	return z, nil
}

// decodePoints - Bilder nebeneinander, [h, n*w, c]
func decodePoints(m *vae.Model, zs []string) (*ml.Tensor, error) {
	cfg := m.Config
	z := ml.New(len(zs), cfg.LatentDim)
	for i, s := range zs {
		row, err := parseLatent(s, cfg.LatentDim)
		if err != nil {
			return nil, err
		}
		copy(z.Row(i), row)
	}

	imgs, err := m.Decode(z)
	if err != nil {
		return nil, err
	}
	strip, err := ml.Permute(imgs, 1, 0, 2, 3)
	if err != nil {
		return nil, err
	}
	return strip.Reshape(cfg.Height, len(zs)*cfg.Width, cfg.Channels)
}

// newSampleCmd - Erstellt den sample Command
func newSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample [CHECKPOINT]",
		Short: "Decode latent points into images",
		Example: `  vae sample mnist.safetensors --grid 30 --range 4 -o digits.png
  vae sample --preset scene --z 0,0 --z 1.5,-0.5`,
		Args: cobra.MaximumNArgs(1),
		RunE: SampleHandler,
	}

	cmd.Flags().String("preset", "", "Use the default checkpoint of this preset")
	cmd.Flags().StringP("output", "o", "manifold.png", "Output PNG")
	cmd.Flags().Int("grid", 20, "Manifold grid size")
	cmd.Flags().Float64("range", 3, "Manifold covers [-range, range] on both latent axes")
	cmd.Flags().StringArray("z", nil, "Decode this comma separated latent vector (repeatable)")
	cmd.Flags().Uint64("seed", 0, "Random seed (default $VAE_SEED or time based)")
	return cmd
}
