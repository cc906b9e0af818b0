// cmd_show.go - Show Command
// Hauptfunktionen: ShowHandler, showInfo
package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/7blacky7/vae/checkpoint"
	"github.com/7blacky7/vae/format"
	"github.com/7blacky7/vae/model/vae"
)

// ShowHandler - Zeigt Metadaten und Architektur eines Checkpoints
func ShowHandler(cmd *cobra.Command, args []string) error {
	path, err := checkpointArg(cmd, args)
	if err != nil {
		return err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	m, meta, err := checkpoint.Open(path, newRNG(cmd))
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	return showInfo(cmd.OutOrStdout(), m, meta, fi.Size(), verbose)
}

func showInfo(w io.Writer, m *vae.Model, meta checkpoint.Metadata, size int64, verbose bool) error {
	cfg := m.Config
	fmt.Fprintln(w, "  Model")
	table := newTable(w, nil)
	table.AppendBulk([][]string{
		{"preset", cfg.Name},
		{"image", fmt.Sprintf("%dx%dx%d", cfg.Height, cfg.Width, cfg.Channels)},
		{"latent", strconv.Itoa(cfg.LatentDim)},
		{"reconstruction", string(cfg.Reconstruction)},
		{"optimizer", fmt.Sprintf("%s (lr %g)", cfg.Optimizer, cfg.LearningRate)},
		{"parameters", format.HumanNumber(uint64(m.NumParams()))},
		{"size", format.HumanBytes(size)},
	})
	table.Render()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Training")
	table = newTable(w, nil)
	table.AppendBulk([][]string{
		{"step", strconv.Itoa(meta.Step)},
		{"loss", strconv.FormatFloat(meta.Loss, 'f', 4, 64)},
		{"run", meta.RunID},
		{"created", format.HumanTime(meta.Created, "unknown")},
	})
	table.Render()

	if !verbose {
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Layers")
	enc, err := cfg.EncoderShapes()
	if err != nil {
		return err
	}
	dec, err := cfg.DecoderShapes()
	if err != nil {
		return err
	}
	table = newTable(w, []string{"STAGE", "OUTPUT"})
	for i, s := range enc {
		table.Append([]string{fmt.Sprintf("encoder %d", i), s.String()})
	}
	for i, s := range dec {
		table.Append([]string{fmt.Sprintf("decoder %d", i), s.String()})
	}
	table.Render()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Parameters")
	table = newTable(w, []string{"NAME", "SHAPE", "COUNT"})
	for _, p := range m.Params() {
		table.Append([]string{p.Name, p.Value.Shape.String(), format.HumanNumber(uint64(p.Value.Len()))})
	}
	table.Render()
	return nil
}

// newShowCmd - Erstellt den show Command
func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [CHECKPOINT]",
		Short: "Show information for a checkpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE:  ShowHandler,
	}

	cmd.Flags().String("preset", "", "Use the default checkpoint of this preset")
	cmd.Flags().BoolP("verbose", "v", false, "Show layer shapes and parameters")
	cmd.Flags().Uint64("seed", 0, "Random seed (default $VAE_SEED or time based)")
	return cmd
}
