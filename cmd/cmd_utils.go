// cmd_utils.go - Gemeinsame Hilfsfunktionen der Commands
// Hauptfunktionen: loadConfig, newRNG, openReader, checkpointPath, newTable
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/vae/dataset"
	"github.com/7blacky7/vae/envconfig"
	"github.com/7blacky7/vae/ml"
	"github.com/7blacky7/vae/model/vae"
	"github.com/7blacky7/vae/store"
)

// loadConfig - Preset oder JSON-Datei, danach --mse und VAE_LEARNING_RATE
func loadConfig(cmd *cobra.Command) (vae.Config, error) {
	var cfg vae.Config
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	} else {
		preset, _ := cmd.Flags().GetString("preset")
		var err error
		if cfg, err = vae.Preset(preset); err != nil {
			return cfg, err
		}
	}

	if mse, _ := cmd.Flags().GetBool("mse"); mse {
		cfg.UseMSE()
	}
	if lr := envconfig.LearningRate(); lr > 0 {
		cfg.LearningRate = lr
	}
	return cfg, cfg.Validate()
}

// newRNG - --seed hat Vorrang vor VAE_SEED
func newRNG(cmd *cobra.Command) *ml.RNG {
	seed := envconfig.Seed()
	if cmd.Flags().Changed("seed") {
		seed, _ = cmd.Flags().GetUint64("seed")
	}
	rng := ml.NewRNG(seed)
	slog.Debug("random seed", "seed", rng.Seed())
	return rng
}

// openReader - Leer fuer synthetische Szenen, ein Verzeichnis fuer Bilddateien,
// sonst eine MNIST IDX-Datei. rng gehoert danach allein der Quelle.
func openReader(path string, cfg vae.Config, rng *ml.RNG) (dataset.Reader, error) {
	if path == "" {
		slog.Info("using synthetic scenes", "height", cfg.Height, "width", cfg.Width, "channels", cfg.Channels)
		return dataset.NewSynthetic(cfg.Height, cfg.Width, cfg.Channels, 0, rng), nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return dataset.OpenImageDir(path, cfg.Height, cfg.Width, cfg.Channels, rng)
	}

	images, err := dataset.LoadMNIST(path)
	if err != nil {
		return nil, err
	}
	want := cfg.ImageShape()
	if err := ml.CheckShape(path, want, images.Shape); err != nil {
		return nil, err
	}
	slog.Info("loaded idx images", "path", path, "count", images.Dim(0))
	return dataset.NewMemory(images, rng)
}

// checkpointPath - Default ist $VAE_MODELS/<preset>.safetensors
func checkpointPath(cfg vae.Config, flag string) string {
	if flag != "" {
		return flag
	}
	return filepath.Join(envconfig.Models(), cfg.Name+".safetensors")
}

// openStore - nil, wenn VAE_NOHISTORY gesetzt ist
func openStore() *store.Store {
	if envconfig.NoHistory() {
		return nil
	}
	return &store.Store{}
}

// newTable - schlichte linksbuendige Tabelle ohne Rahmen
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	if len(header) > 0 {
		table.SetHeader(header)
	}
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

var errNoCheckpoint = errors.New("no checkpoint given")

// checkpointArg - erstes Argument oder Preset-Default
func checkpointArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	preset, _ := cmd.Flags().GetString("preset")
	if preset == "" {
		return "", errNoCheckpoint
	}
	cfg, err := vae.Preset(preset)
	if err != nil {
		return "", err
	}
	return checkpointPath(cfg, ""), nil
}
