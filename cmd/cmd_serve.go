// cmd_serve.go - Serve Command
// Hauptfunktionen: RunServer
package cmd

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/7blacky7/vae/checkpoint"
	"github.com/7blacky7/vae/envconfig"
	"github.com/7blacky7/vae/server"
)

// RunServer - Laedt einen Checkpoint und startet die HTTP-API
func RunServer(cmd *cobra.Command, args []string) error {
	path, err := checkpointArg(cmd, args)
	if err != nil {
		return err
	}
	m, meta, err := checkpoint.Open(path, newRNG(cmd))
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	st := openStore()
	if st != nil {
		defer st.Close()
	}
	return server.New(m, meta, st).Serve(cmd.Context(), ln)
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve [CHECKPOINT]",
		Aliases: []string{"start"},
		Short:   "Serve encode, decode and manifold over HTTP",
		Args:    cobra.MaximumNArgs(1),
		RunE:    RunServer,
	}

	cmd.Flags().String("preset", "scene", "Use the default checkpoint of this preset")
	cmd.Flags().Uint64("seed", 0, "Random seed (default $VAE_SEED or time based)")
	return cmd
}
