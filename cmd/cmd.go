// cmd.go - CLI-Einstiegspunkt fuer vae
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/7blacky7/vae/envconfig"
	"github.com/7blacky7/vae/logutil"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "vae",
		Short:         "Train and sample variational autoencoders",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logutil.FromEnv(cmd.ErrOrStderr()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	trainCmd := newTrainCmd()
	sampleCmd := newSampleCmd()
	showCmd := newShowCmd()
	historyCmd := newHistoryCmd()
	serveCmd := newServeCmd()

	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{trainCmd, sampleCmd, showCmd, historyCmd, serveCmd} {
		switch cmd {
		case trainCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["VAE_DEBUG"],
				envVars["VAE_HOME"],
				envVars["VAE_MODELS"],
				envVars["VAE_DATA"],
				envVars["VAE_SEED"],
				envVars["VAE_PREFETCH"],
				envVars["VAE_CHECKPOINT_DTYPE"],
				envVars["VAE_LEARNING_RATE"],
				envVars["VAE_NOHISTORY"],
			})
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["VAE_DEBUG"],
				envVars["VAE_HOST"],
				envVars["VAE_ORIGINS"],
				envVars["VAE_HOME"],
				envVars["VAE_NOHISTORY"],
			})
		case historyCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["VAE_HOME"]})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["VAE_DEBUG"], envVars["VAE_SEED"]})
		}
	}

	rootCmd.AddCommand(
		trainCmd,
		sampleCmd,
		showCmd,
		historyCmd,
		serveCmd,
	)

	return rootCmd
}
