// cmd_history.go - History Command
// Hauptfunktionen: HistoryHandler
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/7blacky7/vae/envconfig"
	"github.com/7blacky7/vae/format"
	"github.com/7blacky7/vae/store"
)

// HistoryHandler - Listet Trainingslaeufe oder die Schritte eines Laufs
func HistoryHandler(cmd *cobra.Command, args []string) error {
	if envconfig.NoHistory() {
		return errors.New("run history is disabled (VAE_NOHISTORY)")
	}
	st := &store.Store{}
	defer st.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		return showRun(out, st, args[0])
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := st.Runs(limit)
	if err != nil {
		return err
	}

	table := newTable(out, []string{"ID", "PRESET", "STATUS", "STEPS", "LOSS", "CREATED"})
	for _, r := range runs {
		table.Append([]string{
			r.ID,
			r.Preset,
			r.Status,
			strconv.Itoa(r.Steps),
			strconv.FormatFloat(r.LastLoss, 'f', 4, 64),
			format.HumanTime(r.CreatedAt, "Never"),
		})
	}
	table.Render()
	return nil
}

func showRun(w io.Writer, st *store.Store, id string) error {
	run, err := st.Run(id)
	if err != nil {
		return err
	}
	steps, err := st.Steps(id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "run %s (%s): %s, %d steps\n\n", run.ID, run.Preset, run.Status, run.Steps)
	table := newTable(w, []string{"STEP", "LOSS", "RECONSTRUCTION", "KL"})
	for _, s := range steps {
		table.Append([]string{
			strconv.Itoa(s.Step),
			strconv.FormatFloat(s.Loss, 'f', 4, 64),
			strconv.FormatFloat(s.Reconstruction, 'f', 4, 64),
			strconv.FormatFloat(s.KL, 'f', 4, 64),
		})
	}
	table.Render()
	return nil
}

// newHistoryCmd - Erstellt den history Command
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history [RUN_ID]",
		Aliases: []string{"runs"},
		Short:   "List training runs",
		Args:    cobra.MaximumNArgs(1),
		RunE:    HistoryHandler,
	}

	cmd.Flags().Int("limit", 20, "Number of runs to list, 0 lists all")
	return cmd
}
