package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinion-crawler/internal/dispatcher"
)

// ErrAllSessionsFailed is returned when no session completed.
var ErrAllSessionsFailed = errors.New("all sessions failed")

// newRunCmd creates the 'run' subcommand, which executes every configured
// target in parallel.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs the scraper on every configured browser target",
		Long: `Starts one session per configured target at the same time. Each session
prints its articles as it goes and a title table plus repeated-word analysis
when it ends. A failing session does not stop the others.`,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()
	logger.Info("Starting parallel sessions",
		zap.String("run_id", appInstance.RunID()),
		zap.Int("targets", len(appInstance.Targets())))

	outcomes, err := appInstance.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run sessions: %w", err)
	}

	writeOutcomes(cmd.OutOrStdout(), outcomes)
	failed := dispatcher.Failed(outcomes)
	if len(outcomes) > 0 && failed == len(outcomes) {
		return ErrAllSessionsFailed
	}
	logger.Info("All sessions completed", zap.Int("failed", failed))
	return nil
}

func writeOutcomes(w io.Writer, outcomes []dispatcher.Outcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("SESSION RESULTS")
	t.AppendHeader(table.Row{"Session", "Status", "Articles", "Error"})
	for _, o := range outcomes {
		status := string(o.Report.Status)
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		t.AppendRow(table.Row{o.Target.Label(), status, len(o.Report.Rows), errText})
	}
	t.Render()
}
