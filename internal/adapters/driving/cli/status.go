package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/strata-qda/strata-cli/internal/core/domain"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent pipeline runs",
	Long:  `Lists recent pipeline runs with their per-stage outcomes.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 5, "number of runs to show")
	rootCmd.AddCommand(statusCmd)
}

var (
	runHeaderStyle = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Faint(true)

	statusStyles = map[domain.RunStatus]lipgloss.Style{
		domain.RunStatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		domain.RunStatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		domain.RunStatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		domain.RunStatusSkipped:   lipgloss.NewStyle().Faint(true),
	}
)

func styleStatus(status domain.RunStatus) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(string(status))
	}
	return string(status)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if runStore == nil {
		return errors.New("run store not configured")
	}

	ctx := cmd.Context()
	runs, err := runStore.ListRuns(ctx, statusLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		cmd.Println("No runs recorded yet.")
		return nil
	}

	for _, run := range runs {
		header := fmt.Sprintf("%s  %s  %s",
			shortID(run.ID),
			styleStatus(run.Status),
			run.StartedAt.Local().Format("2006-01-02 15:04"))
		cmd.Println(runHeaderStyle.Render(header))
		cmd.Printf("  %s\n", dimStyle.Render(
			fmt.Sprintf("%s  %d records  %s", run.InputPath, run.RecordCount, run.OutputDir)))
		if run.Error != "" {
			cmd.Printf("  error: %s\n", run.Error)
		}

		stageRuns, err := runStore.ListStageRuns(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("listing stage runs: %w", err)
		}
		for _, sr := range stageRuns {
			line := fmt.Sprintf("  %-16s %-9s", sr.Stage, styleStatus(sr.Status))
			if sr.Status != domain.RunStatusSkipped {
				line += fmt.Sprintf(" %3d in %3d out", sr.RecordsIn, sr.RecordsOut)
				if sr.ErrorCount > 0 {
					line += fmt.Sprintf("  %d errors", sr.ErrorCount)
				}
				if d := stageDuration(sr); d > 0 {
					line += "  " + d.Round(time.Second).String()
				}
				if sr.Model != "" {
					line += "  " + dimStyle.Render(sr.Model)
				}
			}
			cmd.Println(line)
		}
		cmd.Println()
	}

	return nil
}

func stageDuration(sr domain.StageRun) time.Duration {
	if sr.StartedAt.IsZero() || sr.CompletedAt.IsZero() {
		return 0
	}
	return sr.CompletedAt.Sub(sr.StartedAt)
}

// shortID trims a uuid to its first group for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
