package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/strata-qda/strata-cli/internal/adapters/driven/ai"
	artifact "github.com/strata-qda/strata-cli/internal/adapters/driven/artifact/file"
	"github.com/strata-qda/strata-cli/internal/adapters/driven/config/file"
	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
	"github.com/strata-qda/strata-cli/internal/core/ports/driving"
	"github.com/strata-qda/strata-cli/internal/core/services"
	"github.com/strata-qda/strata-cli/internal/normalisers/interview"
)

var (
	runOutputDir   string
	runResume      bool
	runConcurrency int
	runJSON        bool
)

var runCmd = &cobra.Command{
	Use:   "run [transcript]",
	Short: "Run the coding pipeline on a transcript",
	Long: `Parses a Q:/A: interview transcript and runs the five coding stages
in order, persisting each stage's artifacts to the output directory.
With --resume, stages whose artifacts already exist are not re-run.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&runOutputDir, "output", "o", "", "output directory (default from settings)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "reuse existing stage artifacts")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "concurrent model calls (default from settings)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the final stage result as JSON")
	rootCmd.AddCommand(runCmd)
}

// newPipelineRunner builds the production pipeline. Package variable so
// tests can substitute a scripted runner.
var newPipelineRunner = func(
	settings domain.PipelineSettings,
	artifacts driven.ArtifactStore,
) (driving.PipelineRunner, func(), error) {
	llms, err := ai.NewStageServices(settings)
	if err != nil {
		return nil, nil, err
	}
	p := services.NewPipeline(llms, promptStore, artifacts, runStore, settings)
	return p, func() { ai.CloseStageServices(llms) }, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if configStore == nil || promptStore == nil {
		return errors.New("services not configured")
	}

	settings := file.LoadPipelineSettings(configStore)
	if runConcurrency > 0 {
		settings.Concurrency = runConcurrency
	}
	outputDir := settings.OutputDir
	if runOutputDir != "" {
		outputDir = runOutputDir
	}

	records, err := interview.ParseFile(args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no question/answer blocks found in %s", args[0])
	}

	artifacts, err := artifact.NewArtifactStore(outputDir)
	if err != nil {
		return err
	}

	runner, closeLLMs, err := newPipelineRunner(settings, artifacts)
	if err != nil {
		return fmt.Errorf("configuring model services: %w", err)
	}
	defer closeLLMs()

	cmd.Printf("Coding %d records from %s\n", len(records), args[0])

	results, err := runWithProgress(cmd.Context(), cmd, runner, driving.RunOptions{
		InputPath: args[0],
		Records:   records,
		Resume:    runResume,
	})
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	printRunSummary(cmd, results, outputDir)

	if runJSON && len(results) > 0 {
		data, err := json.MarshalIndent(results[len(results)-1], "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling result: %w", err)
		}
		cmd.Println(string(data))
	}

	return nil
}

// runWithProgress executes the pipeline while polling its progress.
func runWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	runner driving.PipelineRunner,
	opts driving.RunOptions,
) ([]*domain.StageResult, error) {
	type outcome struct {
		results []*domain.StageResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := runner.Run(ctx, opts)
		done <- outcome{results, err}
	}()

	// Poll status every 500ms
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastStage domain.Stage
	lastCount := -1
	for {
		select {
		case out := <-done:
			if lastCount > 0 {
				cmd.Println()
			}
			return out.results, out.err
		case <-ticker.C:
			progress := runner.Progress()
			if progress == nil || !progress.Running {
				continue
			}
			if progress.Stage != lastStage {
				if lastCount > 0 {
					cmd.Println()
				}
				cmd.Printf("Stage: %s\n", progress.Stage.Description())
				lastStage = progress.Stage
				lastCount = -1
			}
			if progress.RecordsProcessed != lastCount {
				cmd.Printf("\r  %d records processed (%d errors)",
					progress.RecordsProcessed, progress.ErrorCount)
				lastCount = progress.RecordsProcessed
			}
		}
	}
}

// printRunSummary reports per-stage outcomes and where the artifacts went.
func printRunSummary(cmd *cobra.Command, results []*domain.StageResult, outputDir string) {
	cmd.Println("Pipeline complete.")
	for _, res := range results {
		line := fmt.Sprintf("  %-16s %d records", res.Meta.Stage, len(res.Records))
		switch res.Meta.Stage {
		case domain.StageOpenCoding:
			line += fmt.Sprintf(", %d codes", len(res.Codes))
		case domain.StageFiltering:
			line += fmt.Sprintf(" retained, %d excluded", len(res.Excluded))
		case domain.StageAxialCoding:
			line += fmt.Sprintf(", %d categories", len(res.Categories))
		case domain.StageSelectiveCoding:
			line += fmt.Sprintf(", core category %q", res.CoreCategory)
		case domain.StageStoryline:
			if res.Storyline != nil {
				line += fmt.Sprintf(", %d anchors", len(res.Storyline.Anchors))
			}
		}
		if res.Meta.ErrorCount > 0 {
			line += fmt.Sprintf(" (%d errors)", res.Meta.ErrorCount)
		}
		cmd.Println(line)

		for _, warning := range res.Warnings {
			cmd.Printf("    warning: %s\n", warning)
		}
	}
	cmd.Printf("Artifacts written to %s\n", outputDir)
}
