package cli

import (
	"context"
	"encoding/json"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"reelforge/internal/engine"
	"reelforge/internal/logx"
	"reelforge/internal/tui"
)

var (
	renderSeed       int64
	renderNoProgress bool
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the workspace into a finished reel",
		RunE:  runRender,
	}

	cmd.Flags().Int64Var(&renderSeed, "seed", 0, "Seed for deterministic motion synthesis")
	cmd.Flags().BoolVar(&renderNoProgress, "no-progress", false, "Disable interactive progress output")

	return cmd
}

func runRender(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	in, err := loadWorkspace()
	if err != nil {
		return err
	}

	if err := in.Paths.EnsureDirs(); err != nil {
		return err
	}

	logger, logCloser, err := logx.New(in.Paths)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	eng := engine.New(in.Paths, in.Config, nil, nil, logger)

	if renderNoProgress || outputJSON {
		output, err := eng.Render(ctx, in.Template, in.Summary, in.Bundle, engine.Options{Seed: renderSeed})
		if err != nil {
			return err
		}
		if outputJSON {
			return writeRenderJSON(cmd, output)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
		return nil
	}

	phases := make([]string, len(in.Template.Phases))
	for i, phase := range in.Template.Phases {
		phases[i] = phase.Kind
	}

	model := tui.NewRenderModel("reelforge render", phases)
	return tui.RunWithWork(cmd.OutOrStdout(), model, func(send func(tea.Msg)) (string, error) {
		reporter := tui.NewReporter(send)
		return eng.Render(ctx, in.Template, in.Summary, in.Bundle, engine.Options{
			Seed:       renderSeed,
			OnProgress: reporter.OnProgress,
			Reporter:   reporter,
		})
	})
}

func writeRenderJSON(cmd *cobra.Command, output string) error {
	payload := struct {
		Output string `json:"output"`
	}{Output: output}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
