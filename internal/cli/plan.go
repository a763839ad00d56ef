package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"reelforge/internal/beatmap"
	"reelforge/internal/ffmpegx"
	"reelforge/internal/logx"
	"reelforge/internal/plan"
)

var planSeed int64

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build and preview the render plan without rendering",
		RunE:  runPlan,
	}

	cmd.Flags().Int64Var(&planSeed, "seed", 0, "Seed for deterministic motion synthesis")

	return cmd
}

func runPlan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	in, err := loadWorkspace()
	if err != nil {
		return err
	}

	builder := beatmap.NewFixedGridBuilder(in.Config.Audio.FallbackBPM, ffmpegx.CmdRunner{}, logx.Discard())
	duration := plan.OutputDuration(in.Config)
	beats, err := builder.Build(ctx, in.Bundle.Audio, duration)
	if err != nil {
		return err
	}

	planner := plan.Planner{Config: in.Config}
	rp, err := planner.Build(in.Template, in.Summary, in.Bundle, beats, planSeed)
	if err != nil {
		return err
	}

	if outputJSON {
		return writePlanJSON(cmd, rp, beats)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Workspace: %s\n", in.Paths.Root)
	fmt.Fprintf(out, "Duration: %.2fs  BPM: %.1f  Cues: %d  Seed: %d\n\n", rp.OutputDuration, beats.BPM, len(beats.CueTimes), rp.Seed)

	segmentRows := make([][]string, 0, len(rp.Items))
	for i, item := range rp.Items {
		segmentRows = append(segmentRows, []string{
			fmt.Sprintf("%d", i+1),
			item.Phase,
			string(item.Kind),
			filepath.Base(item.Source),
			fmt.Sprintf("%.2f", item.Start),
			fmt.Sprintf("%.2f", item.End()),
			filterNames(item.Filters),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Phase", "Kind", "Source", "Start", "End", "Filters"},
		segmentRows, 0, 4, 5))

	overlayRows := make([][]string, 0, len(rp.Overlays))
	for _, o := range rp.Overlays {
		overlayRows = append(overlayRows, []string{
			o.Layer.Kind,
			truncate(o.Layer.Text, 32),
			fmt.Sprintf("%.2f", o.Start),
			fmt.Sprintf("%.2f", o.End()),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Overlay", "Text", "Start", "End"},
		overlayRows, 2, 3))

	return nil
}

func filterNames(filters []plan.Filter) string {
	if len(filters) == 0 {
		return "-"
	}
	names := make([]string, len(filters))
	for i, f := range filters {
		names[i] = f.Name
	}
	return strings.Join(names, ",")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func writePlanJSON(cmd *cobra.Command, rp plan.RenderPlan, beats beatmap.BeatMap) error {
	payload := struct {
		Plan  plan.RenderPlan `json:"plan"`
		Beats beatmap.BeatMap `json:"beats"`
	}{Plan: rp, Beats: beats}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
