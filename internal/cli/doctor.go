package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"reelforge/internal/config"
	"reelforge/internal/ffmpegx"
	"reelforge/internal/paths"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and workspace configuration",
		RunE:  runDoctor,
	}
	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pp, err := paths.Resolve(workspaceDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(pp.ConfigFile)
	if err != nil {
		return err
	}

	runner := ffmpegx.CmdRunner{}
	tools := []ffmpegx.ToolStatus{
		ffmpegx.Check(ctx, runner, "ffmpeg"),
		ffmpegx.Check(ctx, runner, "ffprobe"),
	}
	results := cfg.Validate()

	if outputJSON {
		payload := struct {
			Tools  []ffmpegx.ToolStatus      `json:"tools"`
			Config []config.ValidationResult `json:"config"`
		}{Tools: tools, Config: results}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	out := cmd.OutOrStdout()

	rows := make([][]string, 0, len(tools))
	for _, tool := range tools {
		state := "ok"
		detail := tool.Version
		if !tool.OK {
			state = "missing"
			detail = tool.Detail
		}
		rows = append(rows, []string{tool.Name, state, tool.Path, detail})
	}
	fmt.Fprintln(out, renderTable([]string{"Tool", "Status", "Path", "Detail"}, rows))

	if len(results) == 0 {
		fmt.Fprintln(out, "config: ok")
	}
	for _, r := range results {
		fmt.Fprintf(out, "config %s: %s\n", r.Level, r.Message)
	}

	if !allOK(tools) || config.HasErrors(results) {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

func allOK(tools []ffmpegx.ToolStatus) bool {
	for _, tool := range tools {
		if !tool.OK {
			return false
		}
	}
	return true
}
