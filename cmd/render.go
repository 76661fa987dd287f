package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type renderOptions struct {
	taskID   string
	userID   string
	template string
	out      string
}

func newRenderCmd(s *session) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Renders one task report to a file",
		Long: `Fetches the task from the document host, runs the full assembly
pipeline once and writes the resulting PDF. Token verification is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd, s.app, opts)
		},
	}
	cmd.Flags().StringVar(&opts.taskID, "task", "", "task id to render")
	cmd.Flags().StringVar(&opts.userID, "user", "cli", "user id recorded for the run")
	cmd.Flags().StringVar(&opts.template, "template", "", "preview template name")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "report.pdf", "output file")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func runRender(cmd *cobra.Command, app App, opts *renderOptions) error {
	result, err := app.Render(cmd.Context(), opts.taskID, opts.userID, opts.template)
	if err != nil {
		return fmt.Errorf("render task %s: %w", opts.taskID, err)
	}
	if dir := filepath.Dir(opts.out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(opts.out, result.PDF, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	fields := []zap.Field{
		zap.String("run_id", result.RunID),
		zap.String("out", opts.out),
		zap.Int("pages", result.Pages),
	}
	for _, d := range result.Degradations {
		fields = append(fields, zap.Stringer("degraded", d))
	}
	app.Logger().Info("report written", fields...)
	fmt.Fprintln(cmd.OutOrStdout(), opts.out)
	return nil
}
