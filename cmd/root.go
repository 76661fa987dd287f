// Package cmd defines and implements the CLI commands for the pdfworker executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/config"
	"github.com/JakeFAU/pdfworker/internal/report"
	"github.com/JakeFAU/pdfworker/internal/server"
)

// App defines the application interface that commands will use.
type App interface {
	Run(ctx context.Context) error
	Render(ctx context.Context, taskID, userID, templateName string) (report.Result, error)
	Templates() report.TemplateWriter
	Logger() *zap.Logger
	Close(ctx context.Context) error
}

// newApp is the application factory. Tests replace it with a fake.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return server.Build(ctx, &cfg)
}

// session holds the App built for the running command.
type session struct {
	cfgFile string
	app     App
}

func (s *session) close(ctx context.Context) {
	if s.app == nil {
		return
	}
	if err := s.app.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "close application: %v\n", err)
	}
	s.app = nil
}

// newRootCmd creates and configures the root command.
func newRootCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdfworker",
		Short: "Assembles PDF reports from rendered document pages.",
		Long: `pdfworker captures a task's preview page in a headless browser and
assembles it with a generated cover, a table of contents and an optional
history section into a single PDF report.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs after flags are parsed and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd.Context(), s.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			s.app = app
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&s.cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newServeCmd(s))
	cmd.AddCommand(newRenderCmd(s))
	cmd.AddCommand(newTemplatesCmd(s))
	return cmd
}

func execute(ctx context.Context, args []string) error {
	s := &session{}
	root := newRootCmd(s)
	root.SetArgs(args)
	defer s.close(context.WithoutCancel(ctx))
	return root.ExecuteContext(ctx)
}

// Execute is the main entry point.
func Execute() {
	if err := execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "command execution failed: %v\n", err)
		os.Exit(1)
	}
}
