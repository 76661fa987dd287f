package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP report service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.app.Run(cmd.Context())
		},
	}
}
