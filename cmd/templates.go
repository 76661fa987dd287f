package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const (
	docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	odtContentType  = "application/vnd.oasis.opendocument.text"
)

func newTemplatesCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manages cover templates",
	}
	cmd.AddCommand(newTemplatesPushCmd(s))
	return cmd
}

func newTemplatesPushCmd(s *session) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "push <file>",
		Short: "Uploads a .docx or .odt cover template to the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			contentType, err := templateContentType(path)
			if err != nil {
				return err
			}
			ref := name
			if ref == "" {
				ref = filepath.Base(path)
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open template: %w", err)
			}
			defer func() { _ = f.Close() }()

			uri, err := s.app.Templates().Put(cmd.Context(), ref, contentType, f)
			if err != nil {
				return fmt.Errorf("push template %s: %w", ref, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), uri)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "template reference (defaults to the file name)")
	return cmd
}

func templateContentType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return docxContentType, nil
	case ".odt":
		return odtContentType, nil
	default:
		return "", fmt.Errorf("unsupported template type %q", filepath.Ext(path))
	}
}
