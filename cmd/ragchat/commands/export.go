package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/strrl/ragchat/internal/export"
	"github.com/strrl/ragchat/pkg/models"
)

// NewExportCommand creates the export command
func NewExportCommand() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a chat transcript to a file",
		Long: `Export a chat to md, json, yaml or html.
Without --output the transcript is written to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := export.NewExporter(format)
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			id, err := currentIdentity(cfg)
			if err != nil {
				return err
			}
			client := newClient(cfg)

			list, err := client.ListSessions(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to fetch chats: %w", err)
			}
			var session *models.ChatSession
			for i := range list {
				if list[i].ID == args[0] {
					session = &list[i]
					break
				}
			}
			if session == nil {
				return fmt.Errorf("chat '%s' not found", args[0])
			}
			msgs, err := client.ListMessages(cmd.Context(), id, session.ID)
			if err != nil {
				return fmt.Errorf("failed to fetch messages: %w", err)
			}

			var w io.Writer = os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			t := &export.Transcript{
				User:       id.String(),
				Session:    *session,
				ExportedAt: time.Now(),
				Messages:   msgs,
			}
			if err := exporter.Export(t, w); err != nil {
				return fmt.Errorf("failed to export: %w", err)
			}
			if output != "" {
				fmt.Fprintf(os.Stderr, "✓ Exported %d messages to %s\n", len(msgs), output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "Export format (md, json, yaml, html)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file")
	return cmd
}
