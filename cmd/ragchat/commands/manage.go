package commands

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/strrl/ragchat/internal/sessions"
)

// NewRenameCommand creates the rename command
func NewRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> <title>",
		Short: "Rename a chat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			id, err := currentIdentity(cfg)
			if err != nil {
				return err
			}
			ctrl := newController(cmd.Context(), cfg, id)
			defer ctrl.Close()

			ctrl.Drain(ctrl.LoadSessions())
			rename, err := ctrl.RenameSession(args[0], args[1])
			if err != nil {
				return err
			}
			ctrl.Drain(rename)
			if n, ok := ctrl.TakeNotice(); ok && n.Err != nil {
				return n.Err
			}
			fmt.Printf("✓ Renamed %s\n", args[0])
			return nil
		},
	}
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a chat and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			id, err := currentIdentity(cfg)
			if err != nil {
				return err
			}
			ctrl := newController(cmd.Context(), cfg, id)
			defer ctrl.Close()

			ctrl.Drain(ctrl.LoadSessions())
			title, found := "", false
			for _, e := range ctrl.Sessions() {
				if e.ID == args[0] {
					title, found = e.Title, true
				}
			}
			if !found {
				return fmt.Errorf("chat %s: %w", args[0], sessions.ErrUnknownSession)
			}

			if !yes {
				confirmed := false
				err := huh.NewConfirm().
					Title(fmt.Sprintf("Delete %q?", title)).
					Affirmative("Delete").
					Negative("Cancel").
					Value(&confirmed).
					Run()
				if err != nil {
					return err
				}
				if !confirmed {
					return nil
				}
			}

			del, err := ctrl.DeleteSession(args[0])
			if err != nil {
				return err
			}
			ctrl.Drain(del)
			if n, ok := ctrl.TakeNotice(); ok && n.Err != nil {
				return n.Err
			}
			fmt.Printf("✓ Deleted %s\n", title)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
