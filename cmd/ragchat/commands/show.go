package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/ragchat/internal/identity"
	"github.com/strrl/ragchat/internal/remote"
	"github.com/strrl/ragchat/internal/sessions"
	"github.com/strrl/ragchat/pkg/models"
)

var showRaw bool

// NewShowCommand creates the show command
func NewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [session-id]",
		Short: "Show chats or a chat's messages without the TUI",
		Long: `Show chats or messages in a non-interactive format.
Without arguments: lists your chats, most recent first
With a session ID: prints that chat's thread`,
		Args: cobra.MaximumNArgs(1),
		RunE: runShow,
	}
	cmd.Flags().BoolVar(&showRaw, "raw", false, "Print answers without Markdown rendering")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	id, err := currentIdentity(cfg)
	if err != nil {
		return err
	}
	client := newClient(cfg)

	if len(args) == 0 {
		return showChats(cmd, client, id)
	}
	return showThread(cmd, client, id, args[0])
}

func showChats(cmd *cobra.Command, client *remote.Client, id identity.Identity) error {
	list, err := client.ListSessions(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to fetch chats: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No chats found")
		return nil
	}

	fmt.Printf("Chats for %s:\n", id)
	fmt.Println("==========")
	for i, cs := range list {
		fmt.Printf("%d. %s\n", i+1, cs.Title)
		fmt.Printf("   ID: %s\n", cs.ID)
		if !cs.UpdatedAt.IsZero() {
			fmt.Printf("   Last Activity: %s\n", cs.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		fmt.Println()
	}
	return nil
}

func showThread(cmd *cobra.Command, client *remote.Client, id identity.Identity, sessionID string) error {
	msgs, err := client.ListMessages(cmd.Context(), id, sessionID)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}
	if len(msgs) == 0 {
		fmt.Printf("No messages found for chat '%s'\n", sessionID)
		return nil
	}
	printMessages(msgs)
	return nil
}

func printMessages(msgs []models.Message) {
	renderer := terminalRenderer()
	for i, msg := range msgs {
		if i > 0 {
			fmt.Println()
		}
		if msg.Role == models.RoleUser {
			fmt.Printf("You:\n%s\n", msg.Content)
			continue
		}
		fmt.Println("Assistant:")
		if showRaw || msg.Content == sessions.LoadFailedText || msg.Content == sessions.AnswerFailedText {
			fmt.Println(msg.Content)
			continue
		}
		fmt.Println(renderer.Render(msg.Content))
	}
}
