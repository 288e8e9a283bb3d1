package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strrl/ragchat/internal/config"
	"github.com/strrl/ragchat/internal/sessions"
	"github.com/strrl/ragchat/pkg/models"
)

var (
	askSession  string
	askResearch bool
)

// NewAskCommand creates the ask command
func NewAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Long: `Ask a question without opening the TUI.
The question goes to --session when given, otherwise to a new chat.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}
	cmd.Flags().StringVarP(&askSession, "session", "s", "", "Chat to continue")
	cmd.Flags().BoolVar(&askResearch, "research", false, "Use the research prompt mode")
	cmd.Flags().BoolVar(&showRaw, "raw", false, "Print the answer without Markdown rendering")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	id, err := currentIdentity(cfg)
	if err != nil {
		return err
	}
	if !config.KnownModel(cfg.Model) {
		return fmt.Errorf("unknown model %q (known: %s)", cfg.Model, strings.Join(config.Models, ", "))
	}
	if askResearch {
		cfg.PromptMode = models.PromptModeResearch
	}

	ctrl := newController(cmd.Context(), cfg, id)
	defer ctrl.Close()

	ctrl.Drain(ctrl.LoadSessions())
	if n, ok := ctrl.TakeNotice(); ok && n.Err != nil {
		return n.Err
	}

	if askSession != "" {
		sel, err := ctrl.SelectSession(askSession)
		if err != nil {
			return fmt.Errorf("chat %s: %w", askSession, err)
		}
		ctrl.Drain(sel)
	} else {
		ctrl.Drain(ctrl.CreateSession())
		if n, ok := ctrl.TakeNotice(); ok && n.Err != nil {
			return n.Err
		}
	}

	send, err := ctrl.SendMessage(strings.Join(args, " "))
	if err != nil {
		return err
	}
	ctrl.Drain(send)

	msgs := ctrl.Messages()
	if len(msgs) == 0 {
		return errors.New("no answer received")
	}
	last := msgs[len(msgs)-1]
	if last.Content == sessions.AnswerFailedText {
		return errors.New("the backend could not answer, try again later")
	}
	printMessages([]models.Message{last})
	fmt.Printf("\n(chat %s)\n", ctrl.CurrentID())
	return nil
}
