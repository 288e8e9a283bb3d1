package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// NewFeedbackCommand creates the feedback command
func NewFeedbackCommand() *cobra.Command {
	var question, answer string
	cmd := &cobra.Command{
		Use:   "feedback <session-id>",
		Short: "Suggest a better question or answer for a chat's latest exchange",
		Long: `Send feedback on the latest answer of a chat.
Without --question and --answer an interactive form asks for them.`,
		Args: cobra.ExactArgs(1),
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
			sel, err := ctrl.SelectSession(args[0])
			if err != nil {
				return fmt.Errorf("chat %s: %w", args[0], err)
			}
			ctrl.Drain(sel)

			if question == "" && answer == "" {
				if err := feedbackForm(&question, &answer); err != nil {
					return err
				}
			}

			submit, err := ctrl.SubmitFeedback(question, answer)
			if err != nil {
				return err
			}
			ctrl.Drain(submit)
			n, _ := ctrl.TakeNotice()
			if n.Err != nil {
				return n.Err
			}
			fmt.Println("✓ " + n.Text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "The question you expected to ask")
	cmd.Flags().StringVarP(&answer, "answer", "a", "", "The answer you expected")
	return cmd
}

func feedbackForm(question, answer *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().Title("Feedback").Description("Tell us what you expected. Either field may be left empty, not both."),
			huh.NewInput().Title("Expected question").Value(question),
			huh.NewText().Title("Expected answer").Value(answer).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" && strings.TrimSpace(*question) == "" {
						return errors.New("enter an expected question or answer")
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeCharm()).WithWidth(72)
	return form.Run()
}
