package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/strrl/ragchat/internal/normalize"
)

// NewRenderCommand creates the render command
func NewRenderCommand() *cobra.Command {
	var asHTML bool
	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Normalize model Markdown and render it",
		Long: `Read Markdown from a file (or stdin), repair it the way the chat does,
and print it for the terminal or, with --html, as HTML.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if asHTML {
				fmt.Println(normalize.Render(text))
				return nil
			}
			fmt.Println(terminalRenderer().Render(text))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asHTML, "html", false, "Print HTML instead of terminal output")
	return cmd
}

// NewDebugRenderCommand creates the debug-render command
func NewDebugRenderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "debug-render [file]",
		Short: "Show the output of every normalization rule",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			fmt.Println("Input")
			fmt.Println("==========================================")
			fmt.Println(text)
			for i, step := range normalize.Steps(text) {
				marker := ""
				if !step.Changed {
					marker = " (unchanged)"
				}
				fmt.Printf("\n--- Rule %d: %s%s ---\n%s\n", i+1, step.Rule, marker, step.Output)
			}
			return nil
		},
	}
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
