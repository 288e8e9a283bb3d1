package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strrl/ragchat/internal/config"
	"github.com/strrl/ragchat/internal/identity"
	"github.com/strrl/ragchat/internal/sessions"
	"github.com/strrl/ragchat/internal/system"
	"github.com/strrl/ragchat/internal/tui"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ragchat",
		Short: "Chat with a retrieval-augmented assistant from the terminal",
		Long: `ragchat is a terminal client for a RAG chat backend.

Without a sub-command it opens the chat TUI: your chats on the left, the
selected thread on the right, and a composer at the bottom.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			system.SetDebug(flags.debug)
		},
		RunE: runTUI,
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&flags.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/ragchat/config.toml)")
	pf.StringVar(&flags.baseURL, "base-url", "", "Chat backend URL")
	pf.StringVarP(&flags.user, "user", "u", "", "Username to act as")
	pf.StringVarP(&flags.model, "model", "m", "", "Model to ask")

	rootCmd.AddCommand(NewShowCommand())
	rootCmd.AddCommand(NewAskCommand())
	rootCmd.AddCommand(NewRenameCommand())
	rootCmd.AddCommand(NewDeleteCommand())
	rootCmd.AddCommand(NewFeedbackCommand())
	rootCmd.AddCommand(NewExportCommand())
	rootCmd.AddCommand(NewRenderCommand())
	rootCmd.AddCommand(NewDebugRenderCommand())
	rootCmd.AddCommand(NewLoginCommand())
	rootCmd.AddCommand(NewLogoutCommand())
	rootCmd.AddCommand(NewServeCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	// the TUI owns the terminal; logs go to a file
	logPath := cfg.LogFile
	if logPath == "" {
		logPath = filepath.Join(filepath.Dir(path), "ragchat.log")
	}
	closer, err := system.LogToFile(logPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctrl := newController(cmd.Context(), cfg, identity.Identity(cfg.Username))
	defer ctrl.Close()

	err = tui.Run(ctrl, tui.Options{
		OnLogin: func(id identity.Identity) error {
			cfg.Username = id.String()
			return cfg.SaveTo(path)
		},
		OnLogout: func() error {
			cfg.Username = ""
			return cfg.SaveTo(path)
		},
	})
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func newController(ctx context.Context, cfg *config.Config, id identity.Identity) *sessions.Controller {
	return sessions.New(newClient(cfg),
		sessions.WithContext(ctx),
		sessions.WithIdentity(id),
		sessions.WithModel(cfg.Model),
		sessions.WithPromptMode(cfg.PromptMode),
		sessions.WithTitlePrefix(cfg.TitlePrefix),
	)
}
