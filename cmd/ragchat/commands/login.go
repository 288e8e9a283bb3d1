package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/strrl/ragchat/internal/identity"
)

// NewLoginCommand creates the login command
func NewLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login [username]",
		Short: "Choose the username your chats are stored under",
		Long: `Save a username to the config file. It only routes requests to your
chats; it is not a password-protected account.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}

			name := cfg.Username
			if len(args) == 1 {
				name = args[0]
			} else {
				err := huh.NewInput().
					Title("Username").
					Description("Letters, digits, _ and - are kept; everything else is dropped.").
					Value(&name).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return errors.New("username cannot be empty")
						}
						return nil
					}).
					Run()
				if err != nil {
					return err
				}
			}

			id := identity.Sanitize(name)
			cfg.Username = id.String()
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			fmt.Printf("✓ Logged in as %s\n", id)
			return nil
		},
	}
}

// NewLogoutCommand creates the logout command
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved username",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Username = ""
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			fmt.Println("✓ Logged out")
			return nil
		},
	}
}
