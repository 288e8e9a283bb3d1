package commands

import (
	"errors"
	"os"

	"github.com/charmbracelet/x/term"

	"github.com/strrl/ragchat/internal/config"
	"github.com/strrl/ragchat/internal/identity"
	"github.com/strrl/ragchat/internal/normalize"
	"github.com/strrl/ragchat/internal/remote"
)

var flags struct {
	debug      bool
	configPath string
	baseURL    string
	user       string
	model      string
}

var errNotLoggedIn = errors.New("no username set, run `ragchat login` or pass --user")

// loadConfig reads the config file and applies command-line overrides.
// It also returns the path the config lives at.
func loadConfig() (*config.Config, string, error) {
	path := flags.configPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return nil, "", err
		}
		path = p
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, "", err
	}
	if flags.baseURL != "" {
		cfg.BaseURL = flags.baseURL
	}
	if flags.user != "" {
		cfg.Username = flags.user
	}
	if flags.model != "" {
		cfg.Model = flags.model
	}
	return cfg, path, nil
}

func newClient(cfg *config.Config) *remote.Client {
	return remote.NewClient(cfg.BaseURL, cfg.Timeout.Duration)
}

// currentIdentity returns the configured username, sanitized.
func currentIdentity(cfg *config.Config) (identity.Identity, error) {
	if cfg.Username == "" {
		return "", errNotLoggedIn
	}
	return identity.Sanitize(cfg.Username), nil
}

// terminalRenderer renders Markdown for stdout, sized to the terminal.
func terminalRenderer() *normalize.Terminal {
	width := 80
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		width = w - 2
	}
	r, err := normalize.NewTerminal(width)
	if err != nil {
		return nil
	}
	return r
}
