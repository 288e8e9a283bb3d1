package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/strrl/ragchat/internal/db"
	"github.com/strrl/ragchat/internal/server"
	"github.com/strrl/ragchat/internal/system"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var (
		addr   string
		dbPath string
		ollama string
		echo   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference chat backend",
		Long: `Serve the chat API the client talks to. Chats are stored in DuckDB and
answers come from an Ollama server, or from a built-in echo model with --echo.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			sc := cfg.Server
			if addr != "" {
				sc.Addr = addr
			}
			if dbPath != "" {
				sc.DBPath = dbPath
			}
			if sc.DBPath == "" {
				sc.DBPath = filepath.Join(filepath.Dir(path), "ragchat.duckdb")
			}
			if ollama != "" {
				sc.OllamaURL = ollama
			}

			conn, err := db.Open(sc.DBPath)
			if err != nil {
				return err
			}
			defer conn.Close()

			var completer server.Completer = server.NewOllamaCompleter(sc.OllamaURL, 0)
			if echo {
				completer = server.EchoCompleter{}
			}
			system.Logger.Info("starting chat backend", "db", sc.DBPath, "ollama", sc.OllamaURL, "echo", echo)

			srv := server.New(sc.Addr, server.NewStore(conn), completer, server.NewLimiter(sc.RateLimit, sc.Burst))
			return srv.Start(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to bind (host:port)")
	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB file")
	cmd.Flags().StringVar(&ollama, "ollama-url", "", "Ollama server URL")
	cmd.Flags().BoolVar(&echo, "echo", false, "Answer with the echo model instead of Ollama")
	return cmd
}
