// Package cli provides the command-line interface for fibochat.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phuchau23/fibochat-go/internal/api"
	"github.com/phuchau23/fibochat-go/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Global config and collaborators, wired in PersistentPreRunE
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	tokens     *api.TokenStore
	apiClient  *api.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fibochat",
	Short: "Realtime chatbot client for the FiboChat education platform",
	Long: `Fibochat is a terminal client for the FiboChat education platform's
AI chatbot. It keeps a persistent hub connection, joins your class group,
and streams assistant replies as they arrive.

Log in once with 'fibochat login', then use 'fibochat chat' for an
interactive session or 'fibochat ask' for one-shot questions.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if serverURL != "" {
			cfg.ServerURL = serverURL
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, level)

		tokens = api.NewTokenStore(cfg.DataDir)
		apiClient = api.New(cfg.ServerURL, tokens.Token)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// hubURL converts the REST base URL to the websocket hub endpoint.
func hubURL() string {
	u := cfg.ServerURL
	u = strings.Replace(u, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	return u + cfg.HubPath
}

// currentSession loads the saved login session or fails with a hint.
func currentSession() (*api.Session, error) {
	session, err := tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("%w (fibochat login <email>)", err)
	}
	return session, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "backend base URL (overrides config)")

	// Add subcommands
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
}
