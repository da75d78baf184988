package cli

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginPassword string

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Authenticate and save the session",
	Long: `Log in to the FiboChat backend and save the session (access token and
profile) under the data directory. The saved token is read fresh on every
hub connection attempt, so re-logging in takes effect immediately.

Examples:
  fibochat login student@fpt.edu.vn
  fibochat login student@fpt.edu.vn --password "$FIBOCHAT_PASSWORD"`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (prompted when omitted)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	email := args[0]
	ctx := context.Background()

	password := loginPassword
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	}

	session, err := apiClient.Login(ctx, email, password)
	if err != nil {
		return err
	}

	if err := tokens.Save(session); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s (%s)\n", session.User.FullName, session.User.Role)
	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := tokens.Clear(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}
