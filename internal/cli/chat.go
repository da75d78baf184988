package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/phuchau23/fibochat-go/internal/chat"
	"github.com/phuchau23/fibochat-go/internal/models"
	"github.com/phuchau23/fibochat-go/internal/signalr"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chatbot session",
	Long: `Start an interactive chatbot session.

Your messages echo immediately; assistant replies stream in as the hub
delivers them. The connection reconnects on its own and rejoins your class
group after an outage.

Keys: enter sends, ctrl+l clears the session, esc or ctrl+c quits.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := connectClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return runPlainChat(ctx, client)
	}
	return runChatUI(client)
}

// connectClient builds the hub transport and chat client from the saved
// session, starts the connection, and joins the student's group.
func connectClient(ctx context.Context) (*chat.Client, error) {
	session, err := currentSession()
	if err != nil {
		return nil, err
	}

	conn := signalr.New(signalr.Config{
		URL:    hubURL(),
		Token:  tokens.Token,
		Logger: logger,
	})
	client := chat.New(conn, chat.Config{
		UserID: session.User.ID,
		Logger: logger,
	})

	if err := client.Start(ctx); err != nil {
		return nil, err
	}

	groupID, err := apiClient.StudentGroup(ctx, session.User.ID)
	if err != nil {
		// Asks still work ungrouped; group-scoped pushes just won't arrive.
		logger.Warn("chatbot group lookup failed, continuing without join", "error", err)
		return client, nil
	}
	client.SetGroup(ctx, groupID)

	return client, nil
}

// runPlainChat is the line-mode fallback for non-TTY stdout (pipes, CI).
func runPlainChat(ctx context.Context, client *chat.Client) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case u := <-client.Updates():
				if u.Kind == chat.UpdateMessage && u.Message.Role == models.RoleAssistant {
					fmt.Printf("bot> %s\n", u.Message.Content)
				}
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/clear":
			client.ClearMessages()
			continue
		}

		client.AppendUserMessage(line)
		if err := client.Ask(ctx, line, client.ConversationID()); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}
	return scanner.Err()
}
