package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/phuchau23/fibochat-go/internal/chat"
	"github.com/phuchau23/fibochat-go/internal/models"
)

var (
	askConversation string
	askTimeout      time.Duration
	askOutputFile   string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the chatbot a one-shot question",
	Long: `Ask the chatbot a single question and print the reply.

Connects to the hub, joins your class group, sends the question, and waits
for the assistant's response. Without --conversation a new conversation is
started on the server.

Examples:
  fibochat ask "When is the SWP391 final presentation?"
  fibochat ask "Summarize topic 3" --conversation 8f14e45f-ceea-4e5b-a9d1-0b6b8c7e2a10
  fibochat ask "What did the lecturer post today?" -o answer.md`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askConversation, "conversation", "", "continue an existing conversation")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 60*time.Second, "how long to wait for the reply")
	askCmd.Flags().StringVarP(&askOutputFile, "output", "o", "", "write the reply to file")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]
	ctx := context.Background()

	client, err := connectClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Ask(ctx, question, askConversation); err != nil {
		return err
	}

	timer := time.NewTimer(askTimeout)
	defer timer.Stop()

	for {
		select {
		case u := <-client.Updates():
			if u.Kind != chat.UpdateMessage || u.Message.Role != models.RoleAssistant {
				continue
			}
			return writeAnswer(u.Message.Content)
		case <-timer.C:
			return fmt.Errorf("no reply within %s", askTimeout)
		}
	}
}

func writeAnswer(content string) error {
	if askOutputFile != "" {
		if err := os.WriteFile(askOutputFile, []byte(content+"\n"), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Printf("Reply written to %s\n", askOutputFile)
		return nil
	}
	fmt.Println(content)
	return nil
}
