package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pdf-chat/internal/transcript"
)

var chatCmd = &cobra.Command{
	Use:   "chat [document-id] [message]",
	Short: "Ask a question about a document",
	Long:  `Streams the answer to the terminal as it is generated and appends the exchange to the local transcript of the document.`,
	Args:  cobra.MinimumNArgs(2),
	RunE:  runChat,
}

var historyCmd = &cobra.Command{
	Use:   "history [document-id]",
	Short: "Show the local transcript of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

// historyHTML is a flag for the history command.
var historyHTML string

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

func init() {
	historyCmd.Flags().StringVar(&historyHTML, "html", "", "Write the transcript as an HTML page to this file")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	id := args[0]
	message := strings.Join(args[1:], " ")
	store := newTranscripts()

	question := transcript.Message{Role: transcript.RoleUser, Content: message, Time: time.Now().UTC()}
	var answer strings.Builder
	err := newClient().Chat(cmd.Context(), id, message, func(token string) error {
		answer.WriteString(token)
		cmd.Print(token)
		return nil
	})
	cmd.Println()

	reply := transcript.Message{Role: transcript.RoleAssistant, Content: answer.String(), Time: time.Now().UTC()}
	if err != nil {
		reply.Content = transcript.FailedAnswer
	}
	if saveErr := store.Append(id, question, reply); saveErr != nil {
		log.Error().Err(saveErr).Str("document_id", id).Msg("Error saving transcript")
	}
	if err != nil {
		cmd.Println(transcript.FailedAnswer)
		return fmt.Errorf("chat failed: %w", err)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	id := args[0]
	msgs, err := newTranscripts().Load(id)
	if err != nil {
		return err
	}

	if historyHTML != "" {
		f, err := os.Create(historyHTML)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := transcript.ExportHTML(f, id, msgs); err != nil {
			return fmt.Errorf("failed to render transcript: %w", err)
		}
		cmd.Printf("Wrote %d messages to %s\n", len(msgs), historyHTML)
		return nil
	}

	if len(msgs) == 0 {
		cmd.Printf("No messages for %s\n", id)
		return nil
	}
	for _, m := range msgs {
		label := userStyle.Render("You")
		if m.Role == transcript.RoleAssistant {
			label = assistantStyle.Render("Assistant")
		}
		cmd.Printf("%s: %s\n\n", label, m.Content)
	}
	return nil
}
