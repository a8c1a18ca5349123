package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

var (
	chatConversationID string
	chatMessage        string
	chatTitle          string
	chatTUI            bool
	historyLimit       int
)

// runTUI starts the interactive chat screen. Replaced in tests.
var runTUI = tui.Run

// isTerminal reports whether standard output is an interactive terminal.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

var chatCmd = &cobra.Command{
	Use:   "chat [material-id]",
	Short: "Ask questions about a material",
	Long: `Starts a conversation grounded in one material. Each answer is generated
from the excerpts most relevant to the question.

With --message a single question is asked and the command exits.
With --tui the conversation opens in a full-screen terminal interface.
Otherwise questions are read from standard input until "exit".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

var conversationCmd = &cobra.Command{
	Use:   "conversation",
	Short: "Manage conversations",
}

var conversationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your conversations",
	RunE:  runConversationList,
}

var conversationHistoryCmd = &cobra.Command{
	Use:   "history [conversation-id]",
	Short: "Show the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationHistory,
}

var conversationCloseCmd = &cobra.Command{
	Use:   "close [conversation-id]",
	Short: "Close a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationClose,
}

var conversationDeleteCmd = &cobra.Command{
	Use:   "delete [conversation-id]",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationDelete,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversationID, "conversation", "c", "", "continue an existing conversation")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "ask a single question and exit")
	chatCmd.Flags().StringVar(&chatTitle, "title", "", "title for a new conversation")
	chatCmd.Flags().BoolVar(&chatTUI, "tui", false, "open the full-screen chat interface")
	rootCmd.AddCommand(chatCmd)

	conversationHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum number of messages")
	conversationCmd.AddCommand(conversationListCmd)
	conversationCmd.AddCommand(conversationHistoryCmd)
	conversationCmd.AddCommand(conversationCloseCmd)
	conversationCmd.AddCommand(conversationDeleteCmd)
	rootCmd.AddCommand(conversationCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	if conversationService == nil {
		return errors.New("conversation service not configured")
	}
	p, err := principal()
	if err != nil {
		return err
	}
	if chatConversationID == "" && len(args) == 0 {
		return errors.New("a material ID or --conversation is required")
	}

	if chatTUI {
		if chatMessage != "" {
			return errors.New("--tui and --message cannot be used together")
		}
		if !isTerminal() {
			return errors.New("--tui needs an interactive terminal")
		}
		ports := &tui.Ports{
			Principal:      p,
			Conversation:   conversationService,
			ConversationID: chatConversationID,
			Title:          chatTitle,
		}
		if len(args) > 0 {
			ports.MaterialID = args[0]
		}
		return runTUI(cmd.Context(), ports)
	}

	convID := chatConversationID
	if convID == "" {
		conv, err := conversationService.Create(cmd.Context(), p, args[0], chatTitle)
		if err != nil {
			return fmt.Errorf("failed to start conversation: %w", err)
		}
		convID = conv.ID
		cmd.Printf("Conversation: %s\n", convID)
	}

	if chatMessage != "" {
		_, err := ask(cmd, p, convID, chatMessage)
		return err
	}

	cmd.Println(`Ask a question, or type "exit" to finish.`)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		stop, err := ask(cmd, p, convID, text)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// ask runs one turn and prints it. stop reports that no further turns
// will be accepted.
func ask(cmd *cobra.Command, p domain.Principal, convID, text string) (stop bool, err error) {
	turn, err := conversationService.SendMessage(cmd.Context(), p, convID, text)
	if errors.Is(err, domain.ErrQuotaExceeded) && turn != nil {
		printTurn(cmd, turn)
		reason := "no further messages allowed"
		if turn.Usage != nil && turn.Usage.Reason != "" {
			reason = turn.Usage.Reason
		}
		cmd.Printf("\nUsage limit reached: %s\n", reason)
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to send message: %w", err)
	}
	printTurn(cmd, turn)
	return false, nil
}

func printTurn(cmd *cobra.Command, turn *driving.TurnResult) {
	if turn.AssistantMessage != nil {
		cmd.Println()
		cmd.Println(turn.AssistantMessage.Content)
	}
	if len(turn.Context.Chunks) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		printExcerpts(cmd, turn.Context.Chunks)
	}
	if turn.Usage != nil && turn.Usage.DailyTokenLimit > 0 {
		cmd.Printf("\nTokens today: %d/%d\n", turn.Usage.TokensUsedToday, turn.Usage.DailyTokenLimit)
	}
}

func runConversationList(cmd *cobra.Command, _ []string) error {
	if conversationService == nil {
		return errors.New("conversation service not configured")
	}
	p, err := principal()
	if err != nil {
		return err
	}

	convs, err := conversationService.List(cmd.Context(), p)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	if len(convs) == 0 {
		cmd.Println("No conversations found.")
		return nil
	}

	for i := range convs {
		c := convs[i]
		cmd.Printf("  %s\n", c.ID)
		if c.Title != "" {
			cmd.Printf("    Title:    %s\n", c.Title)
		}
		if c.MaterialID != "" {
			cmd.Printf("    Material: %s\n", c.MaterialID)
		}
		cmd.Printf("    Status:   %s (%d messages)\n", c.Status, c.TotalMessages)
		cmd.Printf("    Active:   %s\n", c.LastActivity.Format("2006-01-02 15:04:05"))
		cmd.Println()
	}
	cmd.Printf("Total: %d conversations\n", len(convs))
	return nil
}

func runConversationHistory(cmd *cobra.Command, args []string) error {
	if conversationService == nil {
		return errors.New("conversation service not configured")
	}
	p, err := principal()
	if err != nil {
		return err
	}

	msgs, err := conversationService.History(cmd.Context(), p, args[0], historyLimit)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	if len(msgs) == 0 {
		cmd.Println("No messages yet.")
		return nil
	}

	for i := range msgs {
		role := "You"
		if msgs[i].Role == domain.RoleAssistant {
			role = "Tutor"
		}
		cmd.Printf("%s: %s\n\n", role, msgs[i].Content)
	}
	return nil
}

func runConversationClose(cmd *cobra.Command, args []string) error {
	if conversationService == nil {
		return errors.New("conversation service not configured")
	}
	p, err := principal()
	if err != nil {
		return err
	}

	if err := conversationService.Close(cmd.Context(), p, args[0]); err != nil {
		return fmt.Errorf("failed to close conversation: %w", err)
	}
	cmd.Printf("Closed conversation: %s\n", args[0])
	return nil
}

func runConversationDelete(cmd *cobra.Command, args []string) error {
	if conversationService == nil {
		return errors.New("conversation service not configured")
	}
	p, err := principal()
	if err != nil {
		return err
	}

	if err := conversationService.Delete(cmd.Context(), p, args[0]); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	cmd.Printf("Deleted conversation: %s\n", args[0])
	return nil
}
