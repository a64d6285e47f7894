package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docvault/docvault/internal/rag"
)

var chatFlags struct {
	session string
	title   string
}

var chatCmd = &cobra.Command{
	Use:   "chat <document-id>",
	Short: "Start an interactive chat session with a document",
	Long: `Open an interactive question-and-answer loop against a document.
Every exchange is persisted, so the conversation can be resumed later with
--session. Type /usage to see the rate-limit budget and /quit to leave.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatFlags.session, "session", "", "resume an existing session")
	chatCmd.Flags().StringVar(&chatFlags.title, "title", "", "title for a new session")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	documentID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document ID %q: %w", args[0], err)
	}

	var sessionID uuid.UUID
	if chatFlags.session != "" {
		sessionID, err = uuid.Parse(chatFlags.session)
		if err != nil {
			return fmt.Errorf("invalid session ID %q: %w", chatFlags.session, err)
		}
		session, err := a.store.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := checkSessionDocument(session, documentID); err != nil {
			return err
		}
	} else {
		session, err := a.store.CreateSession(ctx, documentID, chatFlags.title, a.llm.Model())
		if err != nil {
			return err
		}
		sessionID = session.ID
		cmd.Printf("Session %s started. Type /quit to leave.\n\n", sessionID)
	}

	name, err := a.store.DocumentName(ctx, documentID)
	if err != nil {
		return err
	}
	cmd.Printf("Chatting with %s\n", name)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "/quit" || question == "/exit" {
			break
		}
		if question == "/usage" {
			usage := a.limiter.CurrentUsage()
			cmd.Printf("%d/%d provider calls in the last minute, %d remaining\n",
				usage.InWindow, usage.Limit, usage.Remaining)
			continue
		}

		answer, err := a.engine.Answer(ctx, rag.AnswerRequest{
			SessionID:           sessionID,
			DocumentID:          documentID,
			Question:            question,
			SimilarityThreshold: a.cfg.SimilarityThreshold,
			IncludeCitations:    true,
			IncludeSuggestions:  false,
		})
		if err != nil {
			cmd.PrintErrf("error: %v\n", err)
			continue
		}

		if err := persistExchange(ctx, a, sessionID, question, answer); err != nil {
			return err
		}

		cmd.Println()
		printAnswer(cmd, answer)
		cmd.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}
