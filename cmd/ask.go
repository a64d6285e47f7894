package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docvault/docvault/internal/provider"
	"github.com/docvault/docvault/internal/rag"
	"github.com/docvault/docvault/internal/store"
)

var askFlags struct {
	docs          []string
	session       string
	topK          int
	threshold     float64
	noCitations   bool
	suggestions   bool
	maxTokens     int
	contextWindow int
}

var askCmd = &cobra.Command{
	Use:   "ask [document-id] <question>",
	Short: "Ask a question about a document",
	Long: `Ask a single question about a document and print the answer with
citations.

With --docs, the question is answered across several documents at once and
the document-id argument is omitted:

  docvault ask --docs id1,id2 "How do the proposals differ?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringSliceVar(&askFlags.docs, "docs", nil, "answer across multiple documents (comma-separated IDs)")
	askCmd.Flags().StringVar(&askFlags.session, "session", "", "continue an existing chat session")
	askCmd.Flags().IntVar(&askFlags.topK, "top-k", rag.DefaultTopK, "number of chunks to retrieve")
	askCmd.Flags().Float64Var(&askFlags.threshold, "threshold", rag.DefaultSimilarityThreshold, "minimum similarity score")
	askCmd.Flags().BoolVar(&askFlags.noCitations, "no-citations", false, "omit citations from the output")
	askCmd.Flags().BoolVar(&askFlags.suggestions, "suggestions", false, "suggest follow-up questions")
	askCmd.Flags().IntVar(&askFlags.maxTokens, "max-tokens", rag.DefaultMaxResponseTokens, "response token limit")
	askCmd.Flags().IntVar(&askFlags.contextWindow, "context-window", rag.DefaultContextWindow, "conversation exchanges to include")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if len(askFlags.docs) > 0 {
		return runAskMulti(cmd, a, strings.Join(args, " "))
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: docvault ask <document-id> <question>")
	}

	documentID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document ID %q: %w", args[0], err)
	}
	question := strings.Join(args[1:], " ")

	var sessionID uuid.UUID
	if askFlags.session != "" {
		sessionID, err = uuid.Parse(askFlags.session)
		if err != nil {
			return fmt.Errorf("invalid session ID %q: %w", askFlags.session, err)
		}
		session, err := a.store.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := checkSessionDocument(session, documentID); err != nil {
			return err
		}
	}

	answer, err := a.engine.Answer(ctx, rag.AnswerRequest{
		SessionID:           sessionID,
		DocumentID:          documentID,
		Question:            question,
		NumChunks:           askFlags.topK,
		SimilarityThreshold: askFlags.threshold,
		IncludeCitations:    !askFlags.noCitations,
		IncludeSuggestions:  askFlags.suggestions,
		MaxResponseTokens:   askFlags.maxTokens,
		ContextWindow:       askFlags.contextWindow,
	})
	if err != nil {
		return err
	}

	if sessionID != uuid.Nil {
		if err := persistExchange(ctx, a, sessionID, question, answer); err != nil {
			return err
		}
	}

	printAnswer(cmd, answer)
	return nil
}

func runAskMulti(cmd *cobra.Command, a *app, question string) error {
	ctx := cmd.Context()

	documentIDs := make([]uuid.UUID, 0, len(askFlags.docs))
	for _, raw := range askFlags.docs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid document ID %q: %w", raw, err)
		}
		documentIDs = append(documentIDs, id)
	}

	answer, err := a.engine.AnswerMulti(ctx, rag.MultiAnswerRequest{
		DocumentIDs:         documentIDs,
		Question:            question,
		SimilarityThreshold: askFlags.threshold,
		MaxResponseTokens:   askFlags.maxTokens,
	})
	if err != nil {
		return err
	}

	cmd.Println(answer.Text)
	printCitations(cmd, answer.Citations)
	cmd.Printf("\n%d of %d documents used · %s\n",
		len(answer.DocumentsUsed), len(documentIDs), answer.ResponseTime.Round(timePrecision))
	return nil
}

// checkSessionDocument rejects a session that belongs to a different
// document, so one document's conversation never feeds another's prompt.
func checkSessionDocument(session *store.Session, documentID uuid.UUID) error {
	if session.DocumentID != documentID {
		return fmt.Errorf("session %s belongs to document %s", session.ID, session.DocumentID)
	}
	return nil
}

// persistExchange appends the question and answer to the session.
func persistExchange(ctx context.Context, a *app, sessionID uuid.UUID, question string, answer *rag.Answer) error {
	err := a.store.AppendMessages(ctx, sessionID, []*store.Message{
		{Role: provider.RoleUser, Content: question},
		{Role: provider.RoleAssistant, Content: answer.Text, Citations: answer.Citations},
	})
	if err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

const timePrecision = 10 * time.Millisecond

func printAnswer(cmd *cobra.Command, answer *rag.Answer) {
	cmd.Println(answer.Text)
	printCitations(cmd, answer.Citations)

	if len(answer.Suggestions) > 0 {
		cmd.Println("\nFollow-up questions:")
		for _, s := range answer.Suggestions {
			cmd.Printf("  - %s\n", s)
		}
	}

	cmd.Printf("\n%s · %d tokens · %d context chunks · %s\n",
		answer.ModelUsed, answer.TotalTokens, answer.ContextUsed,
		answer.ResponseTime.Round(timePrecision))
}

func printCitations(cmd *cobra.Command, citations []rag.Citation) {
	if len(citations) == 0 {
		return
	}
	cmd.Println("\nSources:")
	for i, c := range citations {
		ref := fmt.Sprintf("  [%d]", i+1)
		if c.DocumentName != "" {
			ref += " " + c.DocumentName
		}
		if c.PageNumber > 0 {
			ref += fmt.Sprintf(" page %d", c.PageNumber)
		}
		cmd.Printf("%s (score %.2f): %s\n", ref, c.RelevanceScore, c.ContentSnippet)
	}
}
