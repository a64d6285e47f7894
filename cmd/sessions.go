package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session's conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	sessions, err := a.store.ListSessions(ctx, 100, 0)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		cmd.Println("No sessions. Use 'docvault chat <document-id>' to start one.")
		return nil
	}

	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		cmd.Printf("%s  %s  %d messages  updated %s\n",
			s.ID, title, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", args[0], err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	name, err := a.store.DocumentName(ctx, session.DocumentID)
	if err != nil {
		return err
	}
	cmd.Printf("Session %s — %s\n\n", session.ID, name)

	messages, err := a.store.Messages(ctx, sessionID, 1000, 0)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		cmd.Printf("[%s] %s\n", msg.Role, msg.Content)
		for _, c := range msg.Citations {
			cmd.Printf("    · page %d (score %.2f): %s\n", c.PageNumber, c.RelevanceScore, c.ContentSnippet)
		}
		cmd.Println()
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", args[0], err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if err := a.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	cmd.Printf("Deleted session %s\n", sessionID)
	return nil
}
