package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/contentcrew/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionClearCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and clear checkpointed sessions",
}

// withStore opens the configured checkpoint store for a session command.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store sessionStore) error) error {
	cfg := loadConfig()
	ctx := cmd.Context()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if store == nil {
		return errors.New("checkpointing is disabled (checkpoint.backend = none)")
	}
	return fn(ctx, store)
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store sessionStore) error {
			list, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			return printSessions(os.Stdout, list)
		})
	},
}

func printSessions(out io.Writer, list []*types.SessionIndex) error {
	if len(list) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tDECISIONS\tCREATED\tREQUEST")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.SessionID,
			s.Status,
			s.Turns,
			s.CreatedAt.Format("2006-01-02 15:04:05"),
			truncate(s.Request, 50),
		)
	}
	return w.Flush()
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session and its transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store sessionStore) error {
			id := types.SessionID(args[0])
			sess, err := store.Get(ctx, id)
			if err != nil {
				return err
			}
			msgs, err := store.Load(ctx, id)
			if err != nil {
				return fmt.Errorf("load transcript: %w", err)
			}
			printSession(os.Stdout, sess, msgs)
			return nil
		})
	},
}

func printSession(out io.Writer, sess *types.SessionIndex, msgs []*types.Message) {
	fmt.Fprintf(out, "Session:   %s\n", sess.SessionID)
	fmt.Fprintf(out, "Key:       %s\n", sess.SessionKey)
	fmt.Fprintf(out, "Request:   %s\n", sess.Request)
	fmt.Fprintf(out, "Status:    %s\n", sess.Status)
	fmt.Fprintf(out, "Decisions: %d\n", sess.Turns)
	if sess.OutputPath != "" {
		fmt.Fprintf(out, "Output:    %s\n", sess.OutputPath)
	}
	fmt.Fprintln(out)
	for _, m := range msgs {
		fmt.Fprintf(out, "%3d  %-10s  %-11s  %s\n", m.Seq, speaker(m), m.Kind, summarize(m))
	}
}

func speaker(m *types.Message) string {
	switch {
	case m.Role == types.RoleUser:
		return "user"
	case m.Role == types.RoleTool && m.Active != types.AgentNone:
		return string(m.Active)
	case m.Agent != types.AgentNone:
		return string(m.Agent)
	}
	return string(m.Role)
}

// summarize renders one transcript message on a single line.
func summarize(m *types.Message) string {
	switch {
	case m.Failure != nil:
		return fmt.Sprintf("[%s] %s", m.Failure.Kind, m.Failure.Message)
	case m.ToolCall != nil:
		return fmt.Sprintf("%s %s", m.ToolCall.Name, truncate(string(m.ToolCall.Arguments), 60))
	case m.Report != nil:
		return fmt.Sprintf("%s (%d sources)", truncate(m.Report.Summary, 60), len(m.Report.Sources))
	case m.Draft != nil:
		if m.Draft.Path != "" {
			return fmt.Sprintf("%s -> %s", m.Draft.Format, m.Draft.Path)
		}
		return fmt.Sprintf("%s (not saved)", m.Draft.Format)
	}
	return truncate(m.Content, 80)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <id|all>",
	Short: "Clear a session or all sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store sessionStore) error {
			if args[0] != "all" {
				if err := store.Delete(ctx, types.SessionID(args[0])); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "Session %s cleared.\n", args[0])
				return nil
			}

			list, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			for _, s := range list {
				if err := store.Delete(ctx, s.SessionID); err != nil {
					return err
				}
			}
			fmt.Fprintf(os.Stdout, "%d sessions cleared.\n", len(list))
			return nil
		})
	},
}
