package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/liliang-cn/aidentify/internal/domain"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List chats with their latest verdict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, printer{w: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), a.store.Chats())
			return nil
		},
	}
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <chatId>",
		Short: "Show the timeline of one chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, printer{w: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			chat, err := a.store.ReloadChat(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load chat %s: %w", args[0], err)
			}
			printChat(cmd.OutOrStdout(), chat)
			return nil
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chatId>",
		Short: "Delete a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, printer{w: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			return a.store.DeleteChat(cmd.Context(), args[0])
		},
	}
}

func printHistory(w io.Writer, chats []domain.Chat) {
	if len(chats) == 0 {
		fmt.Fprintln(w, "No chats yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRESULT\tMESSAGES")
	for i := range chats {
		s := chats[i].Summarize()
		result := string(s.Result)
		if result == "" {
			result = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.ID, s.Name, result, s.Messages)
	}
	tw.Flush()
}

func printChat(w io.Writer, chat domain.Chat) {
	fmt.Fprintf(w, "%s (%s)\n", chat.DisplayName(), chat.ID)
	for i := range chat.Messages {
		m := &chat.Messages[i]
		switch m.Role {
		case domain.RoleAIdentify:
			fmt.Fprintf(w, "  aidentify  %s\n", formatVerdict(m))
		default:
			fmt.Fprintf(w, "  %-9s  [%s] %s\n", m.Role, m.Type, m.Preview())
		}
	}
}

func formatVerdict(m *domain.Message) string {
	out := fmt.Sprintf("%s (%.0f%% confidence)", m.Result, m.Confidence*100)
	if m.Label != "" && m.Label != string(m.Result) {
		out += " label=" + m.Label
	}
	if m.Reason != "" {
		out += "\n             " + m.Reason
	}
	return out
}
