package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/liliang-cn/aidentify/internal/domain"
	"github.com/liliang-cn/aidentify/internal/service"
	"github.com/spf13/cobra"
)

func newDetectCmd(opts *rootOptions) *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "detect <file>",
		Short: "Upload a file and print the verdict",
		Long: `Upload an image, video, MP3 or WAV file for AI detection.

Without --chat the backend starts a new chat. With --chat the file and its
verdict are appended to that chat.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			a, err := newApp(opts, printer{w: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			if chatID != "" {
				if _, ok := a.store.Chat(chatID); !ok {
					return fmt.Errorf("chat %s not found", chatID)
				}
				a.store.SelectChat(chatID)
			} else {
				a.store.CreateNewChat()
			}

			if err := a.uploads.Attach(domain.NewAttachment(filepath.Base(args[0]), "", data)); err != nil {
				return err
			}

			result, err := a.uploads.Submit(cmd.Context())
			if err != nil {
				return fmt.Errorf("detection failed: %w", err)
			}
			printResult(cmd, a.store, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&chatID, "chat", "", "append to an existing chat")
	return cmd
}

func printResult(cmd *cobra.Command, store *service.SessionStore, result *service.SubmitResult) {
	w := cmd.OutOrStdout()

	verdict := result.Verdict
	if verdict == nil {
		// new chats carry their verdict in the refetched history
		if chat, ok := store.Chat(result.ChatID); ok {
			for i := len(chat.Messages) - 1; i >= 0; i-- {
				if chat.Messages[i].Role == domain.RoleAIdentify {
					verdict = &chat.Messages[i]
					break
				}
			}
		}
	}

	fmt.Fprintf(w, "chat: %s\n", result.ChatID)
	if verdict == nil {
		fmt.Fprintln(w, "verdict: pending")
		return
	}
	fmt.Fprintf(w, "verdict: %s\n", formatVerdict(verdict))
}
