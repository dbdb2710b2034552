package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/chris/helpem/internal/conversation"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in the terminal",
		Long:  "Talk to the assistant in the terminal. Proposed changes wait for a yes or no.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
			k := conversation.Key{UserID: a.cfg.OwnerID, SessionID: "cli"}
			return runChat(cmd.Context(), a.sessions, k, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), interactive)
		},
	}
}

type chatHandler interface {
	Handle(ctx context.Context, k conversation.Key, text string) (conversation.Reply, error)
}

// runChat reads one utterance per line until EOF or "exit". The prompt is
// printed only on a terminal.
func runChat(ctx context.Context, h chatHandler, k conversation.Key, in io.Reader, out, errOut io.Writer, interactive bool) error {
	prompt := func() {
		if interactive {
			fmt.Fprint(out, "helpem> ")
		}
	}

	scanner := bufio.NewScanner(in)
	prompt()
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "exit" || input == "quit" {
			break
		}
		if input == "" {
			prompt()
			continue
		}

		reply, err := h.Handle(ctx, k, input)
		if err != nil {
			fmt.Fprintln(errOut, conversation.UserMessage(err))
		} else {
			fmt.Fprintln(out, reply.Message)
		}
		prompt()
	}
	return scanner.Err()
}
