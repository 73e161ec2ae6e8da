package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/practicechat/internal/client"
	"github.com/vovakirdan/practicechat/internal/log"
	"github.com/vovakirdan/practicechat/internal/proto"
)

type chatOptions struct {
	server         string
	token          string
	conversationID int64
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Follow a conversation and send lines from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.New(firstNonEmpty(root.logLevel, "warn"), firstNonEmpty(root.logFormat, "console"))
			if opts.token == "" {
				return errors.New("--token is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			api := client.NewAPI(opts.server, opts.token, nil)
			s := &chatSession{api: api, out: cmd.OutOrStdout()}
			if err := s.open(ctx, opts.conversationID); err != nil {
				return err
			}

			refetch := make(chan struct{}, 1)
			sock := client.NewSocket(client.SocketOptions{
				URL:    api.WebSocketURL(),
				Header: api.AuthHeader(),
				Logger: logger,
				OnFrame: func(f proto.Outbound) {
					if nm, ok := f.(proto.NewMessage); ok && nm.ConversationID == s.timeline.ConversationID() {
						select {
						case refetch <- struct{}{}:
						default:
						}
					}
				},
				OnState: func(st client.State, err error) {
					if st == client.StateFailed {
						fmt.Fprintf(s.out, "! realtime connection lost: %v\n", err)
					}
				},
			})
			if err := sock.Join(ctx, s.timeline.ConversationID()); err != nil {
				return err
			}
			sock.Start(ctx)
			defer sock.Close()

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()

			fmt.Fprintf(s.out, "Following conversation %d. Type messages and press Enter to send. Ctrl+C to exit.\n", s.timeline.ConversationID())
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-refetch:
					s.refresh(ctx)
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if text := strings.TrimSpace(line); text != "" {
						s.send(ctx, text)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&opts.token, "token", "", "session token (see the token command)")
	cmd.Flags().Int64Var(&opts.conversationID, "conversation", 0, "conversation id; 0 follows Announcements")
	return cmd
}

type chatSession struct {
	api      *client.API
	timeline *client.Timeline
	out      io.Writer

	// Members added after provisioning are not participants, so
	// Announcements must be refetched through its own endpoint.
	announcements bool
}

func (s *chatSession) open(ctx context.Context, conversationID int64) error {
	var msgs []proto.Message
	var err error
	if conversationID == 0 {
		s.announcements = true
		conversationID, msgs, err = s.api.Announcements(ctx)
	} else {
		msgs, err = s.api.ListMessages(ctx, conversationID)
	}
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	s.timeline = client.NewTimeline(conversationID)
	for _, e := range s.timeline.Reconcile(msgs) {
		s.print(e)
	}
	return nil
}

func (s *chatSession) refresh(ctx context.Context) {
	var msgs []proto.Message
	var err error
	if s.announcements {
		_, msgs, err = s.api.Announcements(ctx)
	} else {
		msgs, err = s.api.ListMessages(ctx, s.timeline.ConversationID())
	}
	if err != nil {
		fmt.Fprintf(s.out, "! refresh failed: %v\n", err)
		return
	}
	for _, e := range s.timeline.Reconcile(msgs) {
		s.print(e)
	}
}

func (s *chatSession) send(ctx context.Context, text string) {
	local := s.timeline.AddPending(0, text)
	msg, err := s.api.SendMessage(ctx, s.timeline.ConversationID(), text)
	if err != nil {
		reason := err.Error()
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			reason = apiErr.Message
			if apiErr.Reason != "" {
				reason = apiErr.Reason
			}
		}
		s.timeline.Fail(local, reason)
		fmt.Fprintf(s.out, "! not sent: %s\n", reason)
		return
	}
	s.timeline.Confirm(local, msg)
}

func (s *chatSession) print(e client.Entry) {
	fmt.Fprintf(s.out, "[%s] %d: %s\n", e.Message.CreatedAt.Local().Format("15:04"), e.Message.SenderID, e.Message.Content)
}
