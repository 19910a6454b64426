package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/teslashibe/go-converse/internal/log"
	"github.com/teslashibe/go-converse/pkg/chat"
	"github.com/teslashibe/go-converse/pkg/orchestrator"
)

const chatHelp = `Type a message and press enter.
  /image <description>  generate an image
  :voice                start or stop voice input
  :help                 show this help
  :quit                 exit`

func newChatCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.setup(os.Stderr)
			if err != nil {
				return err
			}
			sess, err := newSession(cfg, log.L())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go sess.orch.Run(ctx)
			defer sess.close(log.L())

			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return runChat(ctx, sess.orch, newScanReader(cmd.InOrStdin()), cmd.OutOrStdout())
			}

			state, err := term.MakeRaw(fd)
			if err != nil {
				return fmt.Errorf("terminal: %w", err)
			}
			defer term.Restore(fd, state)

			t := term.NewTerminal(struct {
				io.Reader
				io.Writer
			}{os.Stdin, os.Stdout}, "> ")
			if w, h, err := term.GetSize(fd); err == nil {
				t.SetSize(w, h)
			}
			return runChat(ctx, sess.orch, t, t)
		},
	}
}

// lineReader reads one line of input. *term.Terminal implements it.
type lineReader interface {
	ReadLine() (string, error)
}

type scanReader struct {
	s *bufio.Scanner
}

func newScanReader(r io.Reader) *scanReader {
	return &scanReader{s: bufio.NewScanner(r)}
}

func (r *scanReader) ReadLine() (string, error) {
	if r.s.Scan() {
		return r.s.Text(), nil
	}
	if err := r.s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// conversation is the part of the orchestrator the chat loop drives.
type conversation interface {
	Submit(text string) error
	ToggleVoice() error
	WaitIdle(ctx context.Context) error
	OnChange(fn func(orchestrator.Snapshot))
	Snapshot() orchestrator.Snapshot
}

// runChat reads lines from in until EOF or :quit and prints new messages
// to out as they are appended.
func runChat(ctx context.Context, conv conversation, in lineReader, out io.Writer) error {
	p := &printer{out: out}
	conv.OnChange(func(s orchestrator.Snapshot) { p.show(s.Messages) })

	fmt.Fprintln(out, chatHelp)
	for {
		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			return conv.WaitIdle(ctx)
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case ":quit", ":q":
			return conv.WaitIdle(ctx)
		case ":help":
			fmt.Fprintln(out, chatHelp)
			continue
		case ":voice":
			if err := conv.ToggleVoice(); err != nil {
				p.notice(describe(err))
				continue
			}
			if conv.Snapshot().Mode == orchestrator.ModeListening {
				p.notice("listening... (:voice to stop)")
			}
			continue
		}

		if err := conv.Submit(line); err != nil {
			p.notice(describe(err))
			continue
		}
		if err := conv.WaitIdle(ctx); err != nil {
			return err
		}
	}
}

func describe(err error) string {
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		return "still waiting for the last reply"
	case errors.Is(err, orchestrator.ErrListening):
		return "voice input is active; type :voice to stop it"
	case errors.Is(err, orchestrator.ErrEmptyDraft):
		return "nothing to send"
	default:
		// Start failures are already in the conversation.
		return ""
	}
}

// printer writes each message once.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	lastID int64
}

func (p *printer) show(msgs []chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if m.ID <= p.lastID {
			continue
		}
		p.lastID = m.ID
		fmt.Fprint(p.out, render(m))
	}
}

func (p *printer) notice(s string) {
	if s == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "! %s\n", s)
}

// render formats a message for the terminal.
func render(m chat.Message) string {
	who := "ai"
	if m.Sender == chat.SenderUser {
		who = "you"
	}

	var b strings.Builder
	if m.Text != "" {
		fmt.Fprintf(&b, "%s: %s\n", who, m.Text)
	}
	if m.Code != nil {
		if m.Text == "" {
			fmt.Fprintf(&b, "%s:\n", who)
		}
		fmt.Fprintf(&b, "```%s\n%s\n```\n", m.Code.Language, m.Code.Content)
	}
	if m.Image != nil {
		fmt.Fprintf(&b, "%s: [image: %s] (%d bytes)\n", who, m.Image.Alt, len(m.Image.Src))
	}
	return b.String()
}
