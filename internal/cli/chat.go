// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/Jeff9497/200Model8Dev/internal/chat"
	"github.com/Jeff9497/200Model8Dev/internal/config"
	"github.com/Jeff9497/200Model8Dev/internal/model"
	"github.com/Jeff9497/200Model8Dev/internal/permission"
	"github.com/Jeff9497/200Model8Dev/internal/util"
)

// =============================================================================
// INPUT
// =============================================================================

// prompter reads one line of input after printing prompt.
type prompter interface {
	Prompt(prompt string) (string, error)
}

// linePrompter wraps liner with a persistent history file.
type linePrompter struct {
	line        *liner.State
	historyFile string
}

func newLinePrompter() *linePrompter {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	p := &linePrompter{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(p.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return p
}

func (p *linePrompter) Prompt(prompt string) (string, error) {
	input, err := p.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		p.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history with owner-only permissions and restores the terminal.
func (p *linePrompter) Close() error {
	if err := os.MkdirAll(filepath.Dir(p.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(p.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = p.line.WriteHistory(f)
			f.Close()
		}
	}
	return p.line.Close()
}

// scanPrompter reads lines from a non-terminal reader.
type scanPrompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func (p *scanPrompter) Prompt(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

// newPrompter uses liner for a terminal stdin and plain line scanning otherwise.
func newPrompter(in io.Reader, out io.Writer) (prompter, func()) {
	if in == os.Stdin && isTerminal(in) {
		lp := newLinePrompter()
		return lp, func() { _ = lp.Close() }
	}
	return &scanPrompter{scanner: bufio.NewScanner(in), out: out}, func() {}
}

// =============================================================================
// SESSION
// =============================================================================

// session drives turns from the terminal and answers approval prompts.
type session struct {
	rt  *runtime
	in  prompter
	out io.Writer
	st  *styles
	md  *markdownRenderer

	model       string
	interactive bool
	autoApprove bool
	width       int

	approvals chan permission.PendingApproval
}

func newSession(rt *runtime, in prompter, out io.Writer, modelID string, interactive, autoApprove bool) *session {
	s := &session{
		rt:          rt,
		in:          in,
		out:         out,
		st:          newStyles(out),
		md:          newMarkdownRenderer(out),
		model:       modelID,
		interactive: interactive,
		autoApprove: autoApprove,
		width:       terminalWidth(out),
		approvals:   make(chan permission.PendingApproval, 1),
	}
	rt.gate.WithNotifier(func(p permission.PendingApproval) { s.approvals <- p })
	return s
}

// runTurn runs fn while serving approval prompts from the gate. Ctrl+C
// cancels the turn without leaving the session.
func (s *session) runTurn(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	defer s.dropStaleApprovals()

	for {
		select {
		case err := <-done:
			if err == nil {
				s.printReply(start)
			}
			return err
		case p := <-s.approvals:
			s.resolve(p)
		}
	}
}

// dropStaleApprovals discards an approval published after its turn ended, so
// the next turn does not answer it.
func (s *session) dropStaleApprovals() {
	for {
		select {
		case p := <-s.approvals:
			slog.Debug("dropping stale approval", "tool", p.Tool.Name, "approval_id", p.ID)
		default:
			return
		}
	}
}

// resolve answers one pending approval. Without a terminal the request is
// denied, since nobody can be asked.
func (s *session) resolve(p permission.PendingApproval) {
	var decision permission.Decision
	switch {
	case s.autoApprove:
		decision = permission.DecisionApprove
		fmt.Fprintln(s.out, s.st.Dim.Render("auto-approved "+p.Tool.Name))
	case !s.interactive:
		decision = permission.DecisionDeny
		fmt.Fprintln(s.out, s.st.Warning.Render("stdin is not a terminal; denied "+p.Tool.Name))
	default:
		decision = s.askDecision(p)
	}

	if err := s.rt.gate.Resolve(decision); err != nil {
		slog.Debug("approval already settled", "tool", p.Tool.Name, "error", err)
	}
}

func (s *session) askDecision(p permission.PendingApproval) permission.Decision {
	fmt.Fprintln(s.out, s.st.approvalBox(p, s.width))
	for {
		answer, err := s.in.Prompt(s.st.Prompt.Render("Allow? [y]es / [n]o / [a]lways: "))
		if err != nil {
			return permission.DecisionDeny
		}
		d, err := permission.ParseDecision(answer)
		if err == nil {
			return d
		}
		fmt.Fprintln(s.out, s.st.Warning.Render("please answer y, n or a"))
	}
}

// printReply shows the latest assistant message and any tool outcome
// recorded since start.
func (s *session) printReply(start time.Time) {
	msgs := s.rt.orchestrator.Messages()
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != model.RoleAssistant {
		return
	}
	if ev, ok := s.rt.orchestrator.LastToolEvent(); ok && !ev.Finished.Before(start) {
		s.printToolEvent(ev)
	}
	fmt.Fprint(s.out, s.md.Render(last.Content))
}

func (s *session) printToolEvent(ev chat.ToolEvent) {
	if ev.Success {
		fmt.Fprintln(s.out, s.st.status(true, ev.Tool, s.st.Dim.Render(ev.Method+" / "+ev.Source)))
		return
	}
	fmt.Fprintln(s.out, s.st.status(false, ev.Tool, s.st.Dim.Render(util.TruncateDisplay(ev.Error, s.width-20))))
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

type chatFlags struct {
	model       string
	autoApprove bool
	remote      string
}

func newChatCmd(root *rootFlags) *cobra.Command {
	var flags chatFlags

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat. Type /help for commands.

Tool requests show an approval box; answer y (once), n (deny) or a (always
allow this tool). When stdin is not a terminal every tool request is denied
unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, root, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "Model id or fuzzy name (default: config default_model)")
	cmd.Flags().BoolVarP(&flags.autoApprove, "yes", "y", false, "Approve every tool request")
	cmd.Flags().StringVar(&flags.remote, "remote", "", "Call tools through the API served at this URL (see serve)")
	return cmd
}

func runChat(cmd *cobra.Command, root *rootFlags, flags chatFlags) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, root.cfg, runtimeOptions{remoteURL: flags.remote})
	if err != nil {
		return err
	}
	defer rt.Close()

	in, closeIn := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	defer closeIn()

	s := newSession(rt, in, cmd.OutOrStdout(), resolveModel(flags.model, root.cfg.DefaultModel),
		isTerminal(cmd.InOrStdin()), flags.autoApprove)

	fmt.Fprintln(s.out, s.st.Title.Render("200model8 chat")+" "+s.st.Dim.Render("model "+s.model+" - /help for commands"))

	for {
		input, err := s.in.Prompt(s.st.Prompt.Render("you> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := s.command(ctx, input)
			if err != nil {
				fmt.Fprintln(s.out, s.st.status(false, "Error", err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		err = s.runTurn(ctx, func(ctx context.Context) error {
			return s.rt.orchestrator.SendMessage(ctx, input, s.model)
		})
		if err != nil {
			fmt.Fprintln(s.out, s.st.status(false, "Error", err.Error()))
		}
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const chatHelp = `Commands:
  /new                 Start a new chat
  /model [id]          Show or switch the model (fuzzy names accepted)
  /models              List models with today's usage
  /history             List your messages with their numbers
  /edit <n> <text>     Replace message n
  /resend <n>          Send message n again
  /code                Show the latest code block
  /results [clear]     List cached tool results, or drop them
  /permissions         Show tool permissions
  /forget              Forget tool permissions
  /quit                Leave`

// command runs one slash command and reports whether the session should end.
func (s *session) command(ctx context.Context, input string) (bool, error) {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/?":
		fmt.Fprintln(s.out, chatHelp)

	case "/new":
		s.rt.orchestrator.NewChat()
		fmt.Fprintln(s.out, s.st.status(true, "OK", "new chat"))

	case "/model":
		if rest == "" {
			fmt.Fprintln(s.out, "model: "+s.model)
			return false, nil
		}
		s.model = resolveModel(rest, s.model)
		fmt.Fprintln(s.out, s.st.status(true, "OK", "model "+s.model))

	case "/models":
		return false, printModels(ctx, s.out, s.st, s.rt.tracker)

	case "/history":
		for i, m := range s.userMessages() {
			fmt.Fprintf(s.out, "%3d  %s\n", i+1, m.Preview(s.width-8))
		}

	case "/edit":
		idx, text, _ := strings.Cut(rest, " ")
		msg, err := s.userMessage(idx)
		if err != nil {
			return false, err
		}
		if _, err := s.rt.orchestrator.EditMessage(msg.ID, strings.TrimSpace(text)); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, s.st.status(true, "OK", "message "+idx+" edited; /resend "+idx+" to send it"))

	case "/resend":
		msg, err := s.userMessage(rest)
		if err != nil {
			return false, err
		}
		return false, s.runTurn(ctx, func(ctx context.Context) error {
			return s.rt.orchestrator.Resend(ctx, msg.ID, s.model)
		})

	case "/code":
		cb := s.rt.orchestrator.CodeBlock()
		if cb == nil {
			fmt.Fprintln(s.out, s.st.Dim.Render("no code yet"))
			return false, nil
		}
		fmt.Fprint(s.out, s.md.Render("```"+cb.Language+"\n"+cb.Code+"\n```"))

	case "/results":
		if strings.EqualFold(rest, "clear") {
			s.rt.executor.ClearResults()
			fmt.Fprintln(s.out, s.st.status(true, "OK", "tool results cleared"))
			return false, nil
		}
		results := s.rt.executor.Results()
		if len(results) == 0 {
			fmt.Fprintln(s.out, s.st.Dim.Render("no tool results cached"))
		}
		for _, id := range slices.Sorted(maps.Keys(results)) {
			env := results[id]
			fmt.Fprintf(s.out, "%s  %s  %s\n", s.st.Info.Render(id),
				s.st.Value.Render(util.TruncateDisplay(env.Query, s.width/2)), s.st.Dim.Render(env.Source))
		}

	case "/permissions":
		perms := s.rt.gate.Permissions()
		if len(perms) == 0 {
			fmt.Fprintln(s.out, s.st.Dim.Render("no tool permissions recorded"))
		}
		for name, p := range perms {
			fmt.Fprintf(s.out, "%s %s\n", s.st.Label.Render(name), p.State())
		}

	case "/forget":
		s.rt.gate.Clear()
		fmt.Fprintln(s.out, s.st.status(true, "OK", "tool permissions cleared"))

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

func (s *session) userMessages() []model.Message {
	var out []model.Message
	for _, m := range s.rt.orchestrator.Messages() {
		if m.Role == model.RoleUser {
			out = append(out, m)
		}
	}
	return out
}

func (s *session) userMessage(idx string) (model.Message, error) {
	n, err := strconv.Atoi(strings.TrimSpace(idx))
	msgs := s.userMessages()
	if err != nil || n < 1 || n > len(msgs) {
		return model.Message{}, fmt.Errorf("no message %q (see /history)", idx)
	}
	return msgs[n-1], nil
}
