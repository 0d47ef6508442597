// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcpcall

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Jeff9497/200Model8Dev/internal/config"
	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/model"
	"github.com/Jeff9497/200Model8Dev/internal/util"
)

// MethodSubprocess is the envelope method reported by SubprocessStrategy.
const MethodSubprocess = "CLI STDIN/STDOUT"

// SubprocessStrategy runs the registry CLI and talks JSON-RPC over its stdio.
type SubprocessStrategy struct {
	Command string
	// Args may contain "{server}" and "{key}" placeholders.
	Args   []string
	APIKey string
	// Env is appended to the current environment.
	Env []string

	ReadyPhrases []string
	ReadyDelay   time.Duration
	Timeout      time.Duration
}

// NewSubprocessStrategy builds a subprocess strategy from configuration.
func NewSubprocessStrategy(cfg config.MCPConfig) *SubprocessStrategy {
	return &SubprocessStrategy{
		Command:      cfg.Command,
		Args:         append([]string(nil), cfg.Args...),
		APIKey:       cfg.APIKey,
		ReadyPhrases: append([]string(nil), cfg.ReadyPhrases...),
		ReadyDelay:   cfg.ReadyDelay(),
		Timeout:      cfg.SubprocessTimeout(),
	}
}

// Name implements Strategy.
func (s *SubprocessStrategy) Name() string { return "subprocess" }

// argv substitutes placeholders for one server.
func (s *SubprocessStrategy) argv(spec ServerSpec) []string {
	out := make([]string, len(s.Args))
	r := strings.NewReplacer("{server}", spec.Package, "{key}", s.APIKey)
	for i, a := range s.Args {
		out[i] = r.Replace(a)
	}
	return out
}

func (s *SubprocessStrategy) isReady(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range s.ReadyPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// Attempt implements Strategy.
//
// The request is written only after a ready phrase appears on stderr. The
// first stdout line carrying a JSON-RPC message with id 1 resolves the call.
// The process group is killed however the attempt ends.
func (s *SubprocessStrategy) Attempt(ctx context.Context, call Call) (*model.Envelope, error) {
	spec, err := LookupServer(call.Server)
	if err != nil {
		return nil, err
	}
	args, err := spec.Arguments(call.Params)
	if err != nil {
		return nil, err
	}
	request, err := json.Marshal(callToolRequest(spec.RemoteTool, args))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	attemptCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cmd := exec.Command(s.Command, s.argv(spec)...)
	cmd.Env = append(os.Environ(), s.Env...)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", errs.ErrTransportFailure, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", errs.ErrTransportFailure, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", errs.ErrTransportFailure, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", errs.ErrTransportFailure, s.Command, err)
	}
	slog.Info("mcp subprocess started", "server", spec.Name, "pid", cmd.Process.Pid)

	done := make(chan struct{})
	defer func() {
		close(done)
		_ = stdin.Close()
		if err := killProcessGroup(cmd); err != nil {
			slog.Debug("mcp subprocess kill failed", "pid", cmd.Process.Pid, "error", err)
		}
		_ = cmd.Wait()
	}()

	ready := make(chan struct{})
	go s.watchDiagnostics(stderr, ready, done)

	messages := make(chan string)
	closed := make(chan struct{})
	go readMessages(stdout, messages, closed, done)

	readyCh := (<-chan struct{})(ready)
	var sendTimer <-chan time.Time

	for {
		select {
		case <-readyCh:
			readyCh = nil
			slog.Debug("mcp subprocess ready", "server", spec.Name)
			sendTimer = time.After(s.ReadyDelay)

		case <-sendTimer:
			sendTimer = nil
			// A failed write means the process is going away; its stdout
			// closing reports that.
			if _, err := stdin.Write(append(request, '\n')); err != nil {
				slog.Warn("mcp subprocess request write failed", "server", spec.Name, "error", err)
			}

		case line := <-messages:
			var resp rpcResponse
			if err := json.Unmarshal([]byte(line), &resp); err != nil || !resp.hasID(callID) {
				continue
			}
			if resp.Error != nil {
				return nil, fmt.Errorf("%w: %s returned %v", errs.ErrTransportFailure, spec.Name, resp.Error)
			}
			return envelopeFrom(spec, call, args, &resp, json.RawMessage(line), MethodSubprocess), nil

		case <-closed:
			return nil, fmt.Errorf("%w: no response received from MCP server", errs.ErrSubprocessExit)

		case <-attemptCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: no response within %s", errs.ErrSubprocessTimeout, s.Timeout)
		}
	}
}

// watchDiagnostics logs stderr and closes ready once a ready phrase appears.
func (s *SubprocessStrategy) watchDiagnostics(r io.Reader, ready chan<- struct{}, done <-chan struct{}) {
	var once sync.Once
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		slog.Debug("mcp subprocess stderr", "line", util.TruncateDisplay(line, 200))
		if s.isReady(line) {
			once.Do(func() { close(ready) })
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

// readMessages forwards stdout lines that look like JSON-RPC messages and
// closes closed when the stream ends.
func readMessages(r io.Reader, out chan<- string, closed chan<- struct{}, done <-chan struct{}) {
	defer close(closed)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxResponseBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.Contains(line, `"jsonrpc"`) {
			continue
		}
		select {
		case out <- line:
		case <-done:
			return
		}
	}
}
