package agentsession

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kagan-sh/kagan-core/internal/logging"
)

// CompletionResult is what a Session reports once the agent's stdout has
// closed and its process has exited; lifecycle events seen before that
// (agent_complete, agent_fail) are folded into it.
type CompletionResult struct {
	Success    bool
	ExitCode   int
	Canceled   bool // sourced from the cancel path, not inferred from ExitCode
	FinalText  string
	FailReason string
}

// Session owns a single child agent process and its reader goroutine. It
// is the sole owner of the process handle; consumers may read from its
// buffers but cannot outlive it — Close tears down the reader, the
// process, and the buffers together.
type Session struct {
	id      string
	cmd     *exec.Cmd
	stdin   *bufio.Writer
	buffers buffers
	tracer  trace.Tracer

	mu         sync.Mutex
	canceled   bool
	done       chan CompletionResult
	onUpdate   func(SessionUpdate)
	permission PermissionPolicy
}

// SpawnOptions configures a new Session.
type SpawnOptions struct {
	Binary     string
	Args       []string
	WorkDir    string
	ID         string
	Permission PermissionPolicy
	OnUpdate   func(SessionUpdate) // optional live sink; buffers always retain history regardless
}

// Spawn resolves the executable, launches it with WorkDir as its working
// directory, and starts the reader goroutine. Canceling ctx does not kill
// the process; Close stops it.
func Spawn(ctx context.Context, opts SpawnOptions) (*Session, error) {
	binary, err := exec.LookPath(opts.Binary)
	if err != nil {
		return nil, fmt.Errorf("resolve agent binary %q: %w", opts.Binary, err)
	}

	cmd := exec.Command(binary, opts.Args...)
	cmd.Dir = opts.WorkDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent process: %w", err)
	}

	s := &Session{
		id:         opts.ID,
		cmd:        cmd,
		stdin:      bufio.NewWriter(stdin),
		tracer:     otel.Tracer("kagan.agentsession"),
		done:       make(chan CompletionResult, 1),
		onUpdate:   opts.OnUpdate,
		permission: opts.Permission,
	}

	go s.drainStderr(stderr)
	go s.readLoop(ctx, stdout)

	return s, nil
}

func (s *Session) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		logging.Debug("agent[%s] stderr: %s", s.id, scanner.Text())
	}
}

// readLoop parses newline-delimited JSON frames from the agent until
// stdout closes, then waits on the process and reports completion.
func (s *Session) readLoop(ctx context.Context, stdout io.Reader) {
	ctx, span := s.tracer.Start(ctx, "agentsession.run",
		trace.WithAttributes(attribute.String("agentsession.id", s.id)))
	defer span.End()

	var finalText strings.Builder
	result := CompletionResult{}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var frame InboundFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			logging.Debug("agent[%s] malformed frame: %v", s.id, err)
			continue
		}

		switch frame.Method {
		case MethodSessionUpdate:
			var update SessionUpdate
			if err := json.Unmarshal(frame.Params, &update); err != nil {
				continue
			}
			s.buffers.appendMessage(update)
			if update.Text != nil {
				s.buffers.appendResponse(update.Text.Text)
				finalText.WriteString(update.Text.Text)
			}
			if s.onUpdate != nil {
				s.onUpdate(update)
			}
		case MethodAgentReady:
			logging.Debug("agent[%s] ready", s.id)
		case MethodAgentComplete:
			result.Success = true
		case MethodAgentFail:
			var payload AgentFailPayload
			_ = json.Unmarshal(frame.Params, &payload)
			result.FailReason = payload.Message
		}
	}

	cmdErr := s.cmd.Wait()
	result.FinalText = finalText.String()

	s.mu.Lock()
	canceled := s.canceled
	s.mu.Unlock()
	result.Canceled = canceled

	classifyExit(&result, cmdErr, canceled)

	if !result.Success && result.FailReason == "" && cmdErr != nil {
		result.FailReason = cmdErr.Error()
	}

	if cmdErr != nil {
		span.RecordError(cmdErr)
		span.SetStatus(codes.Error, result.FailReason)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	s.done <- result
}


// SendPrompt delivers a prompt delivery notification.
func (s *Session) SendPrompt(method string, params any) error {
	return s.writeFrame(OutboundNotification{Method: method, Params: params})
}

// SendRequest delivers a correlated request, e.g. "session/cancel".
func (s *Session) SendRequest(id, method string, params any) error {
	return s.writeFrame(OutboundRequest{ID: id, Method: method, Params: params})
}

// AnswerPermission replies to a pending permission_request, correlated by
// the tool call id it was raised against.
func (s *Session) AnswerPermission(toolCallID string, option PermissionOption) error {
	return s.writeFrame(OutboundNotification{
		Method: "session/permission_response",
		Params: map[string]string{"tool_call_id": toolCallID, "option": string(option)},
	})
}

func (s *Session) writeFrame(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return s.stdin.Flush()
}

// ResponseBuffer returns the currently buffered response text.
func (s *Session) ResponseBuffer() string { return s.buffers.responseSnapshot() }

// Replay returns buffered messages without draining them, for a
// reconnecting sink to observe history.
func (s *Session) Replay() []SessionUpdate { return s.buffers.replay() }

// ClearBuffers empties both buffers.
func (s *Session) ClearBuffers() { s.buffers.clearAll() }

// Wait blocks until the session completes (stdout closed and process
// exited), returning its CompletionResult, or until ctx is done.
func (s *Session) Wait(ctx context.Context) (CompletionResult, error) {
	select {
	case r := <-s.done:
		return r, nil
	case <-ctx.Done():
		return CompletionResult{}, ctx.Err()
	}
}

// Close performs cooperative-then-forced termination: send session/cancel,
// wait briefly, then escalate to OS-level termination. It is idempotent
// and safe to call from any goroutine.
func (s *Session) Close(ctx context.Context, grace time.Duration) error {
	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()

	_ = s.SendRequest("cancel-"+s.id, "session/cancel", nil)

	if grace <= 0 {
		grace = 3 * time.Second
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(grace):
	}

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	<-s.done
	return nil
}
