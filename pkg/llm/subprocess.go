package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// subprocessWorker owns one long-lived child process and speaks
// line-delimited JSON over its stdin/stdout.
type subprocessWorker struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
	command []string
	env     map[string]string
}

func newSubprocessWorker(command []string, env map[string]string) *subprocessWorker {
	return &subprocessWorker{command: command, env: env}
}

func (w *subprocessWorker) ensureStarted() error {
	if w.cmd != nil && w.cmd.ProcessState == nil {
		return nil
	}
	if len(w.command) == 0 {
		return fmt.Errorf("subprocess backend: no command configured")
	}
	cmd := exec.Command(w.command[0], w.command[1:]...)
	for k, v := range w.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("subprocess backend: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("subprocess backend: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("subprocess backend: start: %w", err)
	}
	w.cmd = cmd
	w.stdin = stdin
	w.scanner = bufio.NewScanner(stdout)
	w.scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return nil
}

// replace kills the child (if still alive) so the next call spawns a
// fresh one, per spec.md §9's "kill the child and mark it for
// replacement on deadline breach".
func (w *subprocessWorker) replace() {
	if w.cmd != nil && w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	w.cmd = nil
	w.stdin = nil
	w.scanner = nil
}

type subprocessRequest struct {
	CorrelationID string            `json:"correlation_id"`
	Prompt        string            `json:"prompt"`
	Context       map[string]string `json:"context,omitempty"`
}

type subprocessResponse struct {
	CorrelationID string `json:"correlation_id"`
	Completion    string `json:"completion"`
	Error         string `json:"error,omitempty"`
}

func (w *subprocessWorker) call(ctx context.Context, prompt string, cx map[string]string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureStarted(); err != nil {
		return "", NewError(ErrUnavailable, "subprocess backend unavailable", err)
	}

	corrID := uuid.NewString()
	reqBytes, err := json.Marshal(subprocessRequest{CorrelationID: corrID, Prompt: prompt, Context: cx})
	if err != nil {
		return "", NewError(ErrMalformed, "marshal subprocess request", err)
	}
	reqBytes = append(reqBytes, '\n')

	type result struct {
		resp subprocessResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		if _, err := w.stdin.Write(reqBytes); err != nil {
			done <- result{err: err}
			return
		}
		if !w.scanner.Scan() {
			err := w.scanner.Err()
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			done <- result{err: err}
			return
		}
		var resp subprocessResponse
		if err := json.Unmarshal(w.scanner.Bytes(), &resp); err != nil {
			done <- result{err: err}
			return
		}
		done <- result{resp: resp}
	}()

	select {
	case <-ctx.Done():
		w.replace()
		return "", NewError(ErrTimeout, "subprocess backend deadline exceeded", ctx.Err())
	case r := <-done:
		if r.err != nil {
			w.replace()
			return "", NewError(ErrUnavailable, "subprocess backend I/O failure", r.err)
		}
		if r.resp.CorrelationID != corrID {
			w.replace()
			return "", NewError(ErrMalformed, "subprocess backend correlation id mismatch", nil)
		}
		if r.resp.Error != "" {
			return "", NewError(ErrMalformed, r.resp.Error, nil)
		}
		return r.resp.Completion, nil
	}
}

// SubprocessBackend models a local model invoked without a network hop
// as a bounded worker pool over long-lived child processes, per
// spec.md §9's explicit re-architecture note.
type SubprocessBackend struct {
	timeout time.Duration
	workers chan *subprocessWorker
}

// NewSubprocessBackend starts a pool of poolSize idle workers, each
// lazily spawning its child process on first use.
func NewSubprocessBackend(cfg Config, poolSize int) *SubprocessBackend {
	if poolSize <= 0 {
		poolSize = 2
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	workers := make(chan *subprocessWorker, poolSize)
	for i := 0; i < poolSize; i++ {
		workers <- newSubprocessWorker(cfg.Command, cfg.Environment)
	}
	return &SubprocessBackend{timeout: timeout, workers: workers}
}

func (b *SubprocessBackend) Kind() Kind { return KindSubprocess }

func (b *SubprocessBackend) Complete(ctx context.Context, prompt string, cx map[string]string) (string, error) {
	var w *subprocessWorker
	select {
	case w = <-b.workers:
	case <-ctx.Done():
		return "", NewError(ErrTimeout, "subprocess backend pool exhausted before deadline", ctx.Err())
	}
	defer func() { b.workers <- w }()

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return w.call(callCtx, prompt, cx)
}

func (b *SubprocessBackend) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := b.Complete(probeCtx, "ping", nil)
	return err
}
