package node

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/fileutil"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
)

func lookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

// boundedBuffer truncates writes past limit, appending a marker once.
type boundedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer { return &boundedBuffer{limit: limit} }

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		if !b.truncated {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n...[truncated]"
	}
	return b.buf.String()
}

// ExecuteCommand spawns req.Argv[0] if (and only if) its basename is in
// rc.AllowedCommands, confines cwd to RootDir, captures bounded output,
// and enforces timeout with a terminate-then-kill grace period. Never
// raises on non-zero exit: exit code is data, per spec.md §4.1.
func (rc *RootContext) ExecuteCommand(ctx context.Context, req model.CommandRequest) (*model.CommandResult, error) {
	if len(req.Argv) == 0 {
		return nil, model.NewError(model.ErrInternal, "empty argv")
	}
	basename := filepath.Base(req.Argv[0])
	if filepath.IsAbs(req.Argv[0]) {
		if !rc.AllowedCommands[basename] {
			return nil, model.NewError(model.ErrCommandNotAllowed, basename+" not in allow-list")
		}
	} else if !rc.AllowedCommands[req.Argv[0]] && !rc.AllowedCommands[basename] {
		return nil, model.NewError(model.ErrCommandNotAllowed, req.Argv[0]+" not in allow-list")
	}

	cwd := rc.RootDir
	if req.Cwd != "" {
		abs, err := fileutil.ResolveConfined(rc.RootDir, req.Cwd)
		if err != nil {
			return nil, model.NewError(model.ErrPathEscape, err.Error())
		}
		cwd = abs
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if req.TimeoutSeconds <= 0 {
		timeout = 30 * time.Second
	}
	if timeout > 600*time.Second {
		timeout = 600 * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(req.Argv[0], req.Argv[1:]...)
	cmd.Dir = cwd
	env := []string{}
	for _, kv := range []string{"PATH"} {
		if v, ok := lookupEnv(kv); ok {
			env = append(env, kv+"="+v)
		}
	}
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	stdout := newBoundedBuffer(MaxCapturedOutput)
	stderr := newBoundedBuffer(MaxCapturedOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Start()
	if runErr != nil {
		return nil, model.NewError(model.ErrInternal, "spawn failed: "+runErr.Error())
	}

	waitErr := waitWithGrace(runCtx, cmd, KillGracePeriod)
	duration := time.Since(start).Seconds()

	result := &model.CommandResult{
		NodeID:          rc.NodeID,
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		DurationSeconds: duration,
	}

	if runCtx.Err() != nil {
		result.ExitCode = -1
		result.Reason = "timeout"
		return result, nil
	}

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				result.ExitCode = -int(status.Signal())
				return result, nil
			}
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		result.Reason = waitErr.Error()
		return result, nil
	}

	result.ExitCode = cmd.ProcessState.ExitCode()
	return result, nil
}

// waitWithGrace waits for cmd to exit; if runCtx expires first it sends
// the process a terminate signal, then force-kills after grace if it
// has not exited.
func waitWithGrace(runCtx context.Context, cmd *exec.Cmd, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case err := <-done:
			return err
		case <-time.After(grace):
			_ = cmd.Process.Kill()
			<-done
			return runCtx.Err()
		}
	}
}
