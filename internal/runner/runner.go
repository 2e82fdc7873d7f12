// Package runner wraps invocation of the external extraction tool. Arguments
// are always passed as an argument vector built from validated request fields,
// never interpolated into a shell string.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrorKind classifies a subprocess failure.
type ErrorKind string

const (
	KindExecutionFailed ErrorKind = "execution_failed"
	KindMalformedOutput ErrorKind = "malformed_output"
	KindTimeout         ErrorKind = "timeout"
)

// ProcError is a subprocess failure with enough server-side detail to
// diagnose it. StderrTail is truncated and never forwarded to clients raw.
type ProcError struct {
	Kind       ErrorKind
	ExitCode   int
	StderrTail string
}

func (e *ProcError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return "extractor timed out"
	case KindMalformedOutput:
		return "extractor produced malformed output"
	default:
		return fmt.Sprintf("extractor exited with code %d: %s", e.ExitCode, e.StderrTail)
	}
}

const (
	stderrTailLines = 10
	stderrTailBytes = 1024
)

// Runner spawns and supervises extractor subprocesses with a wall-clock
// timeout per invocation. It refuses two concurrent invocations targeting
// the same destination path.
type Runner struct {
	bin     string
	timeout time.Duration

	mu    sync.Mutex
	dests map[string]struct{}
}

func New(bin string, timeout time.Duration) *Runner {
	return &Runner{
		bin:     bin,
		timeout: timeout,
		dests:   make(map[string]struct{}),
	}
}

// RunCapturingJSON runs the extractor to completion, capturing stdout and
// stderr separately. On exit 0 the stdout bytes are validated as a single
// JSON document and returned.
func (r *Runner) RunCapturingJSON(ctx context.Context, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return os.ErrProcessDone
		}
		// Take the whole group down; a grandchild inheriting stdout would
		// otherwise hold the run open past the deadline.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, &ProcError{Kind: KindTimeout, ExitCode: -1, StderrTail: tail(stderr.String())}
	}
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &ProcError{Kind: KindExecutionFailed, ExitCode: exitCode, StderrTail: tail(stderr.String())}
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if !json.Valid(out) {
		return nil, &ProcError{Kind: KindMalformedOutput, StderrTail: tail(stderr.String())}
	}
	return out, nil
}

// RunStreamingToFile starts the extractor configured (via args) to write its
// result under destDir and returns immediately with a supervision handle.
// The subprocess runs in its own process group so Cancel can terminate the
// whole tree. The handle cancels itself when ctx is done.
func (r *Runner) RunStreamingToFile(ctx context.Context, args []string, destDir string) (*Handle, error) {
	r.mu.Lock()
	if _, busy := r.dests[destDir]; busy {
		r.mu.Unlock()
		return nil, fmt.Errorf("destination %s already in use", destDir)
	}
	r.dests[destDir] = struct{}{}
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.dests, destDir)
		r.mu.Unlock()
	}

	cmd := exec.Command(r.bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		release()
		return nil, fmt.Errorf("failed to start extractor: %w", err)
	}

	h := &Handle{
		cmd:        cmd,
		lines:      make(chan string, 64),
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}

	h.timer = time.AfterFunc(r.timeout, h.onTimeout)

	go h.readStderr(stderrPipe)
	go h.wait(release)

	go func() {
		select {
		case <-ctx.Done():
			h.Cancel()
		case <-h.done:
		}
	}()

	return h, nil
}

// Handle supervises one streaming extractor run.
type Handle struct {
	cmd   *exec.Cmd
	timer *time.Timer

	lines      chan string
	tailMu     sync.Mutex
	tailLines  []string
	readerDone chan struct{}

	done     chan struct{}
	exitCode int

	killOnce sync.Once

	settleMu sync.Mutex
	settled  bool
	timedOut bool
}

// Stderr streams the subprocess's stderr lines for diagnostics. Lines are
// dropped when the consumer falls behind; the tail is kept regardless.
func (h *Handle) Stderr() <-chan string {
	return h.lines
}

// StderrTail returns the last captured stderr lines, truncated.
func (h *Handle) StderrTail() string {
	h.tailMu.Lock()
	defer h.tailMu.Unlock()
	return tail(strings.Join(h.tailLines, "\n"))
}

// Cancel terminates the subprocess and its children. Safe to call more than
// once and safe to race with natural completion.
func (h *Handle) Cancel() {
	h.kill()
}

// Wait blocks until the subprocess ends and returns its exit code. A timed
// out run reports ProcError(Timeout) instead.
func (h *Handle) Wait() (int, error) {
	<-h.done
	h.settleMu.Lock()
	timedOut := h.timedOut
	h.settleMu.Unlock()
	// A run that exited cleanly cannot have been a timeout victim even if
	// the timer fired while it was settling.
	if timedOut && h.exitCode != 0 {
		return h.exitCode, &ProcError{Kind: KindTimeout, ExitCode: h.exitCode, StderrTail: h.StderrTail()}
	}
	return h.exitCode, nil
}

// onTimeout kills the process group unless the run has already settled; a
// timer firing concurrently with natural completion must not turn a
// finished run into a timeout.
func (h *Handle) onTimeout() {
	h.settleMu.Lock()
	if h.settled {
		h.settleMu.Unlock()
		return
	}
	h.timedOut = true
	h.settleMu.Unlock()
	h.kill()
}

func (h *Handle) kill() {
	h.killOnce.Do(func() {
		if h.cmd.Process == nil {
			return
		}
		// Negative pid signals the whole process group.
		_ = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL)
	})
}

func (h *Handle) readStderr(pipe io.Reader) {
	defer close(h.readerDone)
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()

		h.tailMu.Lock()
		h.tailLines = append(h.tailLines, line)
		if len(h.tailLines) > stderrTailLines {
			h.tailLines = h.tailLines[len(h.tailLines)-stderrTailLines:]
		}
		h.tailMu.Unlock()

		select {
		case h.lines <- line:
		default:
		}
	}
}

func (h *Handle) wait(release func()) {
	// The stderr pipe must be fully drained before Wait closes it.
	<-h.readerDone
	err := h.cmd.Wait()

	h.settleMu.Lock()
	h.settled = true
	h.settleMu.Unlock()

	h.exitCode = 0
	if err != nil {
		h.exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.exitCode = exitErr.ExitCode()
		}
	}

	h.timer.Stop()
	release()
	close(h.lines)
	close(h.done)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > stderrTailLines {
		lines = lines[len(lines)-stderrTailLines:]
	}
	s = strings.Join(lines, "\n")
	if len(s) > stderrTailBytes {
		s = s[len(s)-stderrTailBytes:]
	}
	return s
}
