package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellRunner(timeout time.Duration) *Runner {
	return New("/bin/sh", timeout)
}

func TestRunCapturingJSON(t *testing.T) {
	r := shellRunner(5 * time.Second)

	out, err := r.RunCapturingJSON(context.Background(), []string{"-c", `echo '{"title":"clip"}'`})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"clip"}`, string(out))
}

func TestRunCapturingJSONExecutionFailed(t *testing.T) {
	r := shellRunner(5 * time.Second)

	_, err := r.RunCapturingJSON(context.Background(), []string{"-c", "echo oops >&2; exit 3"})
	require.Error(t, err)

	procErr, ok := err.(*ProcError)
	require.True(t, ok)
	assert.Equal(t, KindExecutionFailed, procErr.Kind)
	assert.Equal(t, 3, procErr.ExitCode)
	assert.Contains(t, procErr.StderrTail, "oops")
}

func TestRunCapturingJSONMalformedOutput(t *testing.T) {
	r := shellRunner(5 * time.Second)

	_, err := r.RunCapturingJSON(context.Background(), []string{"-c", "echo not json at all"})
	require.Error(t, err)

	procErr, ok := err.(*ProcError)
	require.True(t, ok)
	assert.Equal(t, KindMalformedOutput, procErr.Kind)
}

func TestRunCapturingJSONTimeout(t *testing.T) {
	r := shellRunner(100 * time.Millisecond)

	start := time.Now()
	_, err := r.RunCapturingJSON(context.Background(), []string{"-c", "sleep 5"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	procErr, ok := err.(*ProcError)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, procErr.Kind)
}

func TestRunCapturingJSONTimeoutKillsChildren(t *testing.T) {
	r := shellRunner(200 * time.Millisecond)

	// The shell's background child inherits stdout; it must die with the
	// group instead of holding the run open past the deadline.
	start := time.Now()
	_, err := r.RunCapturingJSON(context.Background(), []string{"-c", "sleep 10 & wait"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	procErr, ok := err.(*ProcError)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, procErr.Kind)
}

func TestRunStreamingToFile(t *testing.T) {
	r := shellRunner(5 * time.Second)
	dir := t.TempDir()
	out := filepath.Join(dir, "media.bin")

	h, err := r.RunStreamingToFile(context.Background(), []string{"-c", "printf hello > " + out}, dir)
	require.NoError(t, err)

	exitCode, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestRunStreamingStderrTail(t *testing.T) {
	r := shellRunner(5 * time.Second)
	dir := t.TempDir()

	h, err := r.RunStreamingToFile(context.Background(), []string{"-c", "echo boom >&2; exit 1"}, dir)
	require.NoError(t, err)

	var lines []string
	for line := range h.Stderr() {
		lines = append(lines, line)
	}

	exitCode, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, h.StderrTail(), "boom")
	assert.Contains(t, lines, "boom")
}

func TestRunStreamingCancel(t *testing.T) {
	r := shellRunner(30 * time.Second)
	dir := t.TempDir()

	h, err := r.RunStreamingToFile(context.Background(), []string{"-c", "sleep 10"}, dir)
	require.NoError(t, err)

	start := time.Now()
	h.Cancel()
	h.Cancel() // idempotent

	exitCode, err := h.Wait()
	require.NoError(t, err)
	assert.NotEqual(t, 0, exitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunStreamingTimeout(t *testing.T) {
	r := shellRunner(100 * time.Millisecond)
	dir := t.TempDir()

	h, err := r.RunStreamingToFile(context.Background(), []string{"-c", "sleep 10"}, dir)
	require.NoError(t, err)

	start := time.Now()
	_, err = h.Wait()
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	procErr, ok := err.(*ProcError)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, procErr.Kind)
}

func TestLateTimerDoesNotOverrideSuccess(t *testing.T) {
	r := shellRunner(30 * time.Second)
	dir := t.TempDir()

	h, err := r.RunStreamingToFile(context.Background(), []string{"-c", "true"}, dir)
	require.NoError(t, err)

	exitCode, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)

	// A timeout firing after the run settled must not flip the verdict.
	h.onTimeout()
	exitCode, err = h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)
}

func TestRunStreamingContextCancel(t *testing.T) {
	r := shellRunner(30 * time.Second)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	h, err := r.RunStreamingToFile(ctx, []string{"-c", "sleep 10"}, dir)
	require.NoError(t, err)

	cancel()
	start := time.Now()
	exitCode, err := h.Wait()
	require.NoError(t, err)
	assert.NotEqual(t, 0, exitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDestinationExclusivity(t *testing.T) {
	r := shellRunner(30 * time.Second)
	dir := t.TempDir()

	h, err := r.RunStreamingToFile(context.Background(), []string{"-c", "sleep 2"}, dir)
	require.NoError(t, err)

	_, err = r.RunStreamingToFile(context.Background(), []string{"-c", "true"}, dir)
	assert.Error(t, err)

	h.Cancel()
	_, _ = h.Wait()

	// The destination is free again once the first run ends.
	h2, err := r.RunStreamingToFile(context.Background(), []string{"-c", "true"}, dir)
	require.NoError(t, err)
	_, _ = h2.Wait()
}
