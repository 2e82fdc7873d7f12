package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kavith/streamgate/internal/gate"
	"github.com/kavith/streamgate/internal/runner"
)

// JobStatus is the state of one download job.
type JobStatus string

const (
	JobCreated   JobStatus = "created"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

type job struct {
	id string

	mu     sync.Mutex
	status JobStatus
}

func (j *job) transition(to JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.status {
	case JobSucceeded, JobFailed, JobCancelled:
		// Terminal states are immutable; cleanup may race with completion.
		return
	}
	j.status = to
}

type OrchestratorConfig struct {
	TempDir string
	// RecheckAfter re-verifies the token once when a transfer outlives it.
	// Zero disables the recheck.
	RecheckAfter time.Duration
}

// Orchestrator drives one download job per request: verify the token,
// claim a gate slot, run the extractor in fetch mode against a unique temp
// directory, then hand the produced file to the caller as a lazy byte
// stream. Every exit path deletes the temp directory and releases the slot
// exactly once.
type Orchestrator struct {
	tokens *TokenService
	gate   *gate.Gate
	run    *runner.Runner
	cfg    OrchestratorConfig
}

func NewOrchestrator(tokens *TokenService, g *gate.Gate, run *runner.Runner, cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &Orchestrator{tokens: tokens, gate: g, run: run, cfg: cfg}, nil
}

// Start verifies the token, admits the job and runs the extractor. On
// success it returns a Delivery the caller must drain and Close. The strict
// order is verify, then consume (single-use policy), then acquire, then
// spawn; no subprocess starts for a token that fails verification.
func (o *Orchestrator) Start(ctx context.Context, tokenID, ownerID, tier, filenameHint string) (*Delivery, error) {
	tok, err := o.tokens.Verify(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && tok.OwnerID != ownerID {
		return nil, ErrTokenNotFound
	}

	if o.tokens.SingleUse() {
		if tok, err = o.tokens.Consume(ctx, tokenID); err != nil {
			return nil, err
		}
	}

	slot, err := o.gate.Acquire(tok.OwnerID, tier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTooManyDownloads, err)
	}

	j := &job{id: uuid.NewString(), status: JobCreated}
	dir := filepath.Join(o.cfg.TempDir, j.id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slot.Release()
		return nil, fmt.Errorf("failed to create job dir: %w", err)
	}

	fail := func(status JobStatus) {
		j.transition(status)
		os.RemoveAll(dir)
		slot.Release()
	}

	// Pair video-only formats with the best available audio; the extractor
	// falls back to the bare format when no pairing exists.
	selector := tok.FormatID + "+bestaudio/" + tok.FormatID
	args := []string{
		"-f", selector,
		"-o", filepath.Join(dir, "media.%(ext)s"),
		"--no-playlist",
		"--newline",
		tok.SourceURL,
	}

	started := time.Now()
	h, err := o.run.RunStreamingToFile(ctx, args, dir)
	if err != nil {
		fail(JobFailed)
		return nil, err
	}
	j.transition(JobRunning)
	log.Printf("job %s: fetching format %s for owner %s", j.id, tok.FormatID, tok.OwnerID)

	exitCode, waitErr := h.Wait()

	if ctx.Err() != nil {
		// Client went away while the extractor ran; the runner already
		// killed the process group.
		fail(JobCancelled)
		log.Printf("job %s: client aborted before transfer", j.id)
		return nil, ErrClientAborted
	}
	if waitErr != nil {
		fail(JobFailed)
		return nil, waitErr
	}
	if exitCode != 0 {
		fail(JobFailed)
		return nil, &runner.ProcError{
			Kind:       runner.KindExecutionFailed,
			ExitCode:   exitCode,
			StderrTail: h.StderrTail(),
		}
	}

	path, size, err := producedFile(dir)
	if err != nil {
		fail(JobFailed)
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		fail(JobFailed)
		return nil, fmt.Errorf("failed to open output: %w", err)
	}

	name := filenameHint
	if name == "" {
		name = sanitizeFilename(tok.DisplayTitle)
	}
	if filepath.Ext(name) == "" {
		name += filepath.Ext(path)
	}

	return &Delivery{
		Filename:     name,
		Size:         size,
		file:         f,
		dir:          dir,
		slot:         slot,
		job:          j,
		tokens:       o.tokens,
		tokenID:      tokenID,
		started:      started,
		recheckAfter: o.cfg.RecheckAfter,
	}, nil
}

// producedFile locates the single file the extractor wrote under dir.
func producedFile(dir string) (string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read job dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		return filepath.Join(dir, e.Name()), info.Size(), nil
	}
	return "", 0, ErrOutputMissing
}

var filenameSanitizer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_", "\n", " ", "\r", " ",
)

func sanitizeFilename(title string) string {
	name := strings.TrimSpace(filenameSanitizer.Replace(title))
	if name == "" {
		name = "download"
	}
	return name
}

// Delivery is the finite, non-restartable byte stream of one completed
// fetch. Close is idempotent and must run on every exit path; the HTTP
// layer closes it even when the client disconnects mid-body.
type Delivery struct {
	Filename string
	Size     int64

	file *os.File
	dir  string
	slot *gate.Slot
	job  *job

	tokens       *TokenService
	tokenID      string
	started      time.Time
	recheckAfter time.Duration
	rechecked    bool

	read      int64
	closeOnce sync.Once
}

func (d *Delivery) Read(p []byte) (int, error) {
	if d.recheckAfter > 0 && !d.rechecked && time.Since(d.started) > d.recheckAfter {
		d.rechecked = true
		// Only a revoke mid-transfer aborts the stream; a token expiring
		// (or being consumed by this very job) does not.
		if _, err := d.tokens.Verify(context.Background(), d.tokenID); errors.Is(err, ErrTokenRevoked) {
			return 0, ErrTokenRevoked
		}
	}

	n, err := d.file.Read(p)
	d.read += int64(n)
	return n, err
}

func (d *Delivery) Close() error {
	d.closeOnce.Do(func() {
		d.file.Close()
		os.RemoveAll(d.dir)
		d.slot.Release()
		if d.read >= d.Size {
			d.job.transition(JobSucceeded)
			log.Printf("job %s: delivered %d bytes", d.job.id, d.read)
		} else {
			d.job.transition(JobCancelled)
			log.Printf("job %s: transfer aborted after %d of %d bytes", d.job.id, d.read, d.Size)
		}
	})
	return nil
}
