package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"hls-downloader/internal/platform/logger"
)

const (
	DefaultBinary = "ffmpeg"
	// DefaultKillTimeout is how long ffmpeg gets to finish the output file
	// after an interrupt before it is killed.
	DefaultKillTimeout = 10 * time.Second

	stderrTail = 4096
)

// RunError reports an ffmpeg process that exited unsuccessfully.
type RunError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RunError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
		msg = msg[i+1:]
	}
	if msg == "" {
		return fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, msg)
}

func (e *RunError) Unwrap() error { return e.Err }

// Runner hands a local HLS tree to ffmpeg and remuxes it into one file.
type Runner struct {
	binary      string
	killTimeout time.Duration
	log         *slog.Logger
}

// NewRunner returns a Runner for the given ffmpeg binary; empty means
// "ffmpeg" from PATH.
func NewRunner(binary string, log *slog.Logger) *Runner {
	if binary == "" {
		binary = DefaultBinary
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{binary: binary, killTimeout: DefaultKillTimeout, log: log}
}

// Args returns the ffmpeg arguments for converting input into output.
// Only local files may be opened and segment extensions are not checked.
// An existing output is never overwritten.
func (r *Runner) Args(input, output string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-n",
		"-allowed_extensions", "ALL",
		"-protocol_whitelist", "file",
		"-i", input,
		"-g", "15",
		"-progress", "pipe:1",
		"-nostats",
		output,
	}
}

// Run executes ffmpeg and waits for it. Progress is logged at debug level.
// Canceling ctx interrupts ffmpeg, then kills it after the kill timeout.
func (r *Runner) Run(ctx context.Context, input, output string) error {
	cmd := exec.CommandContext(ctx, r.binary, r.Args(input, output)...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = r.killTimeout

	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.binary, err)
	}
	r.log.Info("transcode started", slog.String("input", input), slog.String("output", output))

	r.readProgress(stdout)
	err = cmd.Wait()
	if err == nil {
		r.log.Info("transcode finished", slog.String("output", output), slog.Duration("elapsed", time.Since(start)))
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("transcode %s: %w", output, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &RunError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String(), Err: err}
	}
	return fmt.Errorf("transcode %s: %w", output, err)
}

// readProgress consumes the key=value blocks ffmpeg writes for -progress.
func (r *Runner) readProgress(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	var outTime string
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch k {
		case "out_time":
			outTime = v
		case "progress":
			r.log.Debug("transcode progress", slog.String("out_time", outTime), slog.String("state", v))
		}
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
