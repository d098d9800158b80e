package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"hls-downloader/internal/platform/httpx"
	"hls-downloader/internal/platform/logger"
	"hls-downloader/internal/platform/metrics"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers          = 4
	DefaultSegmentDelay     = 250 * time.Millisecond
	DefaultStaggerDelay     = 250 * time.Millisecond
	DefaultMinContentLength = 100
)

// Doer sends an HTTP request. *httpx.Client satisfies it and adds the
// Referer, Origin and User-Agent headers the CDN requires.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer is told about the progress of each Run.
type Observer interface {
	Begin(rendition string, total int)
	SegmentDone(rendition string, r Result)
	End(rendition string)
}

// FetcherOptions tunes the worker pool.
type FetcherOptions struct {
	Workers int
	// Delay is slept by a worker after each segment to stay under the
	// CDN's rate limits.
	Delay time.Duration
	// Stagger offsets the first request of worker i by i*Stagger.
	Stagger time.Duration
	// MinContentLength is the smallest response accepted as media.
	MinContentLength int64
	// MaxAttempts bounds retries of short responses per segment. Zero
	// retries forever.
	MaxAttempts int
}

func (o FetcherOptions) withDefaults() FetcherOptions {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.MinContentLength <= 0 {
		o.MinContentLength = DefaultMinContentLength
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.Stagger < 0 {
		o.Stagger = 0
	}
	return o
}

// Job is one file to fetch. Index identifies the job within a Run so that
// results, which arrive in any order, can be matched back.
type Job struct {
	Index int
	URL   string
	Path  string

	attempts int
}

// Result reports a job whose file is complete on disk.
type Result struct {
	Index    int
	Name     string
	Path     string
	Bytes    int64
	Skipped  bool
	Attempts int
}

// Fetcher downloads segments with a fixed pool of workers.
type Fetcher struct {
	c       Doer
	opts    FetcherOptions
	log     *slog.Logger
	metrics *metrics.Metrics
	obs     Observer
}

// NewFetcher returns a Fetcher. m and obs may be nil.
func NewFetcher(c Doer, opts FetcherOptions, log *slog.Logger, m *metrics.Metrics, obs Observer) *Fetcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Fetcher{c: c, opts: opts.withDefaults(), log: log, metrics: m, obs: obs}
}

// FetchAndStore downloads url into outPath, decrypting it first when km is
// set. If outPath already exists nothing is requested and skipped is true.
//
// A response shorter than MinContentLength yields *DownloadError, which
// callers may retry. Files are written through a pending file and renamed
// into place, so an existing outPath is always complete.
func (f *Fetcher) FetchAndStore(ctx context.Context, url, outPath string, km KeyMaterial) (n int64, skipped bool, err error) {
	if _, err := os.Stat(outPath); err == nil {
		return 0, true, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.c.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	redacted := httpx.Redact(url)
	if resp.ContentLength >= 0 && resp.ContentLength < f.opts.MinContentLength {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, false, &DownloadError{URL: redacted, ContentLength: resp.ContentLength}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, false, &httpx.StatusError{Method: http.MethodGet, URL: redacted, StatusCode: resp.StatusCode}
	}

	if km.Encrypted() {
		n, err = f.storeDecrypted(resp.Body, redacted, outPath, km)
	} else {
		n, err = f.storePlain(resp.Body, redacted, outPath)
	}
	return n, false, err
}

func (f *Fetcher) storePlain(body io.Reader, url, outPath string) (int64, error) {
	pending, err := renameio.NewPendingFile(outPath, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", outPath, err)
	}
	defer pending.Cleanup()

	n, err := io.Copy(pending, body)
	if err != nil {
		return n, &httpx.TransportError{Method: http.MethodGet, URL: url, Err: err}
	}
	if n < f.opts.MinContentLength {
		return n, &DownloadError{URL: url, ContentLength: n}
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return n, fmt.Errorf("commit %s: %w", outPath, err)
	}
	return n, nil
}

func (f *Fetcher) storeDecrypted(body io.Reader, url, outPath string, km KeyMaterial) (int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, &httpx.TransportError{Method: http.MethodGet, URL: url, Err: err}
	}
	if int64(len(data)) < f.opts.MinContentLength {
		return 0, &DownloadError{URL: url, ContentLength: int64(len(data))}
	}
	plain, err := Decrypt(data, km.Key[:], km.IV[:])
	if err != nil {
		return 0, &DecryptError{URL: url, Err: err}
	}
	if err := renameio.WriteFile(outPath, plain, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", outPath, err)
	}
	return int64(len(plain)), nil
}

// Run fetches every job with the worker pool and returns one Result per
// job, sorted by Index. Short responses are put back on the queue; any
// other failure cancels the remaining work and is returned. Files already
// written stay on disk so a later Run can resume.
func (f *Fetcher) Run(ctx context.Context, rendition string, jobs []Job, km KeyMaterial) ([]Result, error) {
	if f.obs != nil {
		f.obs.Begin(rendition, len(jobs))
	}
	if len(jobs) == 0 {
		if f.obs != nil {
			f.obs.End(rendition)
		}
		return nil, nil
	}

	// Sized so that a worker re-enqueueing a job never blocks.
	pending := make(chan Job, len(jobs))
	done := make(chan Result, len(jobs))
	for _, j := range jobs {
		pending <- j
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	workers := min(f.opts.Workers, len(jobs))
	for id := range workers {
		g.Go(func() error {
			return f.work(gctx, id, rendition, km, pending, done)
		})
	}

	results := make([]Result, 0, len(jobs))
	for len(results) < len(jobs) {
		select {
		case r := <-done:
			results = append(results, r)
			if f.obs != nil {
				f.obs.SegmentDone(rendition, r)
			}
		case <-gctx.Done():
			cancel()
			if err := g.Wait(); err != nil {
				return results, err
			}
			return results, ctx.Err()
		}
	}

	// Workers loop forever; stop them now that every job is accounted for.
	cancel()
	if err := g.Wait(); err != nil {
		return results, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	if f.obs != nil {
		f.obs.End(rendition)
	}
	f.log.Info("rendition complete", slog.String("rendition", rendition), slog.Int("segments", len(results)))
	return results, nil
}

func (f *Fetcher) work(ctx context.Context, id int, rendition string, km KeyMaterial, pending chan Job, done chan<- Result) error {
	if !sleep(ctx, time.Duration(id)*f.opts.Stagger) {
		return nil
	}
	for {
		var job Job
		select {
		case <-ctx.Done():
			return nil
		case job = <-pending:
		}

		job.attempts++
		name := filepath.Base(job.Path)
		n, skipped, err := f.FetchAndStore(ctx, job.URL, job.Path, km)

		var de *DownloadError
		switch {
		case errors.As(err, &de):
			if f.opts.MaxAttempts > 0 && job.attempts >= f.opts.MaxAttempts {
				return fmt.Errorf("segment %s: giving up after %d attempts: %w", name, job.attempts, err)
			}
			f.metrics.SegmentRetried(rendition)
			f.log.Warn("short segment response, retrying",
				slog.String("rendition", rendition),
				slog.String("segment", name),
				slog.Int64("content_length", de.ContentLength),
				slog.Int("attempt", job.attempts))
			pending <- job
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("segment %s: %w", name, err)
		default:
			if skipped {
				f.metrics.SegmentSkipped(rendition)
				f.log.Debug("segment already on disk", slog.String("rendition", rendition), slog.String("segment", name))
			} else {
				f.metrics.SegmentFetched(rendition, n)
				f.log.Debug("segment fetched", slog.String("rendition", rendition), slog.String("segment", name), slog.Int64("bytes", n))
			}
			done <- Result{Index: job.Index, Name: name, Path: job.Path, Bytes: n, Skipped: skipped, Attempts: job.attempts}
		}

		if !sleep(ctx, f.opts.Delay) {
			return nil
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
