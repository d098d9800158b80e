package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"hls-downloader/internal/hls"
	"hls-downloader/internal/platform/config"
	"hls-downloader/internal/platform/httpx"
	"hls-downloader/internal/platform/logger"
	"hls-downloader/internal/platform/metrics"
	"hls-downloader/internal/progress"
	"hls-downloader/internal/session"
	"hls-downloader/internal/transcode"

	"github.com/google/uuid"
)

const (
	shutdownTimeout       = 10 * time.Second
	responseHeaderTimeout = 30 * time.Second
)

var videoIDPrefixes = []string{"sm", "nm", "so"}

func main() {
	_ = config.Load()
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <video-id>...\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	tracker := progress.NewTracker()

	var srv *http.Server
	if cfg.StatusAddr != "" {
		srv = &http.Server{Addr: cfg.StatusAddr, Handler: progress.NewHandler(tracker, log, met).Routes()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status server error", "error", err)
			}
		}()
		log.Info("status server starting", "addr", cfg.StatusAddr)
	}

	client, err := httpx.New(httpx.Options{
		UserAgent:             cfg.UserAgent,
		Referer:               cfg.Referer,
		Origin:                cfg.Origin,
		ResponseHeaderTimeout: responseHeaderTimeout,
		RequestsPerSecond:     cfg.RequestsPerSecond,
	}, log)
	if err != nil {
		log.Error("http client", "error", err)
		os.Exit(1)
	}

	d := &downloader{
		cfg:     cfg,
		log:     log,
		metrics: met,
		client:  client,
		tracker: tracker,
		sessions: session.NewManager(client, session.Options{
			HeartbeatInterval: cfg.HeartbeatInterval,
		}, log, met),
		runner: transcode.NewRunner(cfg.FFmpegPath, log),
	}

	failed := 0
	for _, id := range os.Args[1:] {
		if ctx.Err() != nil {
			break
		}
		if !validVideoID(id) {
			log.Warn("skipping video id without sm, nm or so prefix", "video_id", id)
			continue
		}
		if err := d.download(ctx, id); err != nil {
			log.Error("download failed", "video_id", id, "error", err)
			failed++
		}
	}
	d.sessions.Stop()

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(sctx); err != nil {
			log.Error("shutdown error", "error", err)
		}
		cancel()
	}

	if ctx.Err() != nil {
		log.Info("interrupted")
		os.Exit(130)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

type downloader struct {
	cfg      config.Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	client   *httpx.Client
	tracker  *progress.Tracker
	sessions *session.Manager
	runner   *transcode.Runner
}

// download negotiates a session for id, mirrors its HLS tree into the temp
// directory and remuxes it into <OutputDir>/<id>.mp4.
func (d *downloader) download(ctx context.Context, id string) error {
	log := d.log.With("video_id", id, "run_id", uuid.NewString())

	out := filepath.Join(d.cfg.OutputDir, id+".mp4")
	if _, err := os.Stat(out); err == nil {
		log.Info("output exists, skipping", "output", out)
		return nil
	}

	ds, err := loadDelivery(d.cfg.SessionFile, id)
	if err != nil {
		return err
	}

	masterURL, hb, err := d.sessions.Negotiate(ctx, id, ds)
	if err != nil {
		return err
	}
	defer hb.Stop()
	log.Debug("master playlist", "url", httpx.Redact(masterURL))

	// A session the server has dropped cannot serve more segments.
	dctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-hb.Done():
			if err := hb.Err(); err != nil {
				cancel(err)
			}
		case <-dctx.Done():
		}
	}()

	tempDir := filepath.Join(d.cfg.TempDir, id)
	fetcher := hls.NewFetcher(d.client, hls.FetcherOptions{
		Workers:     d.cfg.Workers,
		Delay:       d.cfg.SegmentDelay,
		Stagger:     d.cfg.StaggerDelay,
		MaxAttempts: d.cfg.MaxAttempts,
	}, log, d.metrics, d.tracker.Observer(progress.DownloadID(id)))
	rw := hls.NewRewriter(d.client, fetcher, hls.RewriterOptions{}, log)

	master, err := rw.DownloadPlaylist(dctx, masterURL, tempDir)
	if err != nil {
		return withCause(dctx, err)
	}

	if err := os.MkdirAll(d.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	part := strings.TrimSuffix(out, ".mp4") + ".part.mp4"
	if err := os.Remove(part); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale %s: %w", part, err)
	}
	if err := d.runner.Run(dctx, filepath.Join(tempDir, master), part); err != nil {
		return withCause(dctx, err)
	}
	if err := os.Rename(part, out); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}

	hb.Stop()
	d.tracker.EndDownload(progress.DownloadID(id))
	log.Info("download complete", "output", out)

	if !d.cfg.KeepTemp {
		if err := os.RemoveAll(tempDir); err != nil {
			log.Warn("remove temp dir", "dir", tempDir, "error", err)
		}
	}
	return nil
}

// withCause prefers the heartbeat failure that canceled ctx over the
// context error it produced downstream.
func withCause(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	var he *session.HeartbeatError
	if errors.As(cause, &he) {
		return fmt.Errorf("%w (%v)", he, err)
	}
	return err
}

func validVideoID(id string) bool {
	for _, p := range videoIDPrefixes {
		if strings.HasPrefix(id, p) && len(id) > len(p) {
			return true
		}
	}
	return false
}

// loadDelivery reads the session descriptor for id. A "{id}" in path is
// replaced by the video id, so one file per video can be used.
func loadDelivery(path, id string) (session.DeliverySession, error) {
	path = strings.ReplaceAll(path, "{id}", id)
	b, err := os.ReadFile(path)
	if err != nil {
		return session.DeliverySession{}, fmt.Errorf("read session file: %w", err)
	}
	var ds session.DeliverySession
	if err := json.Unmarshal(b, &ds); err != nil {
		return session.DeliverySession{}, fmt.Errorf("decode session file %s: %w", path, err)
	}
	return ds, nil
}
