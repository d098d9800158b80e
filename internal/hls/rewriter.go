package hls

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"hls-downloader/internal/platform/httpx"
	"hls-downloader/internal/platform/logger"

	"github.com/google/renameio/v2"
	"github.com/grafov/m3u8"
)

// File names of the local playlist tree.
const (
	MasterPlaylistName = "master.m3u8"
	VideoPlaylistName  = "video.m3u8"
	AudioPlaylistName  = "audio.m3u8"
)

// Rendition names used in logs, metrics and progress.
const (
	RenditionVideo = "video"
	RenditionAudio = "audio"
)

// RewriterOptions sets the extensions enforced on local segment names.
type RewriterOptions struct {
	VideoExt string
	AudioExt string
}

// Rewriter mirrors a remote master playlist, and the first video and audio
// renditions it lists, into a directory of local files.
type Rewriter struct {
	c       BytesGetter
	fetcher *Fetcher
	opts    RewriterOptions
	log     *slog.Logger
}

// NewRewriter returns a Rewriter using c for playlists and keys and f for
// segments. Empty extensions default to cmfv and cmfa.
func NewRewriter(c BytesGetter, f *Fetcher, opts RewriterOptions, log *slog.Logger) *Rewriter {
	if opts.VideoExt == "" {
		opts.VideoExt = "cmfv"
	}
	if opts.AudioExt == "" {
		opts.AudioExt = "cmfa"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Rewriter{c: c, fetcher: f, opts: opts, log: log}
}

// DownloadPlaylist fetches masterURL, downloads every segment of variant 0
// and alternative 0 into destDir and writes master.m3u8, video.m3u8 and
// audio.m3u8 pointing at the local files. The local master lists only the
// two mirrored renditions. It returns the name of the local
// master playlist, relative to destDir.
//
// Any error aborts the whole operation; segments already written are kept
// and skipped on the next call.
func (r *Rewriter) DownloadPlaylist(ctx context.Context, masterURL, destDir string) (string, error) {
	base, err := url.Parse(masterURL)
	if err != nil {
		return "", fmt.Errorf("master url: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", destDir, err)
	}

	body, err := r.c.GetBytes(ctx, masterURL)
	if err != nil {
		return "", fmt.Errorf("fetch master playlist: %w", err)
	}
	master, err := decodeMaster(httpx.Redact(masterURL), body)
	if err != nil {
		return "", err
	}

	if len(master.Variants) == 0 || master.Variants[0] == nil || master.Variants[0].URI == "" {
		return "", ErrNoVariant
	}
	video := master.Variants[0]

	var audio *m3u8.Alternative
	for _, alt := range alternatives(master) {
		if alt.URI != "" {
			audio = alt
			break
		}
	}
	if audio == nil {
		return "", ErrNoAlternative
	}

	r.log.Info("renditions selected",
		slog.String("video_codecs", video.Codecs),
		slog.String("video_resolution", video.Resolution),
		slog.Uint64("video_bandwidth", uint64(video.Bandwidth)),
		slog.String("audio_group", audio.GroupId),
		slog.String("audio_name", audio.Name))

	renditions := []struct {
		name string
		uri  *string
		ext  string
		file string
	}{
		{RenditionVideo, &video.URI, r.opts.VideoExt, VideoPlaylistName},
		{RenditionAudio, &audio.URI, r.opts.AudioExt, AudioPlaylistName},
	}
	for _, rd := range renditions {
		if err := r.mirrorMedia(ctx, base, *rd.uri, rd.name, rd.ext, filepath.Join(destDir, rd.file)); err != nil {
			return "", fmt.Errorf("%s: %w", rd.name, err)
		}
		*rd.uri = rd.file
	}

	// Other renditions still point at the remote CDN, which a file-only
	// reader cannot open.
	master.Variants = []*m3u8.Variant{video}
	video.Alternatives = []*m3u8.Alternative{audio}
	if video.Audio != "" {
		video.Audio = audio.GroupId
	}

	master.ResetCache()
	if err := writePlaylist(filepath.Join(destDir, MasterPlaylistName), master.Encode().Bytes()); err != nil {
		return "", err
	}
	return MasterPlaylistName, nil
}

// mirrorMedia downloads one media playlist and its segments and writes the
// rewritten playlist to outFile.
func (r *Rewriter) mirrorMedia(ctx context.Context, master *url.URL, ref, rendition, ext, outFile string) error {
	raw, err := resolveURI(master, ref)
	if err != nil {
		return &ParsePlaylistError{URL: ref, Err: err}
	}
	plURL, err := url.Parse(raw)
	if err != nil {
		return &ParsePlaylistError{URL: ref, Err: err}
	}

	body, err := r.c.GetBytes(ctx, raw)
	if err != nil {
		return fmt.Errorf("fetch media playlist: %w", err)
	}
	pl, err := decodeMedia(httpx.Redact(raw), body)
	if err != nil {
		return err
	}

	km, err := ResolveKey(ctx, r.c, pl, plURL)
	if err != nil {
		return err
	}
	if km.Encrypted() {
		r.log.Debug("key resolved", slog.String("rendition", rendition), slog.String("method", km.Method))
	}

	if err := r.fetchSegments(ctx, pl, plURL, rendition, ext, filepath.Dir(outFile), km); err != nil {
		return err
	}

	pl.ResetCache()
	return writePlaylist(outFile, pl.Encode().Bytes())
}

// fetchSegments queues every segment and init map of pl and, once all are
// on disk, points their URIs at the local files. Jobs are joined back to
// their playlist slots by index, never by completion order.
func (r *Rewriter) fetchSegments(ctx context.Context, pl *m3u8.MediaPlaylist, plURL *url.URL, rendition, ext, destDir string, km KeyMaterial) error {
	var (
		jobs   []Job
		slots  [][]*string
		byURL  = make(map[string]int)
		byName = make(map[string]string)
	)
	add := func(ref *string) error {
		abs, err := resolveURI(plURL, *ref)
		if err != nil {
			return &ParsePlaylistError{URL: *ref, Err: err}
		}
		if i, ok := byURL[abs]; ok {
			slots[i] = append(slots[i], ref)
			return nil
		}
		name, err := LocalName(abs, ext)
		if err != nil {
			return &ParsePlaylistError{URL: abs, Err: err}
		}
		if other, ok := byName[name]; ok {
			return &ParsePlaylistError{URL: abs, Err: fmt.Errorf("local name %s already used by %s", name, other)}
		}
		byName[name] = abs
		byURL[abs] = len(jobs)
		jobs = append(jobs, Job{Index: len(jobs), URL: abs, Path: filepath.Join(destDir, name)})
		slots = append(slots, []*string{ref})
		return nil
	}

	segs := mediaSegments(pl)
	if pl.Map != nil {
		if err := add(&pl.Map.URI); err != nil {
			return err
		}
	}
	for _, seg := range segs {
		if seg.Map != nil {
			if err := add(&seg.Map.URI); err != nil {
				return err
			}
		}
		if err := add(&seg.URI); err != nil {
			return err
		}
	}

	results, err := r.fetcher.Run(ctx, rendition, jobs, km)
	if err != nil {
		return err
	}
	for _, res := range results {
		for _, p := range slots[res.Index] {
			*p = res.Name
		}
	}

	// A segment map identical to the playlist map would be written twice.
	if pl.Map != nil {
		for _, seg := range segs {
			if seg.Map != nil && seg.Map.URI == pl.Map.URI {
				seg.Map = pl.Map
			}
		}
	}
	return nil
}

func writePlaylist(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
