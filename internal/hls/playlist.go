package hls

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/grafov/m3u8"
)

// mediaSegments returns the populated segments of pl in playlist order.
// The Segments slice of a decoded playlist is padded with nils up to its
// capacity.
func mediaSegments(pl *m3u8.MediaPlaylist) []*m3u8.MediaSegment {
	out := make([]*m3u8.MediaSegment, 0, pl.Count())
	for _, seg := range pl.Segments {
		if seg != nil {
			out = append(out, seg)
		}
	}
	return out
}

// alternatives flattens the renditions grafov attaches to each variant,
// keeping the order in which they appeared.
func alternatives(master *m3u8.MasterPlaylist) []*m3u8.Alternative {
	var out []*m3u8.Alternative
	seen := make(map[*m3u8.Alternative]bool)
	for _, v := range master.Variants {
		for _, alt := range v.Alternatives {
			if alt == nil || seen[alt] {
				continue
			}
			seen[alt] = true
			out = append(out, alt)
		}
	}
	return out
}

// hoistMedia moves every #EXT-X-MEDIA line ahead of the first variant.
// grafov attaches rendition tags to the variant that follows them and drops
// those after the last variant, while a master may list them anywhere.
func hoistMedia(body []byte) []byte {
	lines := bytes.SplitAfter(body, []byte("\n"))
	first := -1
	var media, rest [][]byte
	for _, line := range lines {
		trimmed := bytes.TrimSpace(line)
		switch {
		case bytes.HasPrefix(trimmed, []byte("#EXT-X-MEDIA:")):
			if len(line) == len(bytes.TrimRight(line, "\r\n")) {
				line = append(line[:len(line):len(line)], '\n')
			}
			media = append(media, line)
			continue
		case first < 0 && (bytes.HasPrefix(trimmed, []byte("#EXT-X-STREAM-INF:")) || bytes.HasPrefix(trimmed, []byte("#EXT-X-I-FRAME-STREAM-INF:"))):
			first = len(rest)
		}
		rest = append(rest, line)
	}
	if first < 0 || len(media) == 0 {
		return body
	}

	out := make([]byte, 0, len(body)+len(media))
	for _, line := range rest[:first] {
		out = append(out, line...)
	}
	for _, line := range media {
		out = append(out, line...)
	}
	for _, line := range rest[first:] {
		out = append(out, line...)
	}
	return out
}

func decodeMaster(src string, body []byte) (*m3u8.MasterPlaylist, error) {
	pl, kind, err := m3u8.DecodeFrom(bytes.NewReader(hoistMedia(body)), true)
	if err != nil {
		return nil, &ParsePlaylistError{URL: src, Err: err}
	}
	master, ok := pl.(*m3u8.MasterPlaylist)
	if kind != m3u8.MASTER || !ok {
		return nil, &ParsePlaylistError{URL: src, Err: fmt.Errorf("expected a master playlist")}
	}
	return master, nil
}

func decodeMedia(src string, body []byte) (*m3u8.MediaPlaylist, error) {
	pl, kind, err := m3u8.DecodeFrom(bytes.NewReader(body), true)
	if err != nil {
		return nil, &ParsePlaylistError{URL: src, Err: err}
	}
	media, ok := pl.(*m3u8.MediaPlaylist)
	if kind != m3u8.MEDIA || !ok {
		return nil, &ParsePlaylistError{URL: src, Err: fmt.Errorf("expected a media playlist")}
	}
	return media, nil
}

func resolveURI(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if base == nil {
		return u.String(), nil
	}
	return base.ResolveReference(u).String(), nil
}

// LocalName derives the on-disk file name of a segment: the last path
// element of its URL without the query string. If ext is set and the name
// does not already end in it, ext is appended so the transcoder sees the
// extension it was told to accept.
func LocalName(rawURL, ext string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("no file name in %q", rawURL)
	}
	if ext != "" && !strings.HasSuffix(name, "."+ext) {
		name += "." + ext
	}
	return name, nil
}
