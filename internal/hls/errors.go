package hls

import (
	"errors"
	"fmt"
)

var (
	// ErrNoVariant is returned when a master playlist lists no variant stream.
	ErrNoVariant = errors.New("master playlist has no variant stream")

	// ErrNoAlternative is returned when a master playlist lists no
	// alternative rendition to take the audio from.
	ErrNoAlternative = errors.New("master playlist has no alternative rendition")
)

// DownloadError marks a segment response that looked like an error page
// rather than media. It is the only failure the fetcher retries.
type DownloadError struct {
	URL           string
	ContentLength int64
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: response too short (%d bytes)", e.URL, e.ContentLength)
}

// PaddingError reports ciphertext that is not block aligned or whose final
// block does not carry valid PKCS#7 padding.
type PaddingError struct {
	Reason string
}

func (e *PaddingError) Error() string {
	return "invalid padding: " + e.Reason
}

// DecryptError reports unusable key material or a segment that failed to
// decrypt.
type DecryptError struct {
	URL string
	Err error
}

func (e *DecryptError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("decrypt: %v", e.Err)
	}
	return fmt.Sprintf("decrypt %s: %v", e.URL, e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }

// ParsePlaylistError reports an M3U8 document that could not be decoded or
// was of the wrong kind.
type ParsePlaylistError struct {
	URL string
	Err error
}

func (e *ParsePlaylistError) Error() string {
	return fmt.Sprintf("parse playlist %s: %v", e.URL, e.Err)
}

func (e *ParsePlaylistError) Unwrap() error { return e.Err }
