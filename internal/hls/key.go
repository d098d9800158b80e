package hls

import (
	"context"
	"crypto/aes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
)

const methodAES128 = "AES-128"

// BytesGetter fetches a small resource (a playlist or a key) in full.
type BytesGetter interface {
	GetBytes(ctx context.Context, url string) ([]byte, error)
}

// KeyMaterial is the key and IV shared by every encrypted segment of one
// media playlist. The zero value means the playlist is not encrypted.
type KeyMaterial struct {
	Method string
	URI    string
	Key    [aes.BlockSize]byte
	IV     [aes.BlockSize]byte
}

// Encrypted reports whether segments need decrypting.
func (k KeyMaterial) Encrypted() bool {
	return k.Method != ""
}

// ResolveKey finds the first segment carrying a key tag, downloads the key
// and decodes its IV. Key references are then removed from the playlist:
// segments are written to disk already decrypted, so a local reader must
// not try to decrypt them again.
//
// A playlist without keys yields the zero KeyMaterial.
func ResolveKey(ctx context.Context, c BytesGetter, pl *m3u8.MediaPlaylist, base *url.URL) (KeyMaterial, error) {
	segs := mediaSegments(pl)

	var first *m3u8.MediaSegment
	for _, seg := range segs {
		if seg.Key != nil && seg.Key.Method != "" && seg.Key.Method != "NONE" {
			first = seg
			break
		}
	}
	if first == nil {
		clearKeys(pl, segs)
		return KeyMaterial{}, nil
	}

	key := first.Key
	if key.Method != methodAES128 {
		return KeyMaterial{}, &DecryptError{Err: fmt.Errorf("unsupported key method %q", key.Method)}
	}
	for _, seg := range segs {
		if seg.Key != nil && seg.Key.Method != "NONE" && seg.Key.URI != key.URI {
			return KeyMaterial{}, &DecryptError{Err: fmt.Errorf("key rotation is not supported (%s, %s)", key.URI, seg.Key.URI)}
		}
	}

	keyURL, err := resolveURI(base, key.URI)
	if err != nil {
		return KeyMaterial{}, &DecryptError{Err: fmt.Errorf("key uri: %w", err)}
	}

	km := KeyMaterial{Method: key.Method, URI: keyURL}
	if key.IV != "" {
		iv, err := ParseIV(key.IV)
		if err != nil {
			return KeyMaterial{}, &DecryptError{Err: err}
		}
		km.IV = iv
	} else {
		// Without an IV attribute the media sequence number is the IV.
		binary.BigEndian.PutUint64(km.IV[8:], first.SeqId)
	}

	raw, err := c.GetBytes(ctx, keyURL)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("fetch key: %w", err)
	}
	if len(raw) != aes.BlockSize {
		return KeyMaterial{}, &DecryptError{URL: keyURL, Err: fmt.Errorf("key is %d bytes, want %d", len(raw), aes.BlockSize)}
	}
	copy(km.Key[:], raw)

	clearKeys(pl, segs)
	return km, nil
}

// ParseIV decodes a 0x-prefixed hex IV attribute into 16 bytes.
func ParseIV(s string) ([aes.BlockSize]byte, error) {
	var iv [aes.BlockSize]byte
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return iv, fmt.Errorf("decode iv: %w", err)
	}
	if len(b) != aes.BlockSize {
		return iv, fmt.Errorf("iv is %d bytes, want %d", len(b), aes.BlockSize)
	}
	copy(iv[:], b)
	return iv, nil
}

func clearKeys(pl *m3u8.MediaPlaylist, segs []*m3u8.MediaSegment) {
	pl.Key = nil
	for _, seg := range segs {
		seg.Key = nil
	}
}
