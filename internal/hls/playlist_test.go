package hls

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

func TestLocalName(t *testing.T) {
	tests := []struct {
		url, ext, want string
	}{
		{"https://cdn.example/v/seg0.cmfv?x=1", "cmfv", "seg0.cmfv"},
		{"https://cdn.example/v/init.cmfv", "cmfv", "init.cmfv"},
		{"https://cdn.example/a/1.m4s?sig=abc", "cmfa", "1.m4s.cmfa"},
		{"https://cdn.example/a/seg.cmfa", "", "seg.cmfa"},
	}
	for _, tt := range tests {
		got, err := LocalName(tt.url, tt.ext)
		if err != nil {
			t.Errorf("LocalName(%q): %v", tt.url, err)
			continue
		}
		if got != tt.want {
			t.Errorf("LocalName(%q, %q) = %q, want %q", tt.url, tt.ext, got, tt.want)
		}
	}

	if _, err := LocalName("https://cdn.example/", "cmfv"); err == nil {
		t.Error("expected an error for a URL without a file name")
	}
}

func TestResolveURI(t *testing.T) {
	base, _ := url.Parse("https://cdn.example/hls/master.m3u8?token=t")
	got, err := resolveURI(base, "video/v.m3u8?x=1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://cdn.example/hls/video/v.m3u8?x=1" {
		t.Errorf("resolveURI = %s", got)
	}
	got, _ = resolveURI(base, "https://other.example/a.m3u8")
	if got != "https://other.example/a.m3u8" {
		t.Errorf("absolute reference changed: %s", got)
	}
}

func TestDecode_wrong_kind(t *testing.T) {
	media := "#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXTINF:6.0,\nseg0.cmfv\n#EXT-X-ENDLIST\n"
	_, err := decodeMaster("m", []byte(media))
	var pe *ParsePlaylistError
	if !errors.As(err, &pe) {
		t.Errorf("decodeMaster(media) error = %v, want ParsePlaylistError", err)
	}

	_, err = decodeMedia("m", []byte("<html>not a playlist</html>"))
	if !errors.As(err, &pe) {
		t.Errorf("decodeMedia(html) error = %v, want ParsePlaylistError", err)
	}
}

func TestHoistMedia(t *testing.T) {
	t.Run("media_after_last_variant", func(t *testing.T) {
		body := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nv.m3u8\n#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=\"a\",NAME=\"A\",URI=\"a.m3u8\""
		master, err := decodeMaster("m", []byte(body))
		if err != nil {
			t.Fatal(err)
		}
		alts := alternatives(master)
		if len(alts) != 1 || alts[0].URI != "a.m3u8" {
			t.Fatalf("alternatives = %+v", alts)
		}
		if len(master.Variants) != 1 || master.Variants[0].URI != "v.m3u8" {
			t.Errorf("variants = %+v", master.Variants)
		}
	})

	t.Run("media_between_variants_keeps_order", func(t *testing.T) {
		body := "#EXTM3U\r\n#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=\"a\",NAME=\"First\",URI=\"a1.m3u8\"\r\n" +
			"#EXT-X-STREAM-INF:BANDWIDTH=2\r\nv1.m3u8\r\n" +
			"#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=\"b\",NAME=\"Second\",URI=\"a2.m3u8\"\r\n" +
			"#EXT-X-STREAM-INF:BANDWIDTH=1\r\nv2.m3u8\r\n"
		got := string(hoistMedia([]byte(body)))
		first := strings.Index(got, "#EXT-X-STREAM-INF")
		if strings.LastIndex(got, "#EXT-X-MEDIA") > first {
			t.Errorf("media tags not hoisted:\n%s", got)
		}
		if strings.Index(got, "a1.m3u8") > strings.Index(got, "a2.m3u8") {
			t.Errorf("media order changed:\n%s", got)
		}
		if strings.Count(got, "v1.m3u8") != 1 || strings.Count(got, "v2.m3u8") != 1 {
			t.Errorf("variants lost:\n%s", got)
		}
	})

	t.Run("unchanged_without_variants", func(t *testing.T) {
		body := "#EXTM3U\n#EXT-X-TARGETDURATION:6\n"
		if got := string(hoistMedia([]byte(body))); got != body {
			t.Errorf("hoistMedia changed %q to %q", body, got)
		}
	})
}
