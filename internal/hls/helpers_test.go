package hls

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"hls-downloader/internal/platform/httpx"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const (
	testReferer   = "https://www.example.jp"
	testUserAgent = "hlsdl-test"
)

// testCDN serves fixed files and refuses requests without the site headers.
type testCDN struct {
	mu    sync.Mutex
	files map[string][]byte
	short map[string]int
	hits  map[string]int
	srv   *httptest.Server
}

func newTestCDN(t *testing.T) *testCDN {
	t.Helper()
	c := &testCDN{
		files: make(map[string][]byte),
		short: make(map[string]int),
		hits:  make(map[string]int),
	}
	r := chi.NewRouter()
	r.Get("/*", c.serve)
	c.srv = httptest.NewServer(r)
	t.Cleanup(c.srv.Close)
	return c
}

func (c *testCDN) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Referer") != testReferer || r.Header.Get("Origin") != testReferer || r.Header.Get("User-Agent") != testUserAgent {
		http.Error(w, strings.Repeat("forbidden ", 20), http.StatusForbidden)
		return
	}

	c.mu.Lock()
	c.hits[r.URL.Path]++
	body, ok := c.files[r.URL.Path]
	short := c.short[r.URL.Path] > 0
	if short {
		c.short[r.URL.Path]--
	}
	c.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if short {
		w.Write([]byte("busy"))
		return
	}
	w.Write(body)
}

func (c *testCDN) put(path string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[path] = body
}

func (c *testCDN) failShort(path string, times int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.short[path] = times
}

func (c *testCDN) hitsFor(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[path]
}

func (c *testCDN) url(path string) string {
	return c.srv.URL + path
}

func newTestClient(t *testing.T, tr http.RoundTripper) *httpx.Client {
	t.Helper()
	c, err := httpx.New(httpx.Options{
		UserAgent: testUserAgent,
		Referer:   testReferer,
		Origin:    testReferer,
		Transport: tr,
	}, nil)
	require.NoError(t, err)
	return c
}

// fakeGetter serves GetBytes from a map and fails on anything else.
type fakeGetter map[string][]byte

func (f fakeGetter) GetBytes(_ context.Context, u string) ([]byte, error) {
	b, ok := f[u]
	if !ok {
		return nil, fmt.Errorf("unexpected fetch of %s", u)
	}
	return b, nil
}

// recordingObserver collects Observer callbacks.
type recordingObserver struct {
	mu    sync.Mutex
	begun map[string]int
	done  map[string][]Result
	ended map[string]bool
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{begun: map[string]int{}, done: map[string][]Result{}, ended: map[string]bool{}}
}

func (o *recordingObserver) Begin(rendition string, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.begun[rendition] = total
}

func (o *recordingObserver) SegmentDone(rendition string, r Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done[rendition] = append(o.done[rendition], r)
}

func (o *recordingObserver) End(rendition string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended[rendition] = true
}
