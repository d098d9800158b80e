package progress

import (
	"errors"
	"sort"
	"sync"
	"time"

	"hls-downloader/internal/hls"
)

var (
	// ErrDownloadEnded is returned when progress is reported for a download
	// that has already been ended.
	ErrDownloadEnded = errors.New("download has ended")

	// ErrRenditionEnded is returned when a segment is reported for a
	// rendition that has already been ended.
	ErrRenditionEnded = errors.New("rendition has ended")
)

// Tracker is a concurrency-safe record of segment progress per download
// and rendition. It uses a Store for state; by default an InMemoryStore.
type Tracker struct {
	mu    sync.RWMutex
	store Store
}

// NewTracker returns a Tracker backed by a fresh in-memory store.
func NewTracker() *Tracker {
	return NewTrackerWithStore(NewInMemoryStore())
}

// NewTrackerWithStore returns a Tracker that uses the given Store.
func NewTrackerWithStore(store Store) *Tracker {
	return &Tracker{store: store}
}

// Begin records that rendition of download id has total files to fetch.
// The download and rendition are created when missing.
func (t *Tracker) Begin(id DownloadID, rendition Rendition, total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.openLocked(id, rendition)
	if err != nil {
		return err
	}
	r.Total = total
	return nil
}

// RegisterSegment records a completed file. A repeated index is ignored.
func (t *Tracker) RegisterSegment(id DownloadID, rendition Rendition, seg Segment) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.openLocked(id, rendition)
	if err != nil {
		return err
	}
	if _, exists := r.Segments[seg.Index]; exists {
		return nil
	}
	if seg.CompletedAt.IsZero() {
		seg.CompletedAt = time.Now().UTC()
	}
	r.Segments[seg.Index] = seg
	return nil
}

// End marks one rendition as complete. Ending an unknown rendition is a
// no-op.
func (t *Tracker) End(id DownloadID, rendition Rendition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.store.Rendition(id, rendition, false); ok {
		r.Ended = true
	}
}

// EndDownload marks a download and all its renditions as ended.
func (t *Tracker) EndDownload(id DownloadID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.store.Download(id, false)
	if !ok || d.Ended {
		return
	}
	d.Ended = true
	for _, r := range d.Renditions {
		r.Ended = true
	}
}

// Snapshot returns the progress of one rendition with its segments ordered
// by index. ok is false when the download or rendition is unknown.
func (t *Tracker) Snapshot(id DownloadID, rendition Rendition) (snap RenditionSnapshot, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.store.Rendition(id, rendition, false)
	if !ok {
		return RenditionSnapshot{}, false
	}

	snap = summarise(r)
	if len(r.Segments) == 0 {
		return snap, true
	}
	indexes := make([]int, 0, len(r.Segments))
	for i := range r.Segments {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	snap.Segments = make([]Segment, 0, len(indexes))
	for _, i := range indexes {
		snap.Segments = append(snap.Segments, r.Segments[i])
	}
	return snap, true
}

// Downloads summarises every known download, ordered by id.
func (t *Tracker) Downloads() []DownloadSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []DownloadSnapshot
	t.store.Each(func(d *DownloadState) {
		ds := DownloadSnapshot{ID: d.ID, Ended: d.Ended, Renditions: make([]RenditionSnapshot, 0, len(d.Renditions))}
		for _, r := range d.Renditions {
			ds.Renditions = append(ds.Renditions, summarise(r))
		}
		sort.Slice(ds.Renditions, func(i, j int) bool { return ds.Renditions[i].Rendition < ds.Renditions[j].Rendition })
		out = append(out, ds)
	})
	return out
}

// ActiveCount returns the number of downloads that are not ended.
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	t.store.Each(func(d *DownloadState) {
		if !d.Ended {
			n++
		}
	})
	return n
}

// openLocked returns the rendition progress may be recorded on. Caller
// must hold t.mu in write mode.
func (t *Tracker) openLocked(id DownloadID, rendition Rendition) (*RenditionState, error) {
	d, _ := t.store.Download(id, true)
	if d.Ended {
		return nil, ErrDownloadEnded
	}
	r, _ := t.store.Rendition(id, rendition, true)
	if r.Ended {
		return nil, ErrRenditionEnded
	}
	return r, nil
}

// Observer returns an hls.Observer that reports a Fetcher's progress for
// download id into t.
func (t *Tracker) Observer(id DownloadID) hls.Observer {
	return observer{t: t, id: id}
}

type observer struct {
	t  *Tracker
	id DownloadID
}

func (o observer) Begin(rendition string, total int) {
	_ = o.t.Begin(o.id, Rendition(rendition), total)
}

func (o observer) SegmentDone(rendition string, r hls.Result) {
	_ = o.t.RegisterSegment(o.id, Rendition(rendition), Segment{
		Index:    r.Index,
		Name:     r.Name,
		Bytes:    r.Bytes,
		Skipped:  r.Skipped,
		Attempts: r.Attempts,
	})
}

func (o observer) End(rendition string) {
	o.t.End(o.id, Rendition(rendition))
}

func summarise(r *RenditionState) RenditionSnapshot {
	s := RenditionSnapshot{Rendition: r.ID, Total: r.Total, Ended: r.Ended}
	for _, seg := range r.Segments {
		s.Done++
		if seg.Skipped {
			s.Skipped++
		}
		s.Bytes += seg.Bytes
	}
	for {
		if _, ok := r.Segments[s.Contiguous]; !ok {
			break
		}
		s.Contiguous++
	}
	return s
}
