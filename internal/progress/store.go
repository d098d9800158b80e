package progress

import "sort"

// Store holds download progress. The Tracker serialises all access, so
// implementations need no locking of their own.
type Store interface {
	// Download returns the state of id. When create is set a missing
	// download is added first.
	Download(id DownloadID, create bool) (*DownloadState, bool)

	// Rendition returns one rendition of id. When create is set the
	// download and the rendition are added if missing.
	Rendition(id DownloadID, rendition Rendition, create bool) (*RenditionState, bool)

	// Each calls fn for every download in id order.
	Each(fn func(d *DownloadState))
}

// InMemoryStore keeps progress in maps for the life of the process.
type InMemoryStore struct {
	downloads map[DownloadID]*DownloadState
}

// NewInMemoryStore returns an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{downloads: make(map[DownloadID]*DownloadState)}
}

func (s *InMemoryStore) Download(id DownloadID, create bool) (*DownloadState, bool) {
	if d, ok := s.downloads[id]; ok {
		return d, true
	}
	if !create {
		return nil, false
	}
	d := &DownloadState{ID: id, Renditions: make(map[Rendition]*RenditionState)}
	s.downloads[id] = d
	return d, true
}

func (s *InMemoryStore) Rendition(id DownloadID, rendition Rendition, create bool) (*RenditionState, bool) {
	d, ok := s.Download(id, create)
	if !ok {
		return nil, false
	}
	if r, ok := d.Renditions[rendition]; ok {
		return r, true
	}
	if !create {
		return nil, false
	}
	// A rendition opened on an ended download starts out ended.
	r := &RenditionState{ID: rendition, Segments: make(map[int]Segment), Ended: d.Ended}
	d.Renditions[rendition] = r
	return r, true
}

func (s *InMemoryStore) Each(fn func(d *DownloadState)) {
	ids := make([]DownloadID, 0, len(s.downloads))
	for id := range s.downloads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fn(s.downloads[id])
	}
}
