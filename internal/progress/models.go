package progress

import "time"

// DownloadID identifies one video download.
type DownloadID string

// Rendition names a mirrored media playlist ("video" or "audio").
type Rendition string

// Segment is one file a rendition has completed.
type Segment struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Bytes    int64  `json:"bytes"`
	Skipped  bool   `json:"skipped"`
	Attempts int    `json:"attempts"`

	CompletedAt time.Time `json:"completed_at"`
}

// RenditionState holds the in-memory progress of one rendition.
type RenditionState struct {
	ID       Rendition
	Total    int
	Segments map[int]Segment
	Ended    bool
}

// DownloadState is the top-level in-memory representation of a download.
type DownloadState struct {
	ID         DownloadID
	Renditions map[Rendition]*RenditionState
	Ended      bool
}

// RenditionSnapshot is a copy of a rendition's progress, safe to encode.
type RenditionSnapshot struct {
	Rendition Rendition `json:"rendition"`
	Total     int       `json:"total"`
	Done      int       `json:"done"`
	// Contiguous counts the files complete from index 0 up to the first gap.
	Contiguous int       `json:"contiguous"`
	Skipped    int       `json:"skipped"`
	Bytes      int64     `json:"bytes"`
	Ended      bool      `json:"ended"`
	Segments   []Segment `json:"segments,omitempty"`
}

// DownloadSnapshot summarises a download without per-segment detail.
type DownloadSnapshot struct {
	ID         DownloadID          `json:"id"`
	Ended      bool                `json:"ended"`
	Renditions []RenditionSnapshot `json:"renditions"`
}
