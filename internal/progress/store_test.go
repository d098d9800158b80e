package progress

import "testing"

func TestInMemoryStore_Download(t *testing.T) {
	store := NewInMemoryStore()

	if _, ok := store.Download("sm1", false); ok {
		t.Error("expected not found for empty store")
	}
	d, ok := store.Download("sm1", true)
	if !ok || d.ID != "sm1" || d.Renditions == nil {
		t.Fatalf("Download(create): ok=%v d=%+v", ok, d)
	}
	if got, _ := store.Download("sm1", false); got != d {
		t.Errorf("Download: got %p want %p", got, d)
	}
}

func TestInMemoryStore_Rendition(t *testing.T) {
	store := NewInMemoryStore()

	if _, ok := store.Rendition("sm1", "video", false); ok {
		t.Error("lookup without create should not add a rendition")
	}
	if _, ok := store.Download("sm1", false); ok {
		t.Error("lookup without create should not add a download")
	}

	r, ok := store.Rendition("sm1", "video", true)
	if !ok || r.ID != "video" || r.Segments == nil {
		t.Fatalf("Rendition(create): ok=%v r=%+v", ok, r)
	}
	d, _ := store.Download("sm1", false)
	if d.Renditions["video"] != r {
		t.Error("rendition should hang off its download")
	}

	d.Ended = true
	late, _ := store.Rendition("sm1", "audio", true)
	if !late.Ended {
		t.Error("a rendition added to an ended download should start ended")
	}
}

func TestInMemoryStore_Each_in_id_order(t *testing.T) {
	store := NewInMemoryStore()
	for _, id := range []DownloadID{"so3", "sm1", "nm2"} {
		store.Download(id, true)
	}
	var got []DownloadID
	store.Each(func(d *DownloadState) { got = append(got, d.ID) })
	if len(got) != 3 || got[0] != "nm2" || got[1] != "sm1" || got[2] != "so3" {
		t.Errorf("Each order = %v", got)
	}
}

func TestNewTrackerWithStore(t *testing.T) {
	store := NewInMemoryStore()
	tr := NewTrackerWithStore(store)

	if err := tr.RegisterSegment("sm1", "video", Segment{Index: 0, Name: "seg0.cmfv"}); err != nil {
		t.Fatalf("RegisterSegment: %v", err)
	}
	r, ok := store.Rendition("sm1", "video", false)
	if !ok || len(r.Segments) != 1 {
		t.Error("injected store should hold the segment after RegisterSegment")
	}
}
