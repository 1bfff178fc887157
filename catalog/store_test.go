package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func testClip(id, source, text string, startMs int64) MicroClip {
	return MicroClip{
		ID:         id,
		SourceFile: source,
		ClipFile:   "clips/" + id + ".wav",
		Text:       text,
		StartMs:    startMs,
		EndMs:      startMs + 1000,
		DurationMs: 1000,
		EnergyDB:   -12.5,
	}
}

func TestStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	store.ReplaceSource(SourceRecord{Path: "raw/a.wav", Fingerprint: "abc123", ClipCount: 2},
		[]MicroClip{
			testClip("abc123-0000", "raw/a.wav", "hello there", 0),
			testClip("abc123-0001", "raw/a.wav", "how are you", 1500),
		})

	saved, err := store.Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !saved {
		t.Error("first Save must write the manifest")
	}

	// Повторная загрузка видит те же данные
	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore reload: %v", err)
	}
	if reloaded.Count() != 2 {
		t.Errorf("reloaded count = %d, want 2", reloaded.Count())
	}

	clip, ok := reloaded.ClipByID("abc123-0001")
	if !ok {
		t.Fatal("clip abc123-0001 not found after reload")
	}
	if clip.Text != "how are you" || clip.StartMs != 1500 {
		t.Errorf("reloaded clip = %+v", clip)
	}

	src, ok := reloaded.SourceByPath("raw/a.wav")
	if !ok || src.Fingerprint != "abc123" {
		t.Errorf("reloaded source = %+v, ok=%v", src, ok)
	}
}

func TestStoreSaveSkipsUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.ReplaceSource(SourceRecord{Path: "raw/a.wav", Fingerprint: "abc123", ClipCount: 1},
		[]MicroClip{testClip("abc123-0000", "raw/a.wav", "hello there", 0)})

	if saved, _ := store.Save(); !saved {
		t.Fatal("first Save must write")
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	// Без изменений повторный Save не трогает файл
	if saved, _ := store.Save(); saved {
		t.Error("second Save without changes must be a no-op")
	}
	second, _ := os.ReadFile(path)
	if string(first) != string(second) {
		t.Error("manifest bytes changed without data changes")
	}
}

func TestStoreReplaceSource(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "catalog.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	store.ReplaceSource(SourceRecord{Path: "raw/a.wav", Fingerprint: "old", ClipCount: 2},
		[]MicroClip{
			testClip("old-0000", "raw/a.wav", "first take", 0),
			testClip("old-0001", "raw/a.wav", "second take", 1500),
		})
	store.ReplaceSource(SourceRecord{Path: "raw/b.wav", Fingerprint: "bbb", ClipCount: 1},
		[]MicroClip{testClip("bbb-0000", "raw/b.wav", "other source", 0)})

	// Замена вытесняет прежние клипы только своего источника
	removed := store.ReplaceSource(SourceRecord{Path: "raw/a.wav", Fingerprint: "new", ClipCount: 1},
		[]MicroClip{testClip("new-0000", "raw/a.wav", "fresh take", 0)})

	if len(removed) != 2 {
		t.Errorf("removed = %v, want 2 clip files", removed)
	}
	if store.Count() != 2 {
		t.Errorf("count = %d, want 2", store.Count())
	}
	if _, ok := store.ClipByID("old-0000"); ok {
		t.Error("old clip must be gone after replace")
	}
	if _, ok := store.ClipByID("bbb-0000"); !ok {
		t.Error("unrelated source's clip must survive replace")
	}

	src, _ := store.SourceByPath("raw/a.wav")
	if src.Fingerprint != "new" {
		t.Errorf("fingerprint = %q, want %q", src.Fingerprint, "new")
	}
}

func TestStoreRemoveSource(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "catalog.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	store.ReplaceSource(SourceRecord{Path: "raw/a.wav", Fingerprint: "aaa", ClipCount: 1},
		[]MicroClip{testClip("aaa-0000", "raw/a.wav", "hello there", 0)})

	removed := store.RemoveSource("raw/a.wav")
	if len(removed) != 1 {
		t.Errorf("removed = %v, want 1 clip file", removed)
	}
	if store.Count() != 0 {
		t.Errorf("count = %d, want 0", store.Count())
	}
	if _, ok := store.SourceByPath("raw/a.wav"); ok {
		t.Error("source record must be gone")
	}
}
