package semantic

import (
	"errors"
	"fmt"
	"testing"

	"mosaictts/catalog"
)

// fakeEmbedder отдаёт заранее заданные нормализованные векторы
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func clipWithText(id, text string) catalog.MicroClip {
	return catalog.MicroClip{ID: id, Text: text, ClipFile: "clips/" + id + ".wav"}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"hello there": {1, 0, 0},
		"how are you": {0, 1, 0},
		"the weather": {0, 0, 1},
		"close query": {0.8, 0.6, 0},
	}}
	idx := NewIndex(embedder)
	err := idx.Build([]catalog.MicroClip{
		clipWithText("clip-a", "hello there"),
		clipWithText("clip-b", "how are you"),
		clipWithText("clip-c", "the weather"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func TestQueryOrdering(t *testing.T) {
	idx := newTestIndex(t)

	// cos(query, a)=0.8, cos(query, b)=0.6, cos(query, c)=0
	candidates, err := idx.Query("close query", 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates", len(candidates))
	}

	for i := 1; i < len(candidates); i++ {
		if candidates[i].Similarity > candidates[i-1].Similarity {
			t.Errorf("candidates not sorted by similarity: %+v", candidates)
		}
	}
	if candidates[0].ClipID != "clip-a" {
		t.Errorf("best candidate = %s, want clip-a", candidates[0].ClipID)
	}
	if diff := candidates[0].Similarity - 0.8; diff > 0.001 || diff < -0.001 {
		t.Errorf("best similarity = %f, want 0.8", candidates[0].Similarity)
	}
}

func TestQueryTieBreak(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"same text": {1, 0, 0},
	}}
	idx := NewIndex(embedder)
	// Одинаковые тексты дают одинаковое сходство - побеждает меньший ID
	err := idx.Build([]catalog.MicroClip{
		clipWithText("clip-z", "same text"),
		clipWithText("clip-a", "same text"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	candidates, err := idx.Query("same text", 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if candidates[0].ClipID != "clip-a" {
		t.Errorf("tie must break to lower ID, got %s", candidates[0].ClipID)
	}
}

func TestQueryTopK(t *testing.T) {
	idx := newTestIndex(t)
	candidates, err := idx.Query("hello there", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(candidates) != 1 {
		t.Errorf("got %d candidates, want 1", len(candidates))
	}
}

func TestQueryEmptyIndexFailsClosed(t *testing.T) {
	idx := NewIndex(&fakeEmbedder{vectors: map[string][]float32{}})
	if _, err := idx.Query("anything", 1); !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
	if idx.Ready() {
		t.Error("empty index must not report ready")
	}
}

func TestBuildEmbedderErrorFailsClosed(t *testing.T) {
	idx := NewIndex(&fakeEmbedder{err: fmt.Errorf("model down")})
	err := idx.Build([]catalog.MicroClip{clipWithText("clip-a", "hello there")})
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestAddClipsIncremental(t *testing.T) {
	idx := newTestIndex(t)
	embedder := idx.embedder.(*fakeEmbedder)
	embedder.vectors["brand new"] = []float32{0.6, 0, 0.8}

	if err := idx.AddClips([]catalog.MicroClip{clipWithText("clip-d", "brand new")}); err != nil {
		t.Fatalf("AddClips: %v", err)
	}
	if idx.Size() != 4 {
		t.Errorf("size = %d, want 4", idx.Size())
	}

	candidates, err := idx.Query("brand new", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if candidates[0].ClipID != "clip-d" {
		t.Errorf("best = %s, want clip-d", candidates[0].ClipID)
	}
}

func TestRebuildReplacesSnapshot(t *testing.T) {
	idx := newTestIndex(t)

	// Пересборка с новым набором вытесняет прежние клипы целиком
	if err := idx.Build([]catalog.MicroClip{clipWithText("clip-x", "the weather")}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("size = %d, want 1", idx.Size())
	}

	candidates, err := idx.Query("hello there", 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, c := range candidates {
		if c.ClipID == "clip-a" {
			t.Error("stale clip survived rebuild")
		}
	}
}
