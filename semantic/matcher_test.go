package semantic

import (
	"errors"
	"testing"
)

func TestMatchScenarioTwoBeats(t *testing.T) {
	idx := newTestIndex(t)
	matcher := NewMatcher(idx, 0.6)

	beats := SplitBeats("hello there, how are you")
	results, err := matcher.Match(beats)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	// Ровно один результат на бит, в порядке битов
	if len(results) != len(beats) {
		t.Fatalf("got %d results for %d beats", len(results), len(beats))
	}
	for i, res := range results {
		if res.Seq != beats[i].Seq {
			t.Errorf("result %d Seq = %d, want %d", i, res.Seq, beats[i].Seq)
		}
	}

	if !results[0].Matched || results[0].ClipID != "clip-a" {
		t.Errorf("results[0] = %+v, want matched clip-a", results[0])
	}
	if !results[1].Matched || results[1].ClipID != "clip-b" {
		t.Errorf("results[1] = %+v, want matched clip-b", results[1])
	}
	for _, res := range results {
		if res.Similarity < 0.6 {
			t.Errorf("matched similarity %f below threshold", res.Similarity)
		}
	}
}

func TestMatchBelowThresholdUnmatched(t *testing.T) {
	idx := newTestIndex(t)
	embedder := idx.embedder.(*fakeEmbedder)
	// cos с лучшим кандидатом = 0.5 < 0.6
	embedder.vectors["vaguely related"] = []float32{0.5, 0.866, 0}
	matcher := NewMatcher(idx, 0.9)

	results, err := matcher.Match([]Beat{{Seq: 0, Text: "vaguely related"}})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if results[0].Matched {
		t.Errorf("beat below threshold must stay unmatched: %+v", results[0])
	}
	if results[0].ClipID != "" {
		t.Error("unmatched beat must not carry a clip")
	}
	// Сходство ближайшего кандидата сохраняется для статистики покрытия
	if results[0].Similarity <= 0 {
		t.Errorf("near-miss similarity not recorded: %+v", results[0])
	}
}

func TestMatchFailsClosedWhenIndexUnavailable(t *testing.T) {
	idx := NewIndex(&fakeEmbedder{vectors: map[string][]float32{}})
	matcher := NewMatcher(idx, 0.6)

	beats := SplitBeats("hello there, how are you")
	results, err := matcher.Match(beats)
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}

	// Все биты помечены несматченными, ни один не потерян
	if len(results) != len(beats) {
		t.Fatalf("got %d results for %d beats", len(results), len(beats))
	}
	for _, res := range results {
		if res.Matched {
			t.Errorf("beat matched with unavailable index: %+v", res)
		}
	}
}

func TestMatchExactThresholdAccepted(t *testing.T) {
	idx := newTestIndex(t)
	embedder := idx.embedder.(*fakeEmbedder)
	embedder.vectors["edge case"] = []float32{0.6, 0.8, 0}
	matcher := NewMatcher(idx, 0.8)

	// Лучший кандидат clip-b с cos ровно 0.8 - порог включительный
	results, err := matcher.Match([]Beat{{Seq: 0, Text: "edge case"}})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !results[0].Matched || results[0].ClipID != "clip-b" {
		t.Errorf("similarity equal to threshold must match: %+v", results[0])
	}
}
