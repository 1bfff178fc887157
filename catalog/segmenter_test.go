package catalog

import (
	"errors"
	"math"
	"testing"

	"mosaictts/ai"
	"mosaictts/audio"
)

// toneBuffer склеивает синус и тишину в один буфер 16kHz
// Паттерн: пары (длительность мс, амплитуда), амплитуда 0 = тишина
func toneBuffer(pattern ...[2]float64) *audio.Buffer {
	const sampleRate = 16000
	var samples []float32
	for _, p := range pattern {
		n := int(p[0]) * sampleRate / 1000
		for i := 0; i < n; i++ {
			samples = append(samples, float32(p[1]*math.Sin(2*math.Pi*440*float64(i)/sampleRate)))
		}
	}
	return &audio.Buffer{Samples: samples, SampleRate: sampleRate}
}

func transcriptWithWords(words ...ai.TranscriptWord) *ai.Transcript {
	if len(words) == 0 {
		return &ai.Transcript{}
	}
	return &ai.Transcript{
		Segments: []ai.TranscriptSegment{{
			Start: words[0].Start,
			End:   words[len(words)-1].End,
			Words: words,
		}},
	}
}

func TestSegmentTwoClips(t *testing.T) {
	// Тишина, фраза, пауза, фраза, тишина
	buf := toneBuffer([2]float64{200, 0}, [2]float64{1000, 0.5}, [2]float64{400, 0}, [2]float64{800, 0.5}, [2]float64{300, 0})
	tr := transcriptWithWords(
		ai.TranscriptWord{Start: 250, End: 650, Text: "hello"},
		ai.TranscriptWord{Start: 700, End: 1150, Text: "there"},
		ai.TranscriptWord{Start: 1650, End: 1950, Text: "how"},
		ai.TranscriptWord{Start: 1950, End: 2150, Text: "are"},
		ai.TranscriptWord{Start: 2150, End: 2350, Text: "you"},
	)

	spans, err := NewSegmenter(DefaultSegmenterConfig()).Segment(buf, tr)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d: %+v", len(spans), spans)
	}

	if spans[0].Text != "hello there" {
		t.Errorf("spans[0].Text = %q", spans[0].Text)
	}
	if spans[1].Text != "how are you" {
		t.Errorf("spans[1].Text = %q", spans[1].Text)
	}

	// Ведущая тишина обрезана, разрез выровнен по границе слов
	if spans[0].StartMs < 150 || spans[0].StartMs > 250 {
		t.Errorf("spans[0].StartMs = %d, want ~200", spans[0].StartMs)
	}
	if spans[0].EndMs != 1400 {
		t.Errorf("spans[0].EndMs = %d, want 1400 (word boundary)", spans[0].EndMs)
	}

	// Непересекающиеся и упорядоченные
	if spans[0].EndMs > spans[1].StartMs {
		t.Errorf("spans overlap: [%d,%d] then [%d,%d]",
			spans[0].StartMs, spans[0].EndMs, spans[1].StartMs, spans[1].EndMs)
	}
}

func TestSegmentAllSilence(t *testing.T) {
	buf := toneBuffer([2]float64{2000, 0})
	_, err := NewSegmenter(DefaultSegmenterConfig()).Segment(buf, &ai.Transcript{})
	if !errors.Is(err, ErrSegmentation) {
		t.Errorf("expected ErrSegmentation, got %v", err)
	}
}

func TestSegmentNoCutPoints(t *testing.T) {
	// Непрерывная речь без пауз - один фрагмент на весь файл
	buf := toneBuffer([2]float64{1500, 0.5})
	tr := transcriptWithWords(
		ai.TranscriptWord{Start: 0, End: 700, Text: "continuous"},
		ai.TranscriptWord{Start: 700, End: 1500, Text: "speech"},
	)

	spans, err := NewSegmenter(DefaultSegmenterConfig()).Segment(buf, tr)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].StartMs != 0 || spans[0].EndMs != 1500 {
		t.Errorf("span = [%d, %d], want [0, 1500]", spans[0].StartMs, spans[0].EndMs)
	}
}

func TestSegmentMergesShortSpans(t *testing.T) {
	cfg := DefaultSegmenterConfig()
	cfg.MinClipMs = 500

	// Короткий выкрик, пауза, длинная фраза
	buf := toneBuffer([2]float64{150, 0.5}, [2]float64{400, 0}, [2]float64{1000, 0.5})
	tr := transcriptWithWords(
		ai.TranscriptWord{Start: 0, End: 120, Text: "hey"},
		ai.TranscriptWord{Start: 560, End: 1000, Text: "listen"},
		ai.TranscriptWord{Start: 1000, End: 1550, Text: "carefully"},
	)

	spans, err := NewSegmenter(cfg).Segment(buf, tr)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("expected short span merged into 1, got %d: %+v", len(spans), spans)
	}
	if spans[0].Text != "hey listen carefully" {
		t.Errorf("merged span text = %q", spans[0].Text)
	}
}

func TestSegmentDropsShortTranscripts(t *testing.T) {
	// Второй фрагмент содержит только междометие - отбрасывается
	buf := toneBuffer([2]float64{1000, 0.5}, [2]float64{400, 0}, [2]float64{600, 0.5})
	tr := transcriptWithWords(
		ai.TranscriptWord{Start: 0, End: 500, Text: "something"},
		ai.TranscriptWord{Start: 500, End: 1000, Text: "useful"},
		ai.TranscriptWord{Start: 1450, End: 2000, Text: "uh"},
	)

	spans, err := NewSegmenter(DefaultSegmenterConfig()).Segment(buf, tr)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d: %+v", len(spans), spans)
	}
	if spans[0].Text != "something useful" {
		t.Errorf("span text = %q", spans[0].Text)
	}
}

func TestSegmentSplitsLongSpans(t *testing.T) {
	cfg := DefaultSegmenterConfig()
	cfg.MaxClipMs = 2000

	// Пять секунд непрерывной речи - режется по границам слов
	buf := toneBuffer([2]float64{5000, 0.5})
	words := make([]ai.TranscriptWord, 0, 10)
	texts := []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"}
	for i, text := range texts {
		words = append(words, ai.TranscriptWord{
			Start: int64(i) * 500,
			End:   int64(i+1) * 500,
			Text:  text,
		})
	}

	spans, err := NewSegmenter(cfg).Segment(buf, transcriptWithWords(words...))
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(spans) < 3 {
		t.Fatalf("expected at least 3 spans for 5s audio with 2s limit, got %d", len(spans))
	}

	for i, span := range spans {
		if span.EndMs-span.StartMs > cfg.MaxClipMs {
			t.Errorf("span %d duration %d exceeds limit", i, span.EndMs-span.StartMs)
		}
		if i > 0 && span.StartMs < spans[i-1].EndMs {
			t.Errorf("span %d overlaps previous", i)
		}
	}
}
