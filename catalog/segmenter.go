package catalog

import (
	"fmt"
	"sort"
	"strings"

	"mosaictts/ai"
	"mosaictts/audio"
)

// SegmenterConfig параметры нарезки по тишине
type SegmenterConfig struct {
	WindowMs      int64   // Размер окна анализа энергии
	SilenceDB     float64 // Порог тишины (dBFS), окна тише считаются паузой
	MinSilenceMs  int64   // Минимальная длина паузы для точки разреза
	MinClipMs     int64   // Клипы короче сливаются с соседними
	MaxClipMs     int64   // Клипы длиннее режутся по границам слов
	MinEnergyDB   float64 // Клипы тише отбрасываются (почти тишина)
	MinTextLength int     // Минимум буквенно-цифровых символов в транскрипции
}

// DefaultSegmenterConfig возвращает конфигурацию по умолчанию
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		WindowMs:      50,
		SilenceDB:     -40.0,
		MinSilenceMs:  250,
		MinClipMs:     300,
		MaxClipMs:     8000,
		MinEnergyDB:   -45.0,
		MinTextLength: 4,
	}
}

// Span кандидат на микроклип: границы в исходнике + текст
type Span struct {
	StartMs int64
	EndMs   int64
	Text    string
}

// Segmenter режет аудио на микроклипы по паузам, выравнивая разрезы
// по границам слов транскрипции чтобы не обрезать слова
type Segmenter struct {
	cfg SegmenterConfig
}

// NewSegmenter создаёт сегментер
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// Segment возвращает упорядоченные непересекающиеся фрагменты
// Ведущая и замыкающая тишина обрезается. Если точек разреза нет,
// возвращается один фрагмент на весь файл
func (s *Segmenter) Segment(buf *audio.Buffer, tr *ai.Transcript) ([]Span, error) {
	silent := s.windowSilence(buf)
	if silent == nil {
		return nil, fmt.Errorf("%w: audio too short", ErrSegmentation)
	}

	trimStart, trimEnd, ok := s.trimBounds(silent)
	if !ok {
		return nil, fmt.Errorf("%w: audio is entirely silence", ErrSegmentation)
	}

	words := tr.Words()
	cuts := s.findCuts(silent, trimStart, trimEnd, words)

	spans := s.buildSpans(trimStart, trimEnd, cuts)
	spans = s.mergeShort(spans)
	spans = s.splitLong(spans, words)

	// Текст и фильтрация почти тихих / бессодержательных фрагментов
	var result []Span
	for _, span := range spans {
		span.Text = strings.TrimSpace(spanText(span, words))
		if ai.IsTranscriptTooShort(span.Text, s.cfg.MinTextLength) {
			continue
		}
		if audio.DBFS(buf.Slice(span.StartMs, span.EndMs).Samples) < s.cfg.MinEnergyDB {
			continue
		}
		result = append(result, span)
	}
	return result, nil
}

// windowSilence вычисляет флаг тишины для каждого окна
func (s *Segmenter) windowSilence(buf *audio.Buffer) []bool {
	windowSamples := int(s.cfg.WindowMs) * buf.SampleRate / 1000
	if windowSamples <= 0 || len(buf.Samples) < windowSamples {
		return nil
	}

	numWindows := len(buf.Samples) / windowSamples
	silent := make([]bool, numWindows)
	for i := 0; i < numWindows; i++ {
		window := buf.Samples[i*windowSamples : (i+1)*windowSamples]
		silent[i] = audio.DBFS(window) < s.cfg.SilenceDB
	}
	return silent
}

// trimBounds находит границы неслитной части аудио в миллисекундах
func (s *Segmenter) trimBounds(silent []bool) (startMs, endMs int64, ok bool) {
	first, last := -1, -1
	for i, sil := range silent {
		if !sil {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return 0, 0, false
	}
	return int64(first) * s.cfg.WindowMs, int64(last+1) * s.cfg.WindowMs, true
}

// findCuts ищет паузы достаточной длины и выравнивает точки разреза
// по ближайшей границе между словами
func (s *Segmenter) findCuts(silent []bool, trimStart, trimEnd int64, words []ai.TranscriptWord) []int64 {
	minRun := int(s.cfg.MinSilenceMs / s.cfg.WindowMs)
	if minRun < 1 {
		minRun = 1
	}

	var cuts []int64
	runStart := -1
	for i := 0; i <= len(silent); i++ {
		if i < len(silent) && silent[i] {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 && i-runStart >= minRun {
			mid := int64(runStart+i) * s.cfg.WindowMs / 2
			cuts = append(cuts, alignToWordBoundary(mid, words))
		}
		runStart = -1
	}

	// Разрезы вне обрезанной части и дубликаты отбрасываются
	sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })
	var filtered []int64
	for _, cut := range cuts {
		if cut <= trimStart || cut >= trimEnd {
			continue
		}
		if len(filtered) > 0 && filtered[len(filtered)-1] == cut {
			continue
		}
		filtered = append(filtered, cut)
	}
	return filtered
}

// alignToWordBoundary сдвигает точку разреза к ближайшему промежутку
// между словами. Без слов точка остаётся на месте
func alignToWordBoundary(cutMs int64, words []ai.TranscriptWord) int64 {
	if len(words) < 2 {
		return cutMs
	}

	best := cutMs
	bestDist := int64(-1)
	for i := 0; i < len(words)-1; i++ {
		boundary := (words[i].End + words[i+1].Start) / 2
		dist := boundary - cutMs
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = boundary
		}
	}
	return best
}

// buildSpans строит фрагменты между точками разреза
func (s *Segmenter) buildSpans(trimStart, trimEnd int64, cuts []int64) []Span {
	var spans []Span
	start := trimStart
	for _, cut := range cuts {
		spans = append(spans, Span{StartMs: start, EndMs: cut})
		start = cut
	}
	spans = append(spans, Span{StartMs: start, EndMs: trimEnd})
	return spans
}

// mergeShort сливает слишком короткие фрагменты с соседними
func (s *Segmenter) mergeShort(spans []Span) []Span {
	var merged []Span
	for _, span := range spans {
		if len(merged) > 0 && span.EndMs-span.StartMs < s.cfg.MinClipMs {
			merged[len(merged)-1].EndMs = span.EndMs
			continue
		}
		merged = append(merged, span)
	}
	// Первый фрагмент мог остаться коротким - сливаем со следующим
	if len(merged) > 1 && merged[0].EndMs-merged[0].StartMs < s.cfg.MinClipMs {
		merged[1].StartMs = merged[0].StartMs
		merged = merged[1:]
	}
	return merged
}

// splitLong режет фрагменты длиннее MaxClipMs по границам слов
func (s *Segmenter) splitLong(spans []Span, words []ai.TranscriptWord) []Span {
	var result []Span
	for _, span := range spans {
		for span.EndMs-span.StartMs > s.cfg.MaxClipMs {
			cut := latestBoundaryBefore(span.StartMs+s.cfg.MaxClipMs, span.StartMs, words)
			if cut <= span.StartMs {
				// Внутри лимита нет границы слова - режем жёстко
				cut = span.StartMs + s.cfg.MaxClipMs
			}
			result = append(result, Span{StartMs: span.StartMs, EndMs: cut})
			span.StartMs = cut
		}
		result = append(result, span)
	}
	return result
}

// latestBoundaryBefore находит последнюю границу слова в (afterMs, limitMs]
func latestBoundaryBefore(limitMs, afterMs int64, words []ai.TranscriptWord) int64 {
	var best int64
	for i := 0; i < len(words)-1; i++ {
		boundary := (words[i].End + words[i+1].Start) / 2
		if boundary > afterMs && boundary <= limitMs && boundary > best {
			best = boundary
		}
	}
	return best
}

// spanText собирает текст фрагмента из слов, чья середина попадает в него
func spanText(span Span, words []ai.TranscriptWord) string {
	var parts []string
	for _, w := range words {
		mid := (w.Start + w.End) / 2
		if mid >= span.StartMs && mid < span.EndMs {
			parts = append(parts, w.Text)
		}
	}
	return strings.Join(parts, " ")
}
