// Package ai предоставляет движки для транскрипции речи и текстовых эмбеддингов
package ai

import "context"

// TranscriptWord слово с точными таймстемпами
type TranscriptWord struct {
	Start int64  // миллисекунды
	End   int64  // миллисекунды
	Text  string // текст слова
}

// TranscriptSegment сегмент с таймстемпами
type TranscriptSegment struct {
	Start int64            // миллисекунды
	End   int64            // миллисекунды
	Text  string           // полный текст сегмента
	Words []TranscriptWord // слова с точными timestamps (word-level)
}

// Transcript результат транскрипции одного исходного файла
type Transcript struct {
	Segments []TranscriptSegment
	Language string
}

// Duration возвращает конец последнего сегмента в миллисекундах
func (t *Transcript) Duration() int64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}

// Words возвращает все слова транскрипта в порядке следования
func (t *Transcript) Words() []TranscriptWord {
	var words []TranscriptWord
	for _, seg := range t.Segments {
		words = append(words, seg.Words...)
	}
	return words
}

// Transcriber интерфейс для движков транскрипции
// Позволяет использовать разные бэкенды (sherpa-onnx Whisper и др.)
type Transcriber interface {
	// Transcribe транскрибирует аудио и возвращает сегменты с таймстемпами
	// samples - аудио данные в формате float32, 16kHz, mono
	// Отмена контекста прерывает ожидание: результат отбрасывается вызывающим
	Transcribe(ctx context.Context, samples []float32) (*Transcript, error)

	// Close освобождает ресурсы движка
	Close()

	// Name возвращает имя движка (для логирования)
	Name() string
}
