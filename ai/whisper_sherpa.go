package ai

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// WhisperConfig конфигурация для Whisper транскрайбера (sherpa-onnx)
type WhisperConfig struct {
	EncoderPath string // Путь к encoder ONNX модели
	DecoderPath string // Путь к decoder ONNX модели
	TokensPath  string // Путь к файлу токенов
	Language    string // Язык распознавания ("en", "ru", ...)
	NumThreads  int    // Количество потоков
	Provider    string // ONNX provider: cpu, cuda, coreml, auto
	SampleRate  int    // Частота дискретизации входного аудио
}

// DefaultWhisperConfig возвращает конфигурацию по умолчанию
func DefaultWhisperConfig(encoderPath, decoderPath, tokensPath string) WhisperConfig {
	return WhisperConfig{
		EncoderPath: encoderPath,
		DecoderPath: decoderPath,
		TokensPath:  tokensPath,
		Language:    "en",
		NumThreads:  4,
		Provider:    "auto",
		SampleRate:  16000,
	}
}

// detectBestProvider определяет лучший provider для текущей платформы
func detectBestProvider() string {
	// На macOS с Apple Silicon предпочитаем CoreML
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return "coreml"
	}
	return "cpu"
}

// WhisperTranscriber офлайн-транскрайбер на базе sherpa-onnx Whisper
type WhisperTranscriber struct {
	config     WhisperConfig
	recognizer *sherpa.OfflineRecognizer

	mu          sync.Mutex
	initialized bool
}

// NewWhisperTranscriber создаёт новый транскрайбер
func NewWhisperTranscriber(config WhisperConfig) (*WhisperTranscriber, error) {
	// Проверяем существование файлов моделей
	for _, path := range []string{config.EncoderPath, config.DecoderPath, config.TokensPath} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("model file not found: %s", path)
		}
	}

	provider := config.Provider
	if provider == "auto" || provider == "" {
		provider = detectBestProvider()
	}

	sherpaConfig := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: config.SampleRate,
			FeatureDim: 80,
		},
		ModelConfig: sherpa.OfflineModelConfig{
			Whisper: sherpa.OfflineWhisperModelConfig{
				Encoder:  config.EncoderPath,
				Decoder:  config.DecoderPath,
				Language: config.Language,
				Task:     "transcribe",
			},
			Tokens:     config.TokensPath,
			NumThreads: config.NumThreads,
			Debug:      0,
			Provider:   provider,
			ModelType:  "whisper",
		},
		DecodingMethod: "greedy_search",
	}

	recognizer := sherpa.NewOfflineRecognizer(&sherpaConfig)
	if recognizer == nil {
		// Если CoreML/CUDA не сработал, пробуем CPU
		if provider != "cpu" {
			log.Printf("[Whisper] %s provider failed, falling back to CPU", provider)
			sherpaConfig.ModelConfig.Provider = "cpu"
			recognizer = sherpa.NewOfflineRecognizer(&sherpaConfig)
		}
		if recognizer == nil {
			return nil, fmt.Errorf("failed to create sherpa-onnx recognizer (provider=%s)", provider)
		}
		provider = "cpu"
	}

	log.Printf("[Whisper] Transcriber initialized: provider=%s, lang=%s, encoder=%s",
		provider, config.Language, config.EncoderPath)

	return &WhisperTranscriber{
		config:      config,
		recognizer:  recognizer,
		initialized: true,
	}, nil
}

// Transcribe транскрибирует аудио (float32, 16kHz, mono)
// Инференс выполняется в отдельной горутине: отмена контекста возвращает
// управление вызывающему сразу, незавершённый результат отбрасывается
func (w *WhisperTranscriber) Transcribe(ctx context.Context, samples []float32) (*Transcript, error) {
	if len(samples) == 0 {
		return &Transcript{Language: w.config.Language}, nil
	}

	type decodeResult struct {
		transcript *Transcript
		err        error
	}
	done := make(chan decodeResult, 1)

	go func() {
		t, err := w.decode(samples)
		done <- decodeResult{transcript: t, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.transcript, res.err
	}
}

// decode выполняет собственно инференс (блокирующий, защищён мьютексом)
func (w *WhisperTranscriber) decode(samples []float32) (*Transcript, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		return nil, fmt.Errorf("transcriber not initialized")
	}

	stream := sherpa.NewOfflineStream(w.recognizer)
	if stream == nil {
		return nil, fmt.Errorf("failed to create offline stream")
	}
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(w.config.SampleRate, samples)
	w.recognizer.Decode(stream)

	result := stream.GetResult()
	if result == nil {
		return nil, fmt.Errorf("recognizer returned no result")
	}

	totalMs := int64(len(samples)) * 1000 / int64(w.config.SampleRate)
	words := tokensToWords(result.Tokens, result.Timestamps, totalMs)
	segments := groupWordsIntoSegments(words)

	return &Transcript{
		Segments: segments,
		Language: w.config.Language,
	}, nil
}

// tokensToWords собирает BPE-токены Whisper в слова с таймстемпами
// Токен, начинающийся с пробела, открывает новое слово; конец слова -
// таймстемп следующего слова (для последнего - конец аудио)
func tokensToWords(tokens []string, timestamps []float32, totalMs int64) []TranscriptWord {
	var words []TranscriptWord

	for i, tok := range tokens {
		// Служебные токены Whisper вида <|en|>, <|transcribe|> пропускаем
		if strings.Contains(tok, "<|") {
			continue
		}
		var ts int64
		if i < len(timestamps) {
			ts = int64(timestamps[i] * 1000)
		} else if len(words) > 0 {
			ts = words[len(words)-1].Start
		}

		startsWord := strings.HasPrefix(tok, " ") || len(words) == 0
		text := strings.TrimSpace(tok)
		if text == "" {
			continue
		}

		if startsWord {
			words = append(words, TranscriptWord{Start: ts, Text: text})
		} else {
			words[len(words)-1].Text += text
		}
	}

	// Проставляем концы слов
	for i := range words {
		if i+1 < len(words) {
			words[i].End = words[i+1].Start
		} else {
			words[i].End = totalMs
		}
		if words[i].End < words[i].Start {
			words[i].End = words[i].Start
		}
	}

	return words
}

// Пауза между словами, после которой начинается новый сегмент
const segmentGapMs = 800

// groupWordsIntoSegments группирует слова в сегменты по паузам и
// завершающей пунктуации
func groupWordsIntoSegments(words []TranscriptWord) []TranscriptSegment {
	if len(words) == 0 {
		return nil
	}

	var segments []TranscriptSegment
	current := TranscriptSegment{Start: words[0].Start}

	flush := func(end int64) {
		if len(current.Words) == 0 {
			return
		}
		current.End = end
		parts := make([]string, len(current.Words))
		for i, w := range current.Words {
			parts[i] = w.Text
		}
		current.Text = strings.Join(parts, " ")
		segments = append(segments, current)
	}

	for i, w := range words {
		if len(current.Words) > 0 {
			prev := current.Words[len(current.Words)-1]
			gap := w.Start - prev.End
			if gap >= segmentGapMs || endsSentence(prev.Text) {
				flush(prev.End)
				current = TranscriptSegment{Start: w.Start}
			}
		}
		current.Words = append(current.Words, w)

		if i == len(words)-1 {
			flush(w.End)
		}
	}

	return segments
}

// endsSentence проверяет, завершает ли слово предложение
func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") ||
		strings.HasSuffix(word, "!") ||
		strings.HasSuffix(word, "?")
}

// Close освобождает ресурсы
func (w *WhisperTranscriber) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(w.recognizer)
		w.recognizer = nil
	}
	w.initialized = false
}

// Name возвращает имя движка
func (w *WhisperTranscriber) Name() string {
	return "whisper-sherpa"
}
