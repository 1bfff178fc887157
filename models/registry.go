// Package models отвечает за наличие файлов моделей на диске:
// реестр необходимых файлов и их скачивание при первом запуске
package models

import (
	"context"
	"fmt"
	"log"
	"os"

	"mosaictts/config"
)

// ModelFile один файл модели
type ModelFile struct {
	Name string // Человекочитаемое имя для логов
	URL  string
	Path string // Куда положить на диске
}

// Реестр источников. Whisper в формате sherpa-onnx, эмбеддинги -
// all-MiniLM-L6-v2 в ONNX
const (
	whisperRepo   = "https://huggingface.co/csukuangfj/sherpa-onnx-whisper-tiny.en/resolve/main"
	embeddingRepo = "https://huggingface.co/sentence-transformers/all-MiniLM-L6-v2/resolve/main"
)

// WhisperFiles возвращает файлы модели транскрипции
func WhisperFiles(cfg config.Models) []ModelFile {
	return []ModelFile{
		{Name: "whisper encoder", URL: whisperRepo + "/tiny.en-encoder.onnx", Path: cfg.WhisperEncoder},
		{Name: "whisper decoder", URL: whisperRepo + "/tiny.en-decoder.onnx", Path: cfg.WhisperDecoder},
		{Name: "whisper tokens", URL: whisperRepo + "/tiny.en-tokens.txt", Path: cfg.WhisperTokens},
	}
}

// EmbeddingFiles возвращает файлы модели эмбеддингов
func EmbeddingFiles(cfg config.Models) []ModelFile {
	return []ModelFile{
		{Name: "embedding model", URL: embeddingRepo + "/onnx/model.onnx", Path: cfg.EmbeddingModel},
		{Name: "embedding tokenizer", URL: embeddingRepo + "/tokenizer.json", Path: cfg.EmbeddingTokenizer},
	}
}

// Ensure скачивает отсутствующие файлы моделей
// Существующие файлы не перекачиваются
func Ensure(ctx context.Context, files []ModelFile) error {
	for _, file := range files {
		if _, err := os.Stat(file.Path); err == nil {
			continue
		}

		log.Printf("[Models] Downloading %s -> %s", file.Name, file.Path)
		if err := DownloadFile(ctx, file.URL, file.Path, logProgress(file.Name)); err != nil {
			return fmt.Errorf("failed to download %s: %w", file.Name, err)
		}
		log.Printf("[Models] Downloaded: %s", file.Name)
	}
	return nil
}

// logProgress возвращает колбэк, логирующий прогресс скачивания
func logProgress(name string) ProgressFunc {
	var lastReported int
	return func(progress float64) {
		pct := int(progress)
		// Логируем каждые 10%
		if pct/10 > lastReported/10 {
			lastReported = pct
			log.Printf("[Models] %s: %d%%", name, pct)
		}
	}
}
