// Package config загружает конфигурацию из YAML файла
// Отсутствующий файл не ошибка: работаем на значениях по умолчанию
package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Config полная конфигурация системы
type Config struct {
	Paths    Paths    `yaml:"paths"`
	Audio    Audio    `yaml:"audio"`
	Models   Models   `yaml:"models"`
	Matching Matching `yaml:"matching"`
	Builder  Builder  `yaml:"builder"`
	Coverage Coverage `yaml:"coverage"`
	Messages Messages `yaml:"messages"`
}

// Paths расположение данных
type Paths struct {
	RawDir         string `yaml:"rawDir"`         // Исходные записи
	ClipsDir       string `yaml:"clipsDir"`       // Нарезанные клипы
	CatalogFile    string `yaml:"catalogFile"`    // Манифест каталога
	CoverageReport string `yaml:"coverageReport"` // Отчёт покрытия
}

// Audio устройства вывода и параметры клипов
type Audio struct {
	MonitorDevice string `yaml:"monitorDevice"` // Локальный монитор ("" = по умолчанию)
	CableDevice   string `yaml:"cableDevice"`   // Виртуальный кабель для чат-платформы
	SampleRate    int    `yaml:"sampleRate"`
	ClipFormat    string `yaml:"clipFormat"` // wav или mp3
	MaxClipPlayMs int64  `yaml:"maxClipPlayMs"`
	FadeMs        int64  `yaml:"fadeMs"`
}

// Models пути к моделям
type Models struct {
	WhisperEncoder     string `yaml:"whisperEncoder"`
	WhisperDecoder     string `yaml:"whisperDecoder"`
	WhisperTokens      string `yaml:"whisperTokens"`
	EmbeddingModel     string `yaml:"embeddingModel"`
	EmbeddingTokenizer string `yaml:"embeddingTokenizer"`
	Language           string `yaml:"language"`
	NumThreads         int    `yaml:"numThreads"`
}

// Matching параметры подбора клипов
type Matching struct {
	Threshold  float64 `yaml:"threshold"`  // Минимальное косинусное сходство
	WordBudget int     `yaml:"wordBudget"` // Максимум слов в бите
}

// Builder параметры сборки каталога
type Builder struct {
	Workers      int     `yaml:"workers"`
	MinSilenceMs int64   `yaml:"minSilenceMs"`
	MinClipMs    int64   `yaml:"minClipMs"`
	MaxClipMs    int64   `yaml:"maxClipMs"`
	SilenceDB    float64 `yaml:"silenceDb"`
	MinEnergyDB  float64 `yaml:"minEnergyDb"`
}

// Coverage параметры отчёта покрытия
type Coverage struct {
	Threshold  float64 `yaml:"threshold"`  // Доля сматченных битов для "здорового" покрытия
	IntervalMs int     `yaml:"intervalMs"` // Период перезаписи отчёта
	ListenAddr string  `yaml:"listenAddr"` // WebSocket сервер для визуализации ("" = выключен)
}

// Messages параметры чтения лога сообщений
type Messages struct {
	Log     string `yaml:"log"`
	PollMs  int    `yaml:"pollMs"`
	FromEnd bool   `yaml:"fromEnd"`
}

// Default возвращает конфигурацию по умолчанию
func Default() Config {
	return Config{
		Paths: Paths{
			RawDir:         "data/raw",
			ClipsDir:       "data/clips",
			CatalogFile:    "data/catalog.json",
			CoverageReport: "data/coverage.json",
		},
		Audio: Audio{
			SampleRate:    16000,
			ClipFormat:    "wav",
			MaxClipPlayMs: 6000,
			FadeMs:        300,
		},
		Models: Models{
			WhisperEncoder:     "models/whisper-encoder.onnx",
			WhisperDecoder:     "models/whisper-decoder.onnx",
			WhisperTokens:      "models/whisper-tokens.txt",
			EmbeddingModel:     "models/minilm-l6-v2.onnx",
			EmbeddingTokenizer: "models/minilm-tokenizer.json",
			Language:           "en",
			NumThreads:         4,
		},
		Matching: Matching{
			Threshold:  0.6,
			WordBudget: 12,
		},
		Builder: Builder{
			MinSilenceMs: 250,
			MinClipMs:    300,
			MaxClipMs:    8000,
			SilenceDB:    -40.0,
			MinEnergyDB:  -45.0,
		},
		Coverage: Coverage{
			Threshold:  0.75,
			IntervalMs: 2000,
		},
		Messages: Messages{
			Log:     "data/messages.log",
			PollMs:  1000,
			FromEnd: true,
		},
	}
}

// Load читает конфигурацию из файла поверх значений по умолчанию
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[Config] %s not found, using defaults", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Printf("[Config] Loaded: %s", path)
	return cfg, nil
}
