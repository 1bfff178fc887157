// Package catalog ведёт постоянный индекс микроклипов: нарезка исходных
// записей, отпечатки файлов для инкрементального пересбора и манифест
package catalog

import "errors"

// Ошибки пайплайна сборки. Все ошибки per-file: файл пропускается,
// пересборка продолжается
var (
	ErrIngestion     = errors.New("ingestion failed")
	ErrTranscription = errors.New("transcription failed")
	ErrSegmentation  = errors.New("segmentation failed")
)

// MicroClip атомарная единица воспроизведения: короткий фрагмент исходной
// записи с транскрипцией. Иммутабелен после создания, заменяется только
// при переобработке исходника
type MicroClip struct {
	ID         string  `json:"id"`         // <fingerprint[:12]>-<порядковый номер>
	SourceFile string  `json:"sourceFile"` // Путь к исходному файлу
	ClipFile   string  `json:"clipFile"`   // Путь к нарезанному файлу клипа
	Text       string  `json:"text"`       // Транскрипция фрагмента
	StartMs    int64   `json:"startMs"`    // Смещение начала в исходнике
	EndMs      int64   `json:"endMs"`      // Смещение конца в исходнике
	DurationMs int64   `json:"durationMs"`
	EnergyDB   float64 `json:"energyDb"` // Средний уровень сигнала (dBFS)
}

// SourceRecord обработанный исходный файл
type SourceRecord struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"` // MD5 содержимого файла
	ClipCount   int    `json:"clipCount"`
}

// Manifest структура манифеста каталога в JSON файле
// Порядок источников и клипов детерминирован: пересборка без изменений
// даёт байт-в-байт идентичный файл
type Manifest struct {
	Version int            `json:"version"`
	Sources []SourceRecord `json:"sources"` // Отсортированы по пути
	Clips   []MicroClip    `json:"clips"`   // Отсортированы по (источник, начало)
}

// RebuildStats статистика одной пересборки
type RebuildStats struct {
	Scanned      int // Найдено исходных файлов
	Skipped      int // Пропущено по отпечатку (без изменений)
	Processed    int // Переобработано
	Failed       int // Пропущено из-за ошибок
	ClipsAdded   int
	ClipsRemoved int
	Pruned       int // Удалённые исходники, вычищенные из каталога
}

// CurrentVersion текущая версия формата манифеста
const CurrentVersion = 1
