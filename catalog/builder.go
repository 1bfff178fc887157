package catalog

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"mosaictts/ai"
	"mosaictts/audio"
)

// BuilderConfig параметры сборщика каталога
type BuilderConfig struct {
	RawDir     string           // Директория с исходными записями
	ClipsDir   string           // Директория для нарезанных клипов
	Format     audio.ClipFormat // Формат файлов клипов
	SampleRate int              // Частота дискретизации для транскрипции и клипов
	Workers    int              // Параллельная обработка исходников (0 = авто)
	Segmenter  SegmenterConfig
}

// DefaultBuilderConfig возвращает конфигурацию по умолчанию
func DefaultBuilderConfig(rawDir, clipsDir string) BuilderConfig {
	return BuilderConfig{
		RawDir:     rawDir,
		ClipsDir:   clipsDir,
		Format:     audio.ClipFormatWAV,
		SampleRate: 16000,
		Segmenter:  DefaultSegmenterConfig(),
	}
}

// Builder инкрементально собирает каталог микроклипов:
// транскрипция -> нарезка по тишине -> манифест
// Исходники с неизменным отпечатком пропускаются, поэтому повторный
// запуск после добавления пары файлов стоит дёшево
type Builder struct {
	cfg         BuilderConfig
	store       *Store
	transcriber ai.Transcriber
	segmenter   *Segmenter
}

// NewBuilder создаёт сборщик каталога
func NewBuilder(cfg BuilderConfig, store *Store, transcriber ai.Transcriber) *Builder {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 4 {
			workers = 4
		}
	}
	cfg.Workers = workers

	return &Builder{
		cfg:         cfg,
		store:       store,
		transcriber: transcriber,
		segmenter:   NewSegmenter(cfg.Segmenter),
	}
}

// sourceTask исходный файл, ожидающий обработки
type sourceTask struct {
	path        string
	fingerprint string
}

// Rebuild сканирует директорию исходников и приводит каталог в соответствие
// с её текущим содержимым. force=true переобрабатывает все файлы независимо
// от отпечатков. Ошибки отдельных файлов не прерывают пересборку
func (b *Builder) Rebuild(ctx context.Context, force bool) (*RebuildStats, error) {
	paths, err := b.scanRawDir()
	if err != nil {
		return nil, err
	}

	stats := &RebuildStats{Scanned: len(paths)}
	log.Printf("[Builder] Rebuild started: %d sources, force=%v, workers=%d",
		len(paths), force, b.cfg.Workers)

	if err := os.MkdirAll(b.cfg.ClipsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create clips directory: %w", err)
	}

	// Отпечатки считаются последовательно: это дёшево по сравнению
	// с транскрипцией и определяет, что вообще нужно обрабатывать
	var pending []sourceTask
	existing := make(map[string]bool, len(paths))
	for _, path := range paths {
		existing[path] = true

		fp, err := fileFingerprint(path)
		if err != nil {
			log.Printf("[Builder] %v: %s: %v", ErrIngestion, path, err)
			stats.Failed++
			continue
		}

		if !force {
			if rec, ok := b.store.SourceByPath(path); ok && rec.Fingerprint == fp {
				stats.Skipped++
				continue
			}
		}
		pending = append(pending, sourceTask{path: path, fingerprint: fp})
	}

	b.processAll(ctx, pending, stats)

	// Исходники, исчезнувшие с диска, вычищаются вместе с их клипами
	for _, src := range b.store.Sources() {
		if !existing[src.Path] {
			removed := b.store.RemoveSource(src.Path)
			b.removeClipFiles(removed)
			stats.Pruned++
			stats.ClipsRemoved += len(removed)
			log.Printf("[Builder] Pruned deleted source: %s (%d clips)", src.Path, len(removed))
		}
	}

	b.cleanOrphanClips()

	if ctx.Err() != nil {
		return stats, ctx.Err()
	}

	saved, err := b.store.Save()
	if err != nil {
		return stats, fmt.Errorf("failed to save manifest: %w", err)
	}
	if saved {
		log.Printf("[Builder] Manifest updated: %d clips total", b.store.Count())
	}

	log.Printf("[Builder] Rebuild done: processed=%d skipped=%d failed=%d added=%d removed=%d pruned=%d",
		stats.Processed, stats.Skipped, stats.Failed, stats.ClipsAdded, stats.ClipsRemoved, stats.Pruned)
	return stats, nil
}

// processAll обрабатывает исходники пулом воркеров
// Коммиты в манифест сериализует Store, результаты независимы по файлам
func (b *Builder) processAll(ctx context.Context, pending []sourceTask, stats *RebuildStats) {
	if len(pending) == 0 {
		return
	}

	tasks := make(chan sourceTask)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < b.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				clips, err := b.processSource(ctx, task)

				mu.Lock()
				if err != nil {
					if ctx.Err() == nil {
						log.Printf("[Builder] Failed: %s: %v", task.path, err)
						stats.Failed++
					}
					mu.Unlock()
					continue
				}

				// Замена атомарна на уровне исходника: прежние клипы
				// вытесняются только когда новые полностью готовы
				removed := b.store.ReplaceSource(SourceRecord{
					Path:        task.path,
					Fingerprint: task.fingerprint,
					ClipCount:   len(clips),
				}, clips)
				stats.Processed++
				stats.ClipsAdded += len(clips)
				stats.ClipsRemoved += len(removed)
				mu.Unlock()

				b.removeClipFiles(removed)
				log.Printf("[Builder] Processed: %s -> %d clips", filepath.Base(task.path), len(clips))
			}
		}()
	}

	for _, task := range pending {
		select {
		case <-ctx.Done():
			close(tasks)
			wg.Wait()
			return
		case tasks <- task:
		}
	}
	close(tasks)
	wg.Wait()
}

// processSource выполняет полный пайплайн для одного исходника:
// декодирование -> транскрипция -> нарезка -> запись клипов
// Частичная работа при ошибке отбрасывается целиком
func (b *Builder) processSource(ctx context.Context, task sourceTask) ([]MicroClip, error) {
	ext := strings.ToLower(filepath.Ext(task.path))
	if !audio.SupportedExtensions[ext] {
		return nil, fmt.Errorf("%w: no decoder for %s", ErrIngestion, ext)
	}

	buf, err := audio.DecodeFile(task.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIngestion, err)
	}
	buf = buf.Resample(b.cfg.SampleRate)

	transcript, err := b.transcriber.Transcribe(ctx, buf.Samples)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	spans, err := b.segmenter.Segment(buf, transcript)
	if err != nil {
		return nil, err
	}

	clips := make([]MicroClip, 0, len(spans))
	written := make([]string, 0, len(spans))
	seen := make(map[string]bool, len(spans))
	for i, span := range spans {
		text := span.Text
		if ai.IsHallucination(text) {
			text = ai.CleanHallucination(text)
			if ai.IsHallucination(text) || ai.IsTranscriptTooShort(text, b.cfg.Segmenter.MinTextLength) {
				continue
			}
		}
		// Дубликаты текста внутри одного исходника не нужны
		key := strings.ToLower(text)
		if seen[key] {
			continue
		}
		seen[key] = true

		// Детерминированный ID: один и тот же исходник всегда даёт
		// одни и те же клипы
		id := fmt.Sprintf("%s-%04d", task.fingerprint[:12], i)
		clipPath := filepath.Join(b.cfg.ClipsDir, id+b.cfg.Format.Ext())

		slice := buf.Slice(span.StartMs, span.EndMs)
		if err := audio.WriteClip(clipPath, slice, b.cfg.Format); err != nil {
			b.removeClipFiles(written)
			return nil, fmt.Errorf("%w: %v", ErrIngestion, err)
		}
		written = append(written, clipPath)

		clips = append(clips, MicroClip{
			ID:         id,
			SourceFile: task.path,
			ClipFile:   clipPath,
			Text:       text,
			StartMs:    span.StartMs,
			EndMs:      span.EndMs,
			DurationMs: span.EndMs - span.StartMs,
			EnergyDB:   audio.DBFS(slice.Samples),
		})
	}

	if err := ctx.Err(); err != nil {
		b.removeClipFiles(written)
		return nil, err
	}
	return clips, nil
}

// scanRawDir возвращает отсортированный список аудио файлов в RawDir
func (b *Builder) scanRawDir() ([]string, error) {
	entries, err := os.ReadDir(b.cfg.RawDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if audio.KnownExtensions[ext] {
			paths = append(paths, filepath.Join(b.cfg.RawDir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// cleanOrphanClips удаляет файлы клипов, на которые не ссылается манифест
func (b *Builder) cleanOrphanClips() {
	referenced := make(map[string]bool)
	for _, clip := range b.store.Clips() {
		referenced[filepath.Base(clip.ClipFile)] = true
	}

	entries, err := os.ReadDir(b.cfg.ClipsDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || referenced[entry.Name()] {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".wav" && ext != ".mp3" {
			continue
		}
		if err := os.Remove(filepath.Join(b.cfg.ClipsDir, entry.Name())); err == nil {
			log.Printf("[Builder] Removed orphan clip: %s", entry.Name())
		}
	}
}

// removeClipFiles удаляет файлы клипов с диска
func (b *Builder) removeClipFiles(paths []string) {
	for _, path := range paths {
		os.Remove(path)
	}
}

// fileFingerprint возвращает MD5 содержимого файла
func fileFingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
