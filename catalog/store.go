package catalog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store хранилище манифеста каталога
type Store struct {
	path       string
	mu         sync.RWMutex
	manifest   Manifest
	savedBytes []byte // последняя сохранённая сериализация
}

// NewStore создаёт хранилище манифеста
// Существующий манифест загружается, отсутствующий не считается ошибкой
func NewStore(path string) (*Store, error) {
	store := &Store{
		path:     path,
		manifest: Manifest{Version: CurrentVersion},
	}

	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load catalog manifest: %w", err)
	}

	log.Printf("[Catalog] Store initialized: %s (%d sources, %d clips)",
		path, len(store.manifest.Sources), len(store.manifest.Clips))
	return store, nil
}

// load загружает манифест из файла
func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s.manifest); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	s.savedBytes = data

	return nil
}

// Save сохраняет манифест атомарно (временный файл + rename)
// Запись пропускается, если сериализация не изменилась с последнего
// сохранения - пересборка без изменений не трогает файл
func (s *Store) Save() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sortUnsafe()

	data, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if string(data) == string(s.savedBytes) {
		return false, nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath) // Cleanup
		return false, fmt.Errorf("failed to rename temp file: %w", err)
	}

	s.savedBytes = data
	return true, nil
}

// sortUnsafe приводит манифест к детерминированному порядку
func (s *Store) sortUnsafe() {
	sort.Slice(s.manifest.Sources, func(i, j int) bool {
		return s.manifest.Sources[i].Path < s.manifest.Sources[j].Path
	})
	sort.Slice(s.manifest.Clips, func(i, j int) bool {
		a, b := s.manifest.Clips[i], s.manifest.Clips[j]
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		if a.StartMs != b.StartMs {
			return a.StartMs < b.StartMs
		}
		return a.ID < b.ID
	})
}

// Clips возвращает копию всех клипов
func (s *Store) Clips() []MicroClip {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]MicroClip, len(s.manifest.Clips))
	copy(result, s.manifest.Clips)
	return result
}

// Sources возвращает копию всех записей об исходниках
func (s *Store) Sources() []SourceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]SourceRecord, len(s.manifest.Sources))
	copy(result, s.manifest.Sources)
	return result
}

// SourceByPath возвращает запись об исходнике по пути
func (s *Store) SourceByPath(path string) (SourceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, src := range s.manifest.Sources {
		if src.Path == path {
			return src, true
		}
	}
	return SourceRecord{}, false
}

// ClipByID возвращает клип по ID
func (s *Store) ClipByID(id string) (MicroClip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, clip := range s.manifest.Clips {
		if clip.ID == id {
			return clip, true
		}
	}
	return MicroClip{}, false
}

// ReplaceSource заменяет запись об исходнике и все его клипы
// Возвращает пути файлов вытесненных клипов (для удаления с диска)
func (s *Store) ReplaceSource(rec SourceRecord, clips []MicroClip) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.removeSourceUnsafe(rec.Path)
	s.manifest.Sources = append(s.manifest.Sources, rec)
	s.manifest.Clips = append(s.manifest.Clips, clips...)
	return removed
}

// RemoveSource удаляет исходник и его клипы из манифеста
// Возвращает пути файлов удалённых клипов
func (s *Store) RemoveSource(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeSourceUnsafe(path)
}

// removeSourceUnsafe удаляет без блокировки (вызывать только при удержании lock)
func (s *Store) removeSourceUnsafe(path string) []string {
	sources := s.manifest.Sources[:0]
	for _, src := range s.manifest.Sources {
		if src.Path != path {
			sources = append(sources, src)
		}
	}
	s.manifest.Sources = sources

	var removed []string
	clips := s.manifest.Clips[:0]
	for _, clip := range s.manifest.Clips {
		if clip.SourceFile == path {
			removed = append(removed, clip.ClipFile)
		} else {
			clips = append(clips, clip)
		}
	}
	s.manifest.Clips = clips
	return removed
}

// Count возвращает количество клипов в каталоге
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.manifest.Clips)
}
