// Package semantic реализует векторный поиск клипов: эмбеддинги текста,
// разбиение сообщений на биты и подбор лучшего клипа под каждый бит
package semantic

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync/atomic"

	"mosaictts/catalog"
)

// ErrIndexUnavailable индекс не готов или модель эмбеддингов недоступна
// Матчинг в этом случае закрывается полностью: совпадения не возвращаются
var ErrIndexUnavailable = errors.New("embedding index unavailable")

// Embedder интерфейс модели текстовых эмбеддингов
// Векторы должны быть L2-нормализованы: поиск использует скалярное
// произведение как косинусное сходство
type Embedder interface {
	Embed(text string) ([]float32, error)
	EmbedBatch(texts []string) ([][]float32, error)
}

// Candidate результат поиска по индексу
type Candidate struct {
	ClipID     string
	ClipText   string
	Similarity float64
}

// indexEntry клип с предвычисленным вектором
type indexEntry struct {
	clipID string
	text   string
	vector []float32
}

// snapshot иммутабельная версия индекса
// Запросы всегда видят целиком старую или целиком новую версию
type snapshot struct {
	entries []indexEntry
}

// Index векторный индекс текстов клипов
// Пересборка готовит новый снапшот в стороне и атомарно подменяет его,
// конкурентные запросы не блокируются
type Index struct {
	embedder Embedder
	current  atomic.Pointer[snapshot]
}

// batchSize размер пакета при эмбеддинге каталога
const batchSize = 32

// NewIndex создаёт пустой индекс
func NewIndex(embedder Embedder) *Index {
	return &Index{embedder: embedder}
}

// Build строит индекс по всем клипам каталога и подменяет активную версию
func (idx *Index) Build(clips []catalog.MicroClip) error {
	entries, err := idx.embedClips(clips)
	if err != nil {
		return err
	}
	idx.swap(entries)
	log.Printf("[Index] Built: %d clips indexed", len(entries))
	return nil
}

// AddClips добавляет клипы без пересчёта уже проиндексированных векторов
func (idx *Index) AddClips(clips []catalog.MicroClip) error {
	fresh, err := idx.embedClips(clips)
	if err != nil {
		return err
	}

	var entries []indexEntry
	if cur := idx.current.Load(); cur != nil {
		entries = append(entries, cur.entries...)
	}
	entries = append(entries, fresh...)
	idx.swap(entries)

	log.Printf("[Index] Added %d clips, %d total", len(fresh), len(entries))
	return nil
}

// embedClips считает векторы пакетами
func (idx *Index) embedClips(clips []catalog.MicroClip) ([]indexEntry, error) {
	if idx.embedder == nil {
		return nil, ErrIndexUnavailable
	}

	entries := make([]indexEntry, 0, len(clips))
	for start := 0; start < len(clips); start += batchSize {
		end := start + batchSize
		if end > len(clips) {
			end = len(clips)
		}
		batch := clips[start:end]

		texts := make([]string, len(batch))
		for i, clip := range batch {
			texts[i] = clip.Text
		}

		vectors, err := idx.embedder.EmbedBatch(texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts",
				ErrIndexUnavailable, len(vectors), len(batch))
		}

		for i, clip := range batch {
			entries = append(entries, indexEntry{
				clipID: clip.ID,
				text:   clip.Text,
				vector: vectors[i],
			})
		}
	}
	return entries, nil
}

// swap подменяет активную версию индекса
func (idx *Index) swap(entries []indexEntry) {
	// Порядок по ID делает обход при запросе детерминированным
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].clipID < entries[j].clipID
	})
	idx.current.Store(&snapshot{entries: entries})
}

// Ready возвращает true если индекс построен и непуст
func (idx *Index) Ready() bool {
	cur := idx.current.Load()
	return cur != nil && len(cur.entries) > 0
}

// Size возвращает количество проиндексированных клипов
func (idx *Index) Size() int {
	cur := idx.current.Load()
	if cur == nil {
		return 0
	}
	return len(cur.entries)
}

// Query возвращает k ближайших клипов к тексту запроса, по убыванию
// сходства. При равенстве сходства побеждает меньший ID
func (idx *Index) Query(text string, k int) ([]Candidate, error) {
	cur := idx.current.Load()
	if cur == nil || len(cur.entries) == 0 {
		return nil, ErrIndexUnavailable
	}

	query, err := idx.embedder.Embed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	candidates := make([]Candidate, 0, len(cur.entries))
	for _, entry := range cur.entries {
		candidates = append(candidates, Candidate{
			ClipID:     entry.clipID,
			ClipText:   entry.text,
			Similarity: dotProduct(query, entry.vector),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].ClipID < candidates[j].ClipID
	})

	if k > 0 && k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// dotProduct скалярное произведение (= косинус для нормализованных векторов)
func dotProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
