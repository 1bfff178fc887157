package semantic

import "log"

// DefaultThreshold минимальное косинусное сходство для принятия клипа
// Биты ниже порога остаются несматченными: пропуск предпочтительнее
// плохого совпадения
const DefaultThreshold = 0.6

// MatchResult результат подбора клипа под один бит
// Порядок результатов равен порядку битов и является обязательным
// порядком воспроизведения
type MatchResult struct {
	Seq        int
	Beat       string
	ClipID     string
	ClipText   string
	Similarity float64
	Matched    bool
}

// Matcher подбирает лучший клип под каждый бит сообщения
type Matcher struct {
	index     *Index
	threshold float64
}

// NewMatcher создаёт матчер с порогом сходства
func NewMatcher(index *Index, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{index: index, threshold: threshold}
}

// Match возвращает ровно один MatchResult на каждый бит, в порядке битов
// Лучший кандидат принимается только при сходстве не ниже порога; фолбэка
// на ближайшего кандидата нет. При недоступности индекса все биты
// помечаются несматченными и возвращается ошибка (fail closed)
func (m *Matcher) Match(beats []Beat) ([]MatchResult, error) {
	results := make([]MatchResult, len(beats))
	for i, beat := range beats {
		results[i] = MatchResult{Seq: beat.Seq, Beat: beat.Text}
	}

	for i, beat := range beats {
		candidates, err := m.index.Query(beat.Text, 1)
		if err != nil {
			log.Printf("[Matcher] Index query failed, all beats unmatched: %v", err)
			return results, err
		}
		if len(candidates) == 0 {
			continue
		}

		best := candidates[0]
		results[i].Similarity = best.Similarity
		if best.Similarity >= m.threshold {
			results[i].ClipID = best.ClipID
			results[i].ClipText = best.ClipText
			results[i].Matched = true
		}
	}
	return results, nil
}

// Threshold возвращает действующий порог сходства
func (m *Matcher) Threshold() float64 {
	return m.threshold
}
