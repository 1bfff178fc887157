package semantic

import (
	"regexp"
	"strings"
)

// Beat семантический бит сообщения: единица поиска по каталогу
// Seq задаёт порядок воспроизведения явно
type Beat struct {
	Seq  int
	Text string
}

// DefaultWordBudget максимум слов в одном бите до разбиения
// по слабым границам
const DefaultWordBudget = 12

var (
	// Сильные границы: конец предложения или клаузы
	strongBoundary = regexp.MustCompile(`[.!?;,]+`)
	// Слабые границы: союзы внутри длинной клаузы
	weakBoundary = regexp.MustCompile(`\s+(?:but|and|so|then)\s+`)
)

// SplitBeats разбивает сообщение на упорядоченные биты
// Сначала режем по границам предложений и клауз; куски длиннее бюджета
// слов дорезаем по союзам. Сообщение без границ остаётся одним битом
func SplitBeats(message string) []Beat {
	return SplitBeatsBudget(message, DefaultWordBudget)
}

// SplitBeatsBudget разбивает сообщение с явным бюджетом слов
func SplitBeatsBudget(message string, wordBudget int) []Beat {
	if wordBudget <= 0 {
		wordBudget = DefaultWordBudget
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}

	var units []string
	for _, part := range splitClean(strongBoundary, message) {
		if wordCount(part) <= wordBudget {
			units = append(units, part)
			continue
		}
		// Длинная клауза без слабых границ остаётся целой
		units = append(units, splitClean(weakBoundary, part)...)
	}
	if len(units) == 0 {
		units = []string{message}
	}

	beats := make([]Beat, len(units))
	for i, text := range units {
		beats[i] = Beat{Seq: i, Text: text}
	}
	return beats
}

// splitClean режет текст по регулярке, отбрасывая пустые куски
func splitClean(re *regexp.Regexp, text string) []string {
	var parts []string
	for _, part := range re.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// wordCount считает слова в тексте
func wordCount(text string) int {
	return len(strings.Fields(text))
}
