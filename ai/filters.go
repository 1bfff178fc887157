package ai

import (
	"regexp"
	"strings"
)

// Известные паттерны галлюцинаций Whisper - текст, который модель
// выдумывает на шуме или тишине
var hallucinationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\bha\s*){5,}`),
	regexp.MustCompile(`(?i)(\bhaha\s*){4,}`),
	regexp.MustCompile(`(?i)(\blol\s*){4,}`),
	regexp.MustCompile(`(?i)(\bum\s*){5,}`),
	regexp.MustCompile(`(?i)(\buh\s*){5,}`),
	regexp.MustCompile(`(?i)thank you(\.|\s)*thank you(\.|\s)*thank you`),
	regexp.MustCompile(`(?i)please subscribe`),
	regexp.MustCompile(`(?i)like and subscribe`),
	regexp.MustCompile(`(?i)see you in the next`),
	regexp.MustCompile(`(?i)\[music\](\s*\[music\])+`),
	regexp.MustCompile(`♪+`),
}

// IsHallucination определяет, является ли транскрипт галлюцинацией Whisper
// Типичные случаи: зацикленные филлеры, YouTube-концовки, спам нотами,
// длинные повторяющиеся паттерны
func IsHallucination(text string) bool {
	if len(text) < 50 {
		return false
	}

	for _, pattern := range hallucinationPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}

	// Длинный фрагмент (8+ символов), повторённый 3+ раза подряд -
	// ловит зацикливание, но не естественные повторы вроде "no no no"
	for length := 8; length <= 30; length++ {
		for i := 0; i+length*3 <= len(text); i++ {
			chunk := text[i : i+length]
			if chunk == text[i+length:i+length*2] && chunk == text[i+length*2:i+length*3] {
				return true
			}
		}
	}

	// Очень длинный транскрипт подозрителен сам по себе
	return len(text) > 500
}

// CleanHallucination пытается спасти полезный текст из галлюцинации,
// обрезая его на первом повторе
func CleanHallucination(text string) string {
	for length := 2; length <= 20; length++ {
		for i := 0; i+length*2 <= len(text); i++ {
			if text[i:i+length] == text[i+length:i+length*2] {
				cleaned := strings.TrimSpace(text[:i])
				if len(cleaned) > 0 {
					return cleaned
				}
			}
		}
	}
	if len(text) > 100 {
		return strings.TrimSpace(text[:100])
	}
	return strings.TrimSpace(text)
}

var alnumOnly = regexp.MustCompile(`[^a-zA-Z0-9]`)

// IsTranscriptTooShort проверяет, слишком ли короткий транскрипт,
// чтобы быть осмысленным (minLen - минимум буквенно-цифровых символов)
func IsTranscriptTooShort(text string, minLen int) bool {
	cleaned := alnumOnly.ReplaceAllString(text, "")
	return len(cleaned) < minLen
}
