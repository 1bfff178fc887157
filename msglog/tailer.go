// Package msglog читает append-only лог сообщений чата, который пишет
// внешний процесс сессии, и отдаёт новые записи в порядке поступления
package msglog

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"time"
)

// Message одна запись лога чата
type Message struct {
	Timestamp string // HH:MM:SS из лога
	Text      string
}

// TailerConfig параметры чтения лога
type TailerConfig struct {
	Path         string
	PollInterval time.Duration
	FromEnd      bool // Пропустить накопленное содержимое при старте
}

// DefaultTailerConfig возвращает конфигурацию по умолчанию
func DefaultTailerConfig(path string) TailerConfig {
	return TailerConfig{
		Path:         path,
		PollInterval: time.Second,
		FromEnd:      true,
	}
}

// lineFormat: "[HH:MM:SS] text"
var lineFormat = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2})\]\s*(.+)$`)

// Tailer следит за ростом файла лога
// Лог может дописываться конкурентно с чтением: обрабатываются только
// полные строки, хвост без перевода строки ждёт следующего опроса
type Tailer struct {
	cfg     TailerConfig
	offset  int64
	partial []byte
}

// NewTailer создаёт тейлер лога
func NewTailer(cfg TailerConfig) *Tailer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Tailer{cfg: cfg}
}

// Run опрашивает лог до отмены контекста, вызывая handle для каждой
// новой записи. Отсутствующий файл не считается ошибкой: ждём появления
func (t *Tailer) Run(ctx context.Context, handle func(Message)) error {
	if t.cfg.FromEnd {
		if info, err := os.Stat(t.cfg.Path); err == nil {
			t.offset = info.Size()
		}
	}

	log.Printf("[MsgLog] Tailing: %s (poll %v)", t.cfg.Path, t.cfg.PollInterval)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.poll(handle)
		}
	}
}

// poll читает накопившиеся с прошлого опроса байты и отдаёт полные строки
func (t *Tailer) poll(handle func(Message)) {
	info, err := os.Stat(t.cfg.Path)
	if err != nil {
		return
	}

	// Файл стал короче - лог пересоздан, читаем с начала
	if info.Size() < t.offset {
		log.Printf("[MsgLog] Log truncated, restarting from beginning")
		t.offset = 0
		t.partial = nil
	}
	if info.Size() == t.offset {
		return
	}

	file, err := os.Open(t.cfg.Path)
	if err != nil {
		return
	}
	defer file.Close()

	if _, err := file.Seek(t.offset, io.SeekStart); err != nil {
		return
	}

	data, err := io.ReadAll(file)
	if err != nil && len(data) == 0 {
		return
	}
	t.offset += int64(len(data))

	data = append(t.partial, data...)
	lines := bytes.Split(data, []byte("\n"))

	// Последний кусок без перевода строки остаётся на следующий опрос
	t.partial = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		if msg, ok := ParseLine(string(line)); ok {
			handle(msg)
		}
	}
}

// ParseLine разбирает одну строку лога
// Строки не в формате лога игнорируются. Текст после таймстемпа
// озвучивается целиком: никаких попыток угадать отправителя по ":",
// двоеточие - обычная часть сообщения
func ParseLine(line string) (Message, bool) {
	line = strings.TrimRight(line, "\r")
	m := lineFormat.FindStringSubmatch(line)
	if m == nil {
		return Message{}, false
	}

	msg := Message{Timestamp: m[1], Text: strings.TrimSpace(m[2])}
	if msg.Text == "" {
		return Message{}, false
	}
	return msg, true
}
