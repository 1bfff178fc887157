// Package playback проигрывает подобранные под сообщение клипы строго
// по порядку на оба выхода
package playback

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"mosaictts/audio"
	"mosaictts/catalog"
	"mosaictts/semantic"
)

// ErrPlayback ошибка воспроизведения
var ErrPlayback = errors.New("playback failed")

// SinkPlayer проигрывает буфер на выходы и блокируется до завершения
type SinkPlayer interface {
	Play(buf *audio.Buffer) error
}

// ClipSource доступ к клипам каталога по ID
type ClipSource interface {
	ClipByID(id string) (catalog.MicroClip, bool)
}

// SchedulerConfig параметры планировщика
type SchedulerConfig struct {
	MaxClipMs int64 // Клипы длиннее обрезаются
	FadeMs    int64 // Линейное затухание в конце обрезанного клипа
	QueueSize int   // Буфер очереди сообщений
}

// DefaultSchedulerConfig возвращает конфигурацию по умолчанию
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxClipMs: 6000,
		FadeMs:    300,
		QueueSize: 8,
	}
}

// job мозаика одного сообщения, ожидающая воспроизведения
type job struct {
	id      string
	results []semantic.MatchResult
}

// Scheduler воспроизводит мозаики сообщений
// Единственная горутина Run разбирает очередь, поэтому сообщение M+1
// никогда не начинает звучать до полного окончания сообщения M,
// а клипы внутри сообщения идут строго по порядку битов
type Scheduler struct {
	cfg    SchedulerConfig
	player SinkPlayer
	clips  ClipSource

	jobs chan job

	mu       sync.Mutex
	draining bool
	pending  sync.WaitGroup
}

// NewScheduler создаёт планировщик
func NewScheduler(cfg SchedulerConfig, player SinkPlayer, clips ClipSource) *Scheduler {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 8
	}
	return &Scheduler{
		cfg:    cfg,
		player: player,
		clips:  clips,
		jobs:   make(chan job, cfg.QueueSize),
	}
}

// Enqueue ставит мозаику сообщения в очередь воспроизведения
// Блокируется при заполненной очереди. Возвращает ID задачи, либо
// пустую строку если планировщик уже останавливается
func (s *Scheduler) Enqueue(results []semantic.MatchResult) string {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return ""
	}
	// Add строго под мьютексом до снятия флага draining: Wait в Drain
	// никогда не пересекается с Add на нулевом счётчике
	s.pending.Add(1)
	s.mu.Unlock()

	j := job{id: uuid.New().String(), results: results}
	s.jobs <- j
	return j.id
}

// Drain закрывает приём и блокируется до полного воспроизведения всего
// поставленного. Сообщения, пришедшие после начала Drain, отклоняются:
// иначе живой чат удерживал бы остановку бесконечно
func (s *Scheduler) Drain() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.pending.Wait()
}

// Run разбирает очередь до отмены контекста
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Остаток очереди отбрасывается, ожидающие Drain освобождаются
			for {
				select {
				case <-s.jobs:
					s.pending.Done()
				default:
					return
				}
			}
		case j := <-s.jobs:
			s.playMessage(ctx, j)
			s.pending.Done()
		}
	}
}

// playMessage проигрывает клипы одного сообщения по порядку
// Несматченные биты просто пропускаются, без заполняющей тишины.
// Неудачное воспроизведение клипа логируется и не повторяется
func (s *Scheduler) playMessage(ctx context.Context, j job) {
	var played int
	for _, res := range j.results {
		if ctx.Err() != nil {
			return
		}
		if !res.Matched {
			continue
		}

		clip, ok := s.clips.ClipByID(res.ClipID)
		if !ok {
			log.Printf("[Scheduler] Job %s: clip %s vanished from catalog", j.id[:8], res.ClipID)
			continue
		}

		buf, err := audio.DecodeFile(clip.ClipFile)
		if err != nil {
			log.Printf("[Scheduler] Job %s: %v: clip %s: %v", j.id[:8], ErrPlayback, clip.ID, err)
			continue
		}
		buf = trimWithFade(buf, s.cfg.MaxClipMs, s.cfg.FadeMs)

		if err := s.player.Play(buf); err != nil {
			log.Printf("[Scheduler] Job %s: %v: clip %s: %v", j.id[:8], ErrPlayback, clip.ID, err)
			continue
		}
		played++
	}

	if played > 0 {
		log.Printf("[Scheduler] Job %s: played %d/%d beats", j.id[:8], played, len(j.results))
	}
}

// trimWithFade обрезает буфер до maxMs с линейным затуханием в конце,
// чтобы обрезка не щёлкала
func trimWithFade(buf *audio.Buffer, maxMs, fadeMs int64) *audio.Buffer {
	if maxMs <= 0 || buf.DurationMs() <= maxMs {
		return buf
	}

	trimmed := buf.Slice(0, maxMs)
	fadeSamples := int(fadeMs) * buf.SampleRate / 1000
	if fadeSamples > len(trimmed.Samples) {
		fadeSamples = len(trimmed.Samples)
	}

	start := len(trimmed.Samples) - fadeSamples
	for i := 0; i < fadeSamples; i++ {
		gain := 1.0 - float32(i)/float32(fadeSamples)
		trimmed.Samples[start+i] *= gain
	}
	return trimmed
}
