package audio

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// SinkError ошибка записи в один из выходов
// Выходы независимы: ошибка одного не прерывает воспроизведение на другом
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Player воспроизводит PCM одновременно на два устройства вывода:
// локальный монитор и виртуальный кабель (его слушает чат-платформа)
type Player struct {
	ctx *malgo.AllocatedContext

	monitorID *malgo.DeviceID // nil = устройство по умолчанию
	cableID   *malgo.DeviceID // nil = кабель отключён

	monitorName string
	cableName   string

	mu sync.Mutex
}

// NewPlayer создаёт плеер и резолвит устройства по именам
// cableDevice="" означает работу только с монитором
func NewPlayer(monitorDevice, cableDevice string) (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	p := &Player{ctx: ctx, monitorName: "monitor", cableName: "cable"}

	p.monitorID, err = FindPlaybackDevice(ctx, monitorDevice)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("monitor device: %w", err)
	}

	if cableDevice != "" {
		p.cableID, err = FindPlaybackDevice(ctx, cableDevice)
		if err != nil {
			// Кабель не нашёлся - играем только на монитор, это не фатально
			log.Printf("[Player] Warning: cable device unavailable: %v", err)
			p.cableID = nil
		}
	}

	log.Printf("[Player] Initialized: monitor=%q cable=%q", monitorDevice, cableDevice)
	return p, nil
}

// Context возвращает malgo контекст (для перечисления устройств)
func (p *Player) Context() *malgo.AllocatedContext {
	return p.ctx
}

// Play воспроизводит буфер на оба выхода и блокируется до полного
// проигрывания на обоих. Ошибки выходов изолированы: возвращается ошибка
// только если НИ ОДИН выход не смог проиграть клип
func (p *Player) Play(buf *Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(buf.Samples) == 0 {
		return nil
	}

	type sinkTarget struct {
		name string
		id   *malgo.DeviceID
	}
	targets := []sinkTarget{{p.monitorName, p.monitorID}}
	if p.cableID != nil {
		targets = append(targets, sinkTarget{p.cableName, p.cableID})
	}

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target sinkTarget) {
			defer wg.Done()
			if err := p.playToDevice(target.id, buf); err != nil {
				errs[i] = &SinkError{Sink: target.name, Err: err}
				log.Printf("[Player] %v", errs[i])
			}
		}(i, target)
	}
	wg.Wait()

	var failed int
	var firstErr error
	for _, err := range errs {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if failed == len(targets) {
		return fmt.Errorf("all sinks failed: %w", firstErr)
	}
	return nil
}

// playToDevice проигрывает буфер на одно устройство и ждёт завершения
func (p *Player) playToDevice(deviceID *malgo.DeviceID, buf *Buffer) error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(buf.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if deviceID != nil {
		deviceConfig.Playback.DeviceID = deviceID.Pointer()
	}

	var pos int
	done := make(chan struct{})
	var closeOnce sync.Once

	onSendFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		frames := int(framecount)
		for i := 0; i < frames; i++ {
			var sample float32
			if pos < len(buf.Samples) {
				sample = buf.Samples[pos]
				pos++
			}
			bits := math.Float32bits(sample)
			pOutputSample[i*4] = byte(bits)
			pOutputSample[i*4+1] = byte(bits >> 8)
			pOutputSample[i*4+2] = byte(bits >> 16)
			pOutputSample[i*4+3] = byte(bits >> 24)
		}
		if pos >= len(buf.Samples) {
			closeOnce.Do(func() { close(done) })
		}
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSendFrames,
	})
	if err != nil {
		return fmt.Errorf("failed to init playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	<-done
	return nil
}

// HasCable возвращает true если виртуальный кабель подключен
func (p *Player) HasCable() bool {
	return p.cableID != nil
}

// Close освобождает ресурсы
func (p *Player) Close() {
	if p.ctx != nil {
		p.ctx.Uninit()
		p.ctx.Free()
	}
}
