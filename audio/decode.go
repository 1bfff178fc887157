// Package audio предоставляет декодирование аудио файлов, запись клипов
// и воспроизведение PCM на устройства вывода
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// Buffer декодированное аудио: float32 [-1.0, 1.0], mono
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// DurationMs возвращает длительность в миллисекундах
func (b *Buffer) DurationMs() int64 {
	if b.SampleRate == 0 {
		return 0
	}
	return int64(len(b.Samples)) * 1000 / int64(b.SampleRate)
}

// Slice возвращает фрагмент [startMs, endMs) как новый буфер
// Границы за пределами аудио обрезаются
func (b *Buffer) Slice(startMs, endMs int64) *Buffer {
	start := int(startMs * int64(b.SampleRate) / 1000)
	end := int(endMs * int64(b.SampleRate) / 1000)
	if start < 0 {
		start = 0
	}
	if end > len(b.Samples) {
		end = len(b.Samples)
	}
	if start >= end {
		return &Buffer{SampleRate: b.SampleRate}
	}
	out := make([]float32, end-start)
	copy(out, b.Samples[start:end])
	return &Buffer{Samples: out, SampleRate: b.SampleRate}
}

// Resample приводит буфер к целевой частоте дискретизации
func (b *Buffer) Resample(targetRate int) *Buffer {
	if b.SampleRate == targetRate {
		return b
	}
	return &Buffer{
		Samples:    resampleLinear(b.Samples, b.SampleRate, targetRate),
		SampleRate: targetRate,
	}
}

// SupportedExtensions расширения, которые билдер подбирает из raw директории
// (.ogg/.flac/.m4a распознаются сканером, но декодера для них нет -
// такие файлы пропускаются с ошибкой ингестии)
var SupportedExtensions = map[string]bool{
	".mp3": true,
	".wav": true,
}

// KnownExtensions все расширения, которые считаются аудио файлами
var KnownExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".ogg": true, ".flac": true, ".m4a": true,
}

// DecodeFile декодирует аудио файл в моно float32
// Поддерживаются mp3 (go-mp3) и wav (go-audio), без FFmpeg
func DecodeFile(path string) (*Buffer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3":
		return decodeMP3(path)
	case ".wav":
		return decodeWAV(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s", ext)
	}
}

// decodeMP3 декодирует MP3 файл в моно float32
// go-mp3 всегда отдаёт signed 16-bit stereo interleaved
func decodeMP3(path string) (*Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer file.Close()

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	pcmData, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	// 2 байта на сэмпл * 2 канала
	numSamples := len(pcmData) / 4
	mono := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		left := int16(binary.LittleEndian.Uint16(pcmData[i*4:]))
		right := int16(binary.LittleEndian.Uint16(pcmData[i*4+2:]))
		mono[i] = (float32(left) + float32(right)) / 2.0 / 32768.0
	}

	return &Buffer{Samples: mono, SampleRate: decoder.SampleRate()}, nil
}

// decodeWAV декодирует WAV файл в моно float32
func decodeWAV(path string) (*Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))
	numFrames := len(buf.Data) / channels
	mono := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch]) / scale
		}
		mono[i] = sum / float32(channels)
	}

	return &Buffer{Samples: mono, SampleRate: buf.Format.SampleRate}, nil
}

// resampleLinear выполняет линейную интерполяцию для ресемплинга
func resampleLinear(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	newLen := int(float64(len(samples)) / ratio)
	resampled := make([]float32, newLen)

	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx+1 < len(samples) {
			resampled[i] = samples[srcIdx]*(1-frac) + samples[srcIdx+1]*frac
		} else if srcIdx < len(samples) {
			resampled[i] = samples[srcIdx]
		}
	}

	return resampled
}

// DBFS возвращает средний уровень сигнала в dBFS (0 = максимум)
// Тишина и пустой вход дают -96 dB
func DBFS(samples []float32) float64 {
	const floor = -96.0
	if len(samples) == 0 {
		return floor
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 1e-5 {
		return floor
	}
	return 20 * math.Log10(rms)
}
