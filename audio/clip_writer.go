package audio

import (
	"encoding/binary"
	"fmt"
	"os"

	shine "github.com/braheezy/shine-mp3/pkg/mp3"
)

// ClipFormat формат хранения нарезанных клипов
type ClipFormat string

const (
	ClipFormatWAV ClipFormat = "wav"
	ClipFormatMP3 ClipFormat = "mp3"
)

// Ext возвращает расширение файла для формата
func (f ClipFormat) Ext() string {
	if f == ClipFormatMP3 {
		return ".mp3"
	}
	return ".wav"
}

// WriteClip записывает клип на диск в указанном формате
func WriteClip(path string, buf *Buffer, format ClipFormat) error {
	switch format {
	case ClipFormatMP3:
		return WriteClipMP3(path, buf)
	default:
		return WriteClipWAV(path, buf)
	}
}

// WriteClipWAV записывает моно PCM16 WAV файл одним проходом
func WriteClipWAV(path string, buf *Buffer) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer file.Close()

	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := uint32(len(buf.Samples) * bitsPerSample / 8)
	byteRate := buf.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	// RIFF header
	file.WriteString("RIFF")
	binary.Write(file, binary.LittleEndian, uint32(36+dataSize))
	file.WriteString("WAVE")

	// fmt chunk
	file.WriteString("fmt ")
	binary.Write(file, binary.LittleEndian, uint32(16))             // chunk size
	binary.Write(file, binary.LittleEndian, uint16(1))              // PCM
	binary.Write(file, binary.LittleEndian, uint16(channels))       // channels
	binary.Write(file, binary.LittleEndian, uint32(buf.SampleRate)) // sample rate
	binary.Write(file, binary.LittleEndian, uint32(byteRate))       // byte rate
	binary.Write(file, binary.LittleEndian, uint16(blockAlign))     // block align
	binary.Write(file, binary.LittleEndian, uint16(bitsPerSample))

	// data chunk
	file.WriteString("data")
	binary.Write(file, binary.LittleEndian, dataSize)

	pcm := make([]int16, len(buf.Samples))
	for i, s := range buf.Samples {
		// Clamp
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		pcm[i] = int16(s * 32767)
	}
	if err := binary.Write(file, binary.LittleEndian, pcm); err != nil {
		return fmt.Errorf("failed to write PCM data: %w", err)
	}

	return nil
}

// WriteClipMP3 записывает моно MP3 файл через shine-mp3 (чистый Go, без FFmpeg)
func WriteClipMP3(path string, buf *Buffer) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create MP3 file: %w", err)
	}
	defer file.Close()

	const channels = 1
	encoder := shine.NewEncoder(buf.SampleRate, channels)

	pcm := make([]int16, len(buf.Samples))
	for i, s := range buf.Samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		pcm[i] = int16(s * 32767)
	}

	// Shine кодирует блоками по 1152 сэмпла на канал - дополняем нулями
	const blockSize = 1152 * channels
	for len(pcm)%blockSize != 0 {
		pcm = append(pcm, 0)
	}

	encoder.Write(file, pcm)

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close MP3 file: %w", err)
	}
	return nil
}
