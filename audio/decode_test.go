package audio

import (
	"math"
	"path/filepath"
	"testing"
)

// sineBuffer генерирует тестовый синус
func sineBuffer(freq float64, durationMs int64, sampleRate int) *Buffer {
	n := int(durationMs * int64(sampleRate) / 1000)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate}
}

func TestWAVRoundtrip(t *testing.T) {
	original := sineBuffer(440, 500, 16000)
	path := filepath.Join(t.TempDir(), "test.wav")

	if err := WriteClipWAV(path, original); err != nil {
		t.Fatalf("WriteClipWAV: %v", err)
	}

	decoded, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}

	if decoded.SampleRate != original.SampleRate {
		t.Errorf("sample rate = %d, want %d", decoded.SampleRate, original.SampleRate)
	}
	if len(decoded.Samples) != len(original.Samples) {
		t.Fatalf("sample count = %d, want %d", len(decoded.Samples), len(original.Samples))
	}

	// PCM16 квантование: ошибка не больше 1/32767 с запасом
	for i := range original.Samples {
		diff := math.Abs(float64(decoded.Samples[i] - original.Samples[i]))
		if diff > 0.001 {
			t.Fatalf("sample %d: diff %f too large", i, diff)
		}
	}
}

func TestDecodeFileUnsupported(t *testing.T) {
	if _, err := DecodeFile("clip.ogg"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestBufferSlice(t *testing.T) {
	buf := sineBuffer(440, 1000, 16000)

	t.Run("Middle", func(t *testing.T) {
		s := buf.Slice(250, 750)
		if got := s.DurationMs(); got != 500 {
			t.Errorf("duration = %d, want 500", got)
		}
	})

	t.Run("ClampedEnd", func(t *testing.T) {
		s := buf.Slice(900, 5000)
		if got := s.DurationMs(); got != 100 {
			t.Errorf("duration = %d, want 100", got)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		s := buf.Slice(500, 500)
		if len(s.Samples) != 0 {
			t.Errorf("expected empty slice, got %d samples", len(s.Samples))
		}
	})

	t.Run("CopyNotAlias", func(t *testing.T) {
		s := buf.Slice(0, 100)
		s.Samples[0] = 42
		if buf.Samples[0] == 42 {
			t.Error("slice must copy samples, not alias")
		}
	})
}

func TestResample(t *testing.T) {
	buf := sineBuffer(440, 1000, 44100)

	down := buf.Resample(16000)
	if down.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", down.SampleRate)
	}
	// Длительность сохраняется с точностью до миллисекунды
	if d := down.DurationMs(); d < 999 || d > 1001 {
		t.Errorf("duration after resample = %d ms, want ~1000", d)
	}

	// Без изменения частоты возвращается тот же буфер
	same := buf.Resample(44100)
	if len(same.Samples) != len(buf.Samples) {
		t.Errorf("resample to same rate changed length: %d != %d", len(same.Samples), len(buf.Samples))
	}
}

func TestDBFS(t *testing.T) {
	t.Run("Silence", func(t *testing.T) {
		silence := make([]float32, 16000)
		if got := DBFS(silence); got != -96.0 {
			t.Errorf("DBFS(silence) = %f, want -96", got)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if got := DBFS(nil); got != -96.0 {
			t.Errorf("DBFS(nil) = %f, want -96", got)
		}
	})

	t.Run("FullScaleSine", func(t *testing.T) {
		buf := sineBuffer(440, 1000, 16000)
		// Синус с амплитудой 0.5: RMS = 0.5/sqrt(2), примерно -9 dBFS
		got := DBFS(buf.Samples)
		if got < -10 || got > -8 {
			t.Errorf("DBFS(sine 0.5) = %f, want ~-9", got)
		}
	})

	t.Run("LoudLouderThanQuiet", func(t *testing.T) {
		loud := sineBuffer(440, 500, 16000)
		quiet := &Buffer{Samples: make([]float32, len(loud.Samples)), SampleRate: 16000}
		for i, s := range loud.Samples {
			quiet.Samples[i] = s * 0.1
		}
		if DBFS(loud.Samples) <= DBFS(quiet.Samples) {
			t.Error("louder signal must have higher dBFS")
		}
	})
}
