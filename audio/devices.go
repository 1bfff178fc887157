package audio

import (
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
)

// Device аудио устройство вывода
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListPlaybackDevices возвращает список устройств воспроизведения
func ListPlaybackDevices(ctx *malgo.AllocatedContext) ([]Device, error) {
	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			ID:   deviceIDToString(info.ID),
			Name: info.Name(),
		})
	}
	return devices, nil
}

// FindPlaybackDevice ищет устройство вывода по имени (частичное совпадение,
// без учёта регистра). Пустое имя означает устройство по умолчанию (nil)
func FindPlaybackDevice(ctx *malgo.AllocatedContext, name string) (*malgo.DeviceID, error) {
	if name == "" || name == "default" {
		return nil, nil
	}

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, err
	}

	nameLower := strings.ToLower(name)
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), nameLower) {
			id := info.ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("playback device not found: %s", name)
}

// deviceIDToString конвертирует DeviceID в строку для отображения
func deviceIDToString(id malgo.DeviceID) string {
	var result strings.Builder
	for _, b := range id[:32] {
		if b == 0 {
			break
		}
		result.WriteByte(b)
	}
	return result.String()
}
