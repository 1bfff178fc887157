// listdevices печатает доступные устройства вывода
// Имена отсюда подставляются в config.yaml (monitorDevice, cableDevice)
package main

import (
	"fmt"
	"log"

	"github.com/gen2brain/malgo"

	"mosaictts/audio"
)

func main() {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatalf("Failed to init audio context: %v", err)
	}
	defer func() {
		ctx.Uninit()
		ctx.Free()
	}()

	devices, err := audio.ListPlaybackDevices(ctx)
	if err != nil {
		log.Fatalf("Failed to enumerate devices: %v", err)
	}

	fmt.Printf("Playback devices (%d):\n", len(devices))
	for i, dev := range devices {
		fmt.Printf("  %2d. %s\n", i, dev.Name)
	}
}
