// parseclips собирает каталог микроклипов из директории исходных записей:
// транскрипция -> нарезка по тишине -> манифест
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"mosaictts/ai"
	"mosaictts/audio"
	"mosaictts/catalog"
	"mosaictts/config"
	"mosaictts/models"
)

func main() {
	log.Println("MosaicTTS clip catalog builder starting...")

	configPath := flag.String("config", "config.yaml", "Path to config file")
	inputDir := flag.String("input", "", "Raw audio directory (overrides config)")
	outputDir := flag.String("output", "", "Clips directory (overrides config)")
	force := flag.Bool("force", false, "Reprocess all sources regardless of fingerprints")
	watch := flag.Bool("watch", false, "Keep running and rebuild on raw directory changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *inputDir != "" {
		cfg.Paths.RawDir = *inputDir
	}
	if *outputDir != "" {
		cfg.Paths.ClipsDir = *outputDir
	}

	store, err := catalog.NewStore(cfg.Paths.CatalogFile)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}

	if err := models.Ensure(context.Background(), models.WhisperFiles(cfg.Models)); err != nil {
		log.Fatalf("Failed to fetch transcription model: %v", err)
	}

	whisperCfg := ai.DefaultWhisperConfig(
		cfg.Models.WhisperEncoder, cfg.Models.WhisperDecoder, cfg.Models.WhisperTokens)
	whisperCfg.Language = cfg.Models.Language
	whisperCfg.NumThreads = cfg.Models.NumThreads

	transcriber, err := ai.NewWhisperTranscriber(whisperCfg)
	if err != nil {
		log.Fatalf("Failed to init transcriber: %v", err)
	}
	defer transcriber.Close()

	builderCfg := catalog.DefaultBuilderConfig(cfg.Paths.RawDir, cfg.Paths.ClipsDir)
	builderCfg.Workers = cfg.Builder.Workers
	builderCfg.Format = audio.ClipFormat(cfg.Audio.ClipFormat)
	builderCfg.SampleRate = cfg.Audio.SampleRate
	builderCfg.Segmenter.MinSilenceMs = cfg.Builder.MinSilenceMs
	builderCfg.Segmenter.MinClipMs = cfg.Builder.MinClipMs
	builderCfg.Segmenter.MaxClipMs = cfg.Builder.MaxClipMs
	builderCfg.Segmenter.SilenceDB = cfg.Builder.SilenceDB
	builderCfg.Segmenter.MinEnergyDB = cfg.Builder.MinEnergyDB

	builder := catalog.NewBuilder(builderCfg, store, transcriber)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Interrupted, finishing current file...")
		cancel()
	}()

	if _, err := builder.Rebuild(ctx, *force); err != nil {
		log.Fatalf("Rebuild failed: %v", err)
	}

	if !*watch {
		return
	}

	if err := watchAndRebuild(ctx, builder, cfg.Paths.RawDir); err != nil && ctx.Err() == nil {
		log.Fatalf("Watch failed: %v", err)
	}
}

// watchAndRebuild пересобирает каталог при изменениях в директории
// исходников. События склеиваются: пересборка стартует после паузы
// в потоке событий, а не на каждый байт записываемого файла
func watchAndRebuild(ctx context.Context, builder *catalog.Builder, rawDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(rawDir); err != nil {
		return err
	}
	log.Printf("Watching %s for changes...", rawDir)

	const debounce = 2 * time.Second
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isAudioEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerCh = timer.C
			} else {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Watcher error: %v", err)

		case <-timerCh:
			timer = nil
			timerCh = nil
			if _, err := builder.Rebuild(ctx, false); err != nil && ctx.Err() == nil {
				log.Printf("Rebuild failed: %v", err)
			}
		}
	}
}

// isAudioEvent отбирает события по аудио файлам
func isAudioEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	return audio.KnownExtensions[ext]
}
