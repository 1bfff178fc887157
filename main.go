package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mosaictts/ai"
	"mosaictts/audio"
	"mosaictts/catalog"
	"mosaictts/config"
	"mosaictts/models"
	"mosaictts/msglog"
	"mosaictts/playback"
	"mosaictts/semantic"
)

func main() {
	log.Println("MosaicTTS engine starting...")

	configPath := flag.String("config", "config.yaml", "Path to config file")
	monitorDevice := flag.String("monitor", "", "Monitor output device (overrides config)")
	cableDevice := flag.String("cable", "", "Virtual cable output device (overrides config)")
	threshold := flag.Float64("threshold", 0, "Similarity threshold (overrides config)")
	messageLog := flag.String("log", "", "Chat message log path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *monitorDevice != "" {
		cfg.Audio.MonitorDevice = *monitorDevice
	}
	if *cableDevice != "" {
		cfg.Audio.CableDevice = *cableDevice
	}
	if *threshold > 0 {
		cfg.Matching.Threshold = *threshold
	}
	if *messageLog != "" {
		cfg.Messages.Log = *messageLog
	}

	// Каталог клипов
	store, err := catalog.NewStore(cfg.Paths.CatalogFile)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	if store.Count() == 0 {
		log.Printf("Catalog is empty, run parseclips first: %s", cfg.Paths.CatalogFile)
	}

	// Модель эмбеддингов и векторный индекс
	if err := models.Ensure(context.Background(), models.EmbeddingFiles(cfg.Models)); err != nil {
		log.Printf("Failed to fetch embedding model: %v", err)
	}
	embedder, err := ai.NewTextEmbedder(ai.DefaultTextEmbedderConfig(
		cfg.Models.EmbeddingModel, cfg.Models.EmbeddingTokenizer))
	if err != nil {
		// Без модели матчинг закрыт полностью, но процесс живёт:
		// оператор видит несматченные биты в отчёте покрытия
		log.Printf("Embedding model unavailable, matching disabled: %v", err)
	}
	defer func() {
		if embedder != nil {
			embedder.Close()
		}
	}()

	var index *semantic.Index
	if embedder != nil {
		index = semantic.NewIndex(embedder)
		if err := index.Build(store.Clips()); err != nil {
			log.Printf("Failed to build index: %v", err)
		}
	} else {
		index = semantic.NewIndex(nil)
	}
	matcher := semantic.NewMatcher(index, cfg.Matching.Threshold)

	// Аудио выходы
	player, err := audio.NewPlayer(cfg.Audio.MonitorDevice, cfg.Audio.CableDevice)
	if err != nil {
		log.Fatalf("Failed to init audio output: %v", err)
	}
	defer player.Close()

	scheduler := playback.NewScheduler(playback.SchedulerConfig{
		MaxClipMs: cfg.Audio.MaxClipPlayMs,
		FadeMs:    cfg.Audio.FadeMs,
		QueueSize: 8,
	}, player, store)

	// Отчёт покрытия
	reporter := semantic.NewReporter(semantic.ReporterConfig{
		ReportPath:        cfg.Paths.CoverageReport,
		Interval:          time.Duration(cfg.Coverage.IntervalMs) * time.Millisecond,
		CoverageThreshold: cfg.Coverage.Threshold,
		QueueSize:         64,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go scheduler.Run(ctx)
	go reporter.Run(ctx)

	if cfg.Coverage.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/coverage", reporter.Hub())
		server := &http.Server{Addr: cfg.Coverage.ListenAddr, Handler: mux}
		go func() {
			log.Printf("Coverage WebSocket on ws://%s/coverage", cfg.Coverage.ListenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Coverage server: %v", err)
			}
		}()
		defer server.Close()
	}

	// Лог сообщений чата
	tailer := msglog.NewTailer(msglog.TailerConfig{
		Path:         cfg.Messages.Log,
		PollInterval: time.Duration(cfg.Messages.PollMs) * time.Millisecond,
		FromEnd:      cfg.Messages.FromEnd,
	})

	// Отдельный контекст: при остановке приём сообщений гасится первым,
	// иначе живой чат бесконечно пополняет очередь, которую мы дожидаемся
	tailCtx, stopTail := context.WithCancel(ctx)
	defer stopTail()

	go func() {
		err := tailer.Run(tailCtx, func(msg msglog.Message) {
			handleMessage(msg, cfg.Matching.WordBudget, matcher, reporter, scheduler)
		})
		if err != nil && tailCtx.Err() == nil {
			log.Printf("Tailer stopped: %v", err)
		}
	}()

	log.Printf("Engine ready: %d clips, threshold=%.2f", store.Count(), matcher.Threshold())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down, draining playback...")
	stopTail()
	scheduler.Drain()
	cancel()
}

// handleMessage прогоняет одно сообщение через весь конвейер:
// биты -> матчинг -> статистика -> очередь воспроизведения
// Ни одна ошибка здесь не роняет процесс: страдает только это сообщение
func handleMessage(msg msglog.Message, wordBudget int, matcher *semantic.Matcher,
	reporter *semantic.Reporter, scheduler *playback.Scheduler) {

	beats := semantic.SplitBeatsBudget(msg.Text, wordBudget)
	if len(beats) == 0 {
		return
	}

	results, err := matcher.Match(beats)
	if err != nil {
		log.Printf("Message %q: matching unavailable: %v", msg.Text, err)
	}
	reporter.Observe(results)

	var matched int
	for _, res := range results {
		if res.Matched {
			matched++
		}
	}
	log.Printf("Message [%s] %q: %d beats, %d matched", msg.Timestamp, msg.Text, len(beats), matched)

	if matched > 0 {
		scheduler.Enqueue(results)
	}
}
