package semantic

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// HistogramBuckets количество корзин гистограммы сходства [0..1]
const HistogramBuckets = 20

// ReporterConfig параметры отчёта о покрытии
type ReporterConfig struct {
	ReportPath        string        // Путь к файлу отчёта (JSON)
	Interval          time.Duration // Период перезаписи отчёта
	CoverageThreshold float64       // Порог доли сматченных битов
	QueueSize         int           // Буфер событий
}

// DefaultReporterConfig возвращает конфигурацию по умолчанию
func DefaultReporterConfig(reportPath string) ReporterConfig {
	return ReporterConfig{
		ReportPath:        reportPath,
		Interval:          2 * time.Second,
		CoverageThreshold: 0.75,
		QueueSize:         64,
	}
}

// recentBeats размер кольца последних битов в отчёте
const recentBeats = 20

// RecentBeat последний обработанный бит для внешней визуализации
type RecentBeat struct {
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
	Matched    bool    `json:"matched"`
}

// Report снимок статистики покрытия для внешней визуализации
type Report struct {
	TotalBeats     int                   `json:"totalBeats"`
	MatchedBeats   int                   `json:"matchedBeats"`
	Coverage       float64               `json:"coverage"`
	Healthy        bool                  `json:"healthy"` // Покрытие не ниже порога
	MeanSimilarity float64               `json:"meanSimilarity"`
	Histogram      [HistogramBuckets]int `json:"histogram"`
	Recent         []RecentBeat          `json:"recent"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

// Reporter копит статистику матчинга и периодически публикует её
// в файл отчёта и подключённым WebSocket клиентам
// Потребление fire-and-forget: переполненная очередь роняет событие,
// а не блокирует матчер
type Reporter struct {
	cfg    ReporterConfig
	events chan []MatchResult
	hub    *Hub

	mu        sync.Mutex
	total     int
	matched   int
	simSum    float64 // Бегущая сумма: демон живёт долго, копить все оценки нельзя
	histogram [HistogramBuckets]int
	recent    []RecentBeat
}

// NewReporter создаёт репортер покрытия
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Reporter{
		cfg:    cfg,
		events: make(chan []MatchResult, cfg.QueueSize),
		hub:    NewHub(),
	}
}

// Hub возвращает WebSocket хаб для подписки визуализации
func (r *Reporter) Hub() *Hub {
	return r.hub
}

// Observe принимает результаты матчинга одного сообщения
// Никогда не блокирует: при переполнении очереди событие отбрасывается
func (r *Reporter) Observe(results []MatchResult) {
	select {
	case r.events <- results:
	default:
		log.Printf("[Coverage] Queue full, dropping %d results", len(results))
	}
}

// Run обрабатывает события и публикует отчёт до отмены контекста
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.publish()
			return
		case results := <-r.events:
			r.record(results)
		case <-ticker.C:
			r.publish()
		}
	}
}

// record учитывает результаты в гистограмме
func (r *Reporter) record(results []MatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, res := range results {
		r.total++
		if res.Matched {
			r.matched++
		}
		r.simSum += res.Similarity

		bucket := int(res.Similarity * HistogramBuckets)
		if bucket < 0 {
			bucket = 0
		}
		if bucket >= HistogramBuckets {
			bucket = HistogramBuckets - 1
		}
		r.histogram[bucket]++

		r.recent = append(r.recent, RecentBeat{
			Text:       res.Beat,
			Similarity: res.Similarity,
			Matched:    res.Matched,
		})
		if len(r.recent) > recentBeats {
			r.recent = r.recent[len(r.recent)-recentBeats:]
		}
	}
}

// Snapshot возвращает текущий отчёт
func (r *Reporter) Snapshot() Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := Report{
		TotalBeats:   r.total,
		MatchedBeats: r.matched,
		Histogram:    r.histogram,
		Recent:       append([]RecentBeat(nil), r.recent...),
		UpdatedAt:    time.Now(),
	}
	if r.total > 0 {
		report.Coverage = float64(r.matched) / float64(r.total)
		report.MeanSimilarity = r.simSum / float64(r.total)
	}
	report.Healthy = report.Coverage >= r.cfg.CoverageThreshold
	return report
}

// publish пишет отчёт в файл и рассылает его WebSocket клиентам
func (r *Reporter) publish() {
	report := r.Snapshot()

	if r.cfg.ReportPath != "" {
		if err := writeReportFile(r.cfg.ReportPath, report); err != nil {
			log.Printf("[Coverage] Failed to write report: %v", err)
		}
	}
	r.hub.Broadcast(report)
}

// writeReportFile перезаписывает файл отчёта атомарно
func writeReportFile(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Hub рассылает отчёты покрытия подключённым WebSocket клиентам
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
}

// NewHub создаёт пустой хаб
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP апгрейдит соединение и регистрирует клиента
func (h *Hub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("[Coverage] WebSocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	log.Printf("[Coverage] Client connected: %s", conn.RemoteAddr())

	// Входящие сообщения не нужны, читаем до закрытия соединения
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()
}

// Broadcast отправляет отчёт всем клиентам, отваливающиеся отключаются
func (h *Hub) Broadcast(report Report) {
	data, err := json.Marshal(report)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ClientCount возвращает число подключённых клиентов
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// remove отключает клиента
func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn.Close()
	delete(h.clients, conn)
}
