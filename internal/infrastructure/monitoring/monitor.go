package monitoring

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const namespace = "assistant"

// Metrics 轮次与媒体生成的原子计数，供仪表盘快照读取
type Metrics struct {
	TurnsTotal  uint64
	TurnsFailed uint64

	MediaSuccess uint64
	MediaFailed  uint64

	ProviderErrors uint64
	MemoriesSaved  uint64

	// 延迟 (纳秒)
	TurnLatencySum   uint64
	TurnLatencyCount uint64

	StartTime time.Time
}

// Monitor 性能监控器
type Monitor struct {
	metrics  *Metrics
	registry *prometheus.Registry
	logger   *zap.Logger

	turns          *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	media          *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	videoStates    *prometheus.CounterVec
	memoriesSaved  prometheus.Counter

	mu           sync.RWMutex
	history      []MetricsSnapshot
	historyLimit int
}

// MetricsSnapshot 指标快照
type MetricsSnapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	TurnsPerMinute float64   `json:"turns_per_minute"`
	AvgTurnMs      float64   `json:"avg_turn_ms"`
	MediaFailed    uint64    `json:"media_failed"`
	MemoryMB       float64   `json:"memory_mb"`
	Goroutines     int       `json:"goroutines"`
}

// NewMonitor 创建监控器。每个 Monitor 持有独立的 registry。
func NewMonitor(logger *zap.Logger) *Monitor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Monitor{
		metrics:  &Metrics{StartTime: time.Now()},
		registry: reg,
		logger:   logger.With(zap.String("component", "monitor")),
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns handled, by path and outcome.",
		}, []string{"path", "outcome"}),
		turnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"path"}),
		media: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_generations_total",
			Help:      "Media generations, by kind, provider and outcome.",
		}, []string{"kind", "provider", "outcome"}),
		providerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider failures, by provider and failure kind.",
		}, []string{"provider", "kind"}),
		videoStates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "video",
			Name:      "job_transitions_total",
			Help:      "Video job state transitions, by target state.",
		}, []string{"to"}),
		memoriesSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_saved_total",
			Help:      "Memories written automatically after a turn.",
		}),
		history:      make([]MetricsSnapshot, 0, 100),
		historyLimit: 100,
	}
}

// RecordTurn 记录一轮对话
func (m *Monitor) RecordTurn(path string, failed bool, d time.Duration) {
	outcome := "ok"
	if failed {
		outcome = "error"
		atomic.AddUint64(&m.metrics.TurnsFailed, 1)
	}
	atomic.AddUint64(&m.metrics.TurnsTotal, 1)
	atomic.AddUint64(&m.metrics.TurnLatencySum, uint64(d.Nanoseconds()))
	atomic.AddUint64(&m.metrics.TurnLatencyCount, 1)

	m.turns.WithLabelValues(path, outcome).Inc()
	m.turnDuration.WithLabelValues(path).Observe(d.Seconds())
}

// RecordMedia 记录一次媒体生成
func (m *Monitor) RecordMedia(kind, provider string, ok bool) {
	outcome := "ok"
	if ok {
		atomic.AddUint64(&m.metrics.MediaSuccess, 1)
	} else {
		outcome = "error"
		atomic.AddUint64(&m.metrics.MediaFailed, 1)
	}
	m.media.WithLabelValues(kind, provider, outcome).Inc()
}

// RecordProviderError 记录一次供应商失败
func (m *Monitor) RecordProviderError(provider, kind string) {
	atomic.AddUint64(&m.metrics.ProviderErrors, 1)
	m.providerErrors.WithLabelValues(provider, kind).Inc()
}

// RecordVideoTransition 记录视频任务状态变化
func (m *Monitor) RecordVideoTransition(to string) {
	m.videoStates.WithLabelValues(to).Inc()
}

// RecordMemorySaved 记录一次自动记忆写入
func (m *Monitor) RecordMemorySaved() {
	atomic.AddUint64(&m.metrics.MemoriesSaved, 1)
	m.memoriesSaved.Inc()
}

func (m *Monitor) avgTurnMs() float64 {
	if count := atomic.LoadUint64(&m.metrics.TurnLatencyCount); count > 0 {
		return float64(atomic.LoadUint64(&m.metrics.TurnLatencySum)) / float64(count) / 1e6
	}
	return 0
}

// GetStats 获取当前统计
func (m *Monitor) GetStats() map[string]any {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]any{
		"uptime_seconds":  time.Since(m.metrics.StartTime).Seconds(),
		"turns_total":     atomic.LoadUint64(&m.metrics.TurnsTotal),
		"turns_failed":    atomic.LoadUint64(&m.metrics.TurnsFailed),
		"media_success":   atomic.LoadUint64(&m.metrics.MediaSuccess),
		"media_failed":    atomic.LoadUint64(&m.metrics.MediaFailed),
		"provider_errors": atomic.LoadUint64(&m.metrics.ProviderErrors),
		"memories_saved":  atomic.LoadUint64(&m.metrics.MemoriesSaved),
		"avg_turn_ms":     m.avgTurnMs(),
		"memory_mb":       float64(memStats.Alloc) / 1024 / 1024,
		"goroutines":      runtime.NumGoroutine(),
	}
}

// Snapshot 创建快照并保存
func (m *Monitor) Snapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	minutes := time.Since(m.metrics.StartTime).Minutes()
	snapshot := MetricsSnapshot{
		Timestamp:   time.Now(),
		AvgTurnMs:   m.avgTurnMs(),
		MediaFailed: atomic.LoadUint64(&m.metrics.MediaFailed),
		MemoryMB:    float64(memStats.Alloc) / 1024 / 1024,
		Goroutines:  runtime.NumGoroutine(),
	}
	if minutes > 0 {
		snapshot.TurnsPerMinute = float64(atomic.LoadUint64(&m.metrics.TurnsTotal)) / minutes
	}

	m.mu.Lock()
	m.history = append(m.history, snapshot)
	if len(m.history) > m.historyLimit {
		m.history = m.history[1:]
	}
	m.mu.Unlock()

	return snapshot
}

// GetHistory 获取历史快照
func (m *Monitor) GetHistory() []MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]MetricsSnapshot, len(m.history))
	copy(result, m.history)
	return result
}

// StartCollector 启动定期收集，ctx 结束时返回
func (m *Monitor) StartCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Snapshot()
		}
	}
}

// DashboardData 仪表盘数据
type DashboardData struct {
	Stats   map[string]any    `json:"stats"`
	History []MetricsSnapshot `json:"history"`
}

// GetDashboardData 获取仪表盘数据
func (m *Monitor) GetDashboardData() *DashboardData {
	return &DashboardData{
		Stats:   m.GetStats(),
		History: m.GetHistory(),
	}
}
