package monitoring

import (
	"context"

	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/infrastructure/eventbus"
)

// MetricsHook turns bus events into Monitor metrics.
//
// Usage:
//
//	monitor := monitoring.NewMonitor(logger)
//	detach := monitoring.NewMetricsHook(monitor, logger).Attach(bus)
//	defer detach()
type MetricsHook struct {
	monitor *Monitor
	logger  *zap.Logger
}

// NewMetricsHook creates a metrics-collecting bus subscriber.
func NewMetricsHook(monitor *Monitor, logger *zap.Logger) *MetricsHook {
	return &MetricsHook{monitor: monitor, logger: logger}
}

// Attach subscribes to every event type and returns the detach function.
func (h *MetricsHook) Attach(bus eventbus.Bus) func() {
	return bus.Subscribe("*", h.Handle)
}

// Handle records one event. Unknown event types are ignored.
func (h *MetricsHook) Handle(_ context.Context, ev eventbus.Event) {
	switch p := ev.Payload().(type) {
	case eventbus.TurnCompletedPayload:
		h.monitor.RecordTurn(p.Path, p.Failed, p.Duration)
	case eventbus.MediaGeneratedPayload:
		h.monitor.RecordMedia(p.Kind, p.Provider, true)
	case eventbus.MediaFailedPayload:
		h.monitor.RecordMedia(p.Kind, p.Provider, false)
		h.monitor.RecordProviderError(p.Provider, p.ErrorKind)
	case eventbus.VideoJobStatePayload:
		h.monitor.RecordVideoTransition(p.To)
	case eventbus.MemorySavedPayload:
		h.monitor.RecordMemorySaved()
	default:
		h.logger.Debug("Event without metrics", zap.String("type", ev.Type()))
	}
}
