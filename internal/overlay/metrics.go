package overlay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics Prometheus-метрики движка наложений.
// Все методы безопасны для nil (метрики отключены).
type Metrics struct {
	slotsAllocated prometheus.Counter
	slotsReleased  prometheus.Counter
	slotFallbacks  prometheus.Counter
	markersLive    prometheus.Gauge
	flushes        *prometheus.CounterVec
	droppedEntries prometheus.Counter
	packets        *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		slotsAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "slots_allocated_total",
			Help:      "Выделенные слоты якорей рамок.",
		}),
		slotsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "slots_released_total",
			Help:      "Освобождённые слоты якорей рамок.",
		}),
		slotFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "slot_fallbacks_total",
			Help:      "Выделения резервного y из-за заполненной колонки.",
		}),
		markersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "overlay",
			Name:      "markers_live",
			Help:      "Рамки, показанные зрителям в данный момент.",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "preview_flushes_total",
			Help:      "Отложенные отправки превью по результату.",
		}, []string{"result"}),
		droppedEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "preview_entries_dropped_total",
			Help:      "Клетки превью, отброшенные из-за смены мира зрителем.",
		}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "packets_sent_total",
			Help:      "Пакеты наложений, отправленные зрителям.",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.slotsAllocated, m.slotsReleased, m.slotFallbacks,
		m.markersLive, m.flushes, m.droppedEntries, m.packets)
	return m
}

// Результаты отложенной отправки превью
const (
	flushRendered     = "rendered"
	flushCleared      = "cleared"
	flushDisconnected = "disconnected"
	flushEmpty        = "empty"
)

// Виды пакетов
const (
	packetOverride = "override"
	packetTag      = "tag"
	packetResync   = "resync"
)

func (m *Metrics) slotAllocated() {
	if m != nil {
		m.slotsAllocated.Inc()
	}
}

func (m *Metrics) slotReleased() {
	if m != nil {
		m.slotsReleased.Inc()
	}
}

func (m *Metrics) slotFallback() {
	if m != nil {
		m.slotsAllocated.Inc()
		m.slotFallbacks.Inc()
	}
}

func (m *Metrics) markerShown() {
	if m != nil {
		m.markersLive.Inc()
	}
}

func (m *Metrics) markerRestored() {
	if m != nil {
		m.markersLive.Dec()
	}
}

func (m *Metrics) flush(result string) {
	if m != nil {
		m.flushes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) dropped(n int) {
	if m != nil && n > 0 {
		m.droppedEntries.Add(float64(n))
	}
}

func (m *Metrics) sent(kind string, n int) {
	if m != nil && n > 0 {
		m.packets.WithLabelValues(kind).Add(float64(n))
	}
}
