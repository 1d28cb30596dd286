package ws

import "github.com/prometheus/client_golang/prometheus"

// Metrics метрики транспорта. Методы безопасны для nil.
type Metrics struct {
	connections   prometheus.Gauge
	frames        *prometheus.CounterVec
	frameBytes    *prometheus.CounterVec
	slowConsumers prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "overlay",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Открытые WebSocket-соединения зрителей.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Subsystem: "ws",
			Name:      "frames_total",
			Help:      "Отправленные кадры BATCH по кодированию.",
		}, []string{"encoding"}),
		frameBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Subsystem: "ws",
			Name:      "frame_bytes_total",
			Help:      "Байты отправленных кадров BATCH по кодированию.",
		}, []string{"encoding"}),
		slowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overlay",
			Subsystem: "ws",
			Name:      "slow_consumers_total",
			Help:      "Соединения, закрытые из-за переполненной очереди отправки.",
		}),
	}
	reg.MustRegister(m.connections, m.frames, m.frameBytes, m.slowConsumers)
	return m
}

func (m *Metrics) connected() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) disconnected() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) frameSent(f frame) {
	if m == nil {
		return
	}
	encoding := "json"
	if f.binary {
		encoding = "zstd"
	}
	m.frames.WithLabelValues(encoding).Inc()
	m.frameBytes.WithLabelValues(encoding).Add(float64(len(f.data)))
}

func (m *Metrics) slowConsumer() {
	if m != nil {
		m.slowConsumers.Inc()
	}
}
