package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/overlay-sync/internal/config"
	"github.com/annel0/overlay-sync/internal/eventbus"
	"github.com/annel0/overlay-sync/internal/logging"
	"github.com/annel0/overlay-sync/internal/overlay"
	"github.com/annel0/overlay-sync/internal/session"
	"github.com/annel0/overlay-sync/internal/tick"
	"github.com/annel0/overlay-sync/internal/transport/ws"
	"github.com/annel0/overlay-sync/internal/world"
)

const shutdownTimeout = 5 * time.Second

func run(parent context.Context, cfg *config.Config) error {
	if err := logging.InitDefaultLogger("server"); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.CloseDefaultLogger()
	defer func() { _ = logging.GetLoggerManager().CloseAll() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === Шина событий ===
	bus, err := newEventBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()
	eventbus.Init(bus)
	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Логирование событий не подключено: %v", err)
	}
	exporter := eventbus.NewMetricsExporter(bus, reg)
	exporter.Start()
	defer exporter.Stop()

	publisher := session.NewPublisher(bus, cfg.EventBus.Buffer)
	defer publisher.Close()

	// === Мир, цикл тиков, хост ===
	refs := cfg.World.WorldRefs()
	store := world.NewStore(cfg.World.Range, cfg.World.Seed, refs...)
	loop := tick.NewLoop(cfg.Server.TickRateHz)

	host, err := ws.NewHost(loop, store, ws.Options{
		DefaultWorld:      refs[0],
		CompressThreshold: cfg.Server.CompressThreshold,
		Metrics:           ws.NewMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("create ws host: %w", err)
	}

	defaultOverlay, _ := cfg.Overlay.DefaultOverlayBlockID()
	manager := session.NewManager(host, loop, store.Range(), session.Options{
		DefaultOverlay:   defaultOverlay,
		MaxPreviewVolume: cfg.Overlay.MaxPreviewVolume,
		Worlds:           refs,
		Metrics:          overlay.NewMetrics(reg),
	})
	manager.SetPublisher(publisher)
	host.SetManager(manager)

	// === HTTP ===
	mux := http.NewServeMux()
	mux.Handle("/ws", host.Handler())
	wsServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.GetWSPort()), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()), Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{wsServer, metricsServer} {
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	logging.Info("Хост наложений запущен: ws %s/ws, метрики %s/metrics, %d Гц, миры %v",
		wsServer.Addr, metricsServer.Addr, loop.RateHz(), cfg.World.Worlds)

	// Цикл останавливается явно через Stop, после закрытия сессий
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(context.Background()) }()
	loopRunning := true

	select {
	case <-ctx.Done():
		logging.Info("Получен сигнал завершения")
	case err = <-errCh:
		logging.Error("Ошибка HTTP сервера: %v", err)
	case err = <-loopDone:
		loopRunning = false
		logging.Error("Цикл тиков остановлен: %v", err)
	}

	// === Остановка ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	_ = wsServer.Shutdown(shutdownCtx)
	host.Close()

	// Закрываем сессии в горутине тиков, пока цикл ещё работает
	if loopRunning {
		closed := make(chan struct{})
		if postErr := loop.Post(shutdownCtx, func() {
			manager.CloseAll()
			close(closed)
		}); postErr == nil {
			select {
			case <-closed:
			case <-shutdownCtx.Done():
			}
		}
		loop.Stop()
		<-loopDone
	}

	_ = metricsServer.Shutdown(shutdownCtx)
	logging.Info("Хост наложений остановлен")
	return err
}

// newEventBus создаёт JetStream-шину, если задан URL, иначе in-memory.
func newEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("connect eventbus: %w", err)
	}
	logging.Info("Шина событий: JetStream %s, стрим %s", cfg.URL, cfg.Stream)
	return bus, nil
}
