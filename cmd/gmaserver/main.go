// Command gmaserver runs the real-time market-data compute server: feed
// ingestion, the market dispatcher, the order-book manager, and the
// client-facing request/response socket protocol. Grounded on the
// teacher's cmd/feedsim/main.go wiring shape (config → engine/session →
// signal-driven graceful shutdown), rebuilt around this server's
// dispatcher/obmanager/treebuilder/session stack and the shutdown
// coordinator (spec.md §4.O) in place of a single deferred cancel().
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ndrandal/gma-go/internal/api"
	"github.com/ndrandal/gma-go/internal/atomics"
	"github.com/ndrandal/gma-go/internal/config"
	"github.com/ndrandal/gma-go/internal/dispatcher"
	"github.com/ndrandal/gma-go/internal/feed"
	"github.com/ndrandal/gma-go/internal/logging"
	"github.com/ndrandal/gma-go/internal/metrics"
	"github.com/ndrandal/gma-go/internal/nsprovider"
	"github.com/ndrandal/gma-go/internal/obmanager"
	"github.com/ndrandal/gma-go/internal/pool"
	"github.com/ndrandal/gma-go/internal/session"
	"github.com/ndrandal/gma-go/internal/shutdown"
	"github.com/ndrandal/gma-go/internal/store"
	"github.com/ndrandal/gma-go/internal/taregistry"
	"github.com/ndrandal/gma-go/internal/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "gmaserver: config error:", err)
		os.Exit(1)
	}

	log, logCloser := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	log.Info("gmaserver starting", "wsPort", cfg.WSPort, "threadPoolSize", cfg.ThreadPoolSize)

	coord := shutdown.New(log)
	coord.Register("close log file", 90, func() error { return logCloser.Close() })

	workerPool := pool.New(cfg.ThreadPoolSize, func(recovered any) {
		log.Error("pool task panicked", "recovered", recovered)
	})
	coord.Register("drain pool", 70, func() error { workerPool.Drain(); return nil })
	coord.Register("destroy pool", 80, func() error { workerPool.Shutdown(); return nil })

	metricsReg := metrics.New()
	if cfg.MetricsEnabled {
		metricsReg.StartReporter(time.Duration(cfg.MetricsIntervalSec)*time.Second, func(metrics.Snapshot) {})
		coord.Register("stop metrics reporter", 60, func() error { metricsReg.StopReporter(); return nil })
	}

	dataStore := store.New()
	taReg := taregistry.New()
	providers := nsprovider.New()

	disp := dispatcher.New(dispatcher.Config{
		HistoryMax: cfg.TAHistoryMax,
		Pool:       workerPool,
		Store:      dataStore,
		TARegistry: taReg,
		Log:        log,
		Periods: atomics.Periods{
			SMA:    cfg.TASMA,
			EMA:    cfg.TAEMA,
			VWAP:   cfg.TAVWAP,
			Median: cfg.TAMED,
			Min:    cfg.TAMIN,
			Max:    cfg.TAMAX,
			Stddev: cfg.TASTD,
			RSI:    cfg.TARSI,
		},
	})

	obManager := obmanager.New(0)
	obmanager.RegisterObProvider(providers, obManager)

	malformedCounter := metricsReg.Counter("feed_malformed_frames_total")
	ingestor := feed.New(disp, obManager, log, malformedCounter.Inc)

	mux := http.NewServeMux()

	sessionDeps := session.Deps{Pool: workerPool, Dispatcher: disp, Store: dataStore, Providers: providers, Log: log}
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.Accept(w, r, cfg.ListenerQueueCap, log)
		if err != nil {
			log.Warn("client ws upgrade failed", "error", err)
			return
		}
		session.New(conn, sessionDeps, maxSubscriptionsPerSession)
	})
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.Accept(w, r, cfg.ListenerQueueCap, log)
		if err != nil {
			log.Warn("feed ws upgrade failed", "error", err)
			return
		}
		ingestor.Handle(conn)
	})

	diag := &api.Server{OBManager: obManager, Metrics: metricsReg}
	mux.Handle("/health", diag.Handler())
	mux.Handle("/api/", diag.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(metricsReg.Prometheus(), promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WSPort),
		Handler: mux,
	}
	coord.Register("stop accepting sessions", 10, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
		coord.StopAll()
		os.Exit(0)
	case err := <-serveErr:
		if err != nil {
			log.Error("listen failed", "error", err)
			coord.StopAll()
			os.Exit(1)
		}
	}
}

// maxSubscriptionsPerSession bounds live subscriptions per session
// (spec.md §4.N: "e.g. 1024").
const maxSubscriptionsPerSession = 1024
