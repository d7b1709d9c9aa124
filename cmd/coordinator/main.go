package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"

	"main/internal/failsafe"
	"main/internal/feed"
	"main/internal/heartbeat"
	"main/internal/journal"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/router"
	"main/internal/store"
	"main/internal/syncer"
)

const defaultMemoryLimit = 512 << 20

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address (overrides config)")
	profiling := flag.Bool("profiling", false, "Enable continuous profiling")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *metricsAddr != "" {
		loaded.MetricsAddr = *metricsAddr
	}
	if *profiling {
		loaded.Profiling.Enable = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, loaded); err != nil {
		log.Fatalf("coordinator: %v", err)
	}
}

func run(ctx context.Context, loaded ops.Loaded) error {
	if loaded.Profiling.Enable {
		addr := loaded.Profiling.ServerAddress
		if addr == "" {
			addr = "http://localhost:4040"
		}
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "coordinator",
			ServerAddress:   addr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	reg := prometheus.NewRegistry()
	prom := obs.NewProm(reg)
	if loaded.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: loaded.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logs.Errorf("metrics server, err: %+v", err)
			}
		}()
		defer srv.Close()
	}

	var audit *journal.Writer
	if loaded.JournalPath != "" {
		w, err := journal.NewWriter(journal.Config{Path: loaded.JournalPath})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		audit = w
		defer audit.Close()
	}

	var mirror *store.Store
	if loaded.StoreDSN != "" {
		s, err := store.Open(loaded.StoreDSN)
		if err != nil {
			return err
		}
		mirror = s
		defer mirror.Close()
	}

	var marketFeed *feed.Feed
	if loaded.Feed.URL != "" {
		marketFeed = feed.New(ctx, loaded.Feed)
		if err := marketFeed.Start(ctx); err != nil {
			return err
		}
		defer marketFeed.Close()
	}

	monitorOpts := []failsafe.Option{
		failsafe.WithProm(prom),
		failsafe.WithJournal(audit),
	}
	if marketFeed != nil {
		monitorOpts = append(monitorOpts, failsafe.WithReconnectSignal(marketFeed.ForceReconnect))
	}
	monitor := failsafe.NewMonitor(loaded.Failsafe, monitorOpts...)

	routerOpts := []router.Option{
		router.WithTelemetrySink(monitor),
		router.WithProm(prom),
		router.WithJournal(audit),
	}
	if mirror != nil {
		routerOpts = append(routerOpts, router.WithTerminalStore(mirror))
	}
	executor := router.NewHTTPExecutor(loaded.DispatchEndpoint, nil)
	commandRouter := router.New(loaded.Router, executor, monitor, routerOpts...)

	memoryLimit := loaded.MemoryLimit
	if memoryLimit <= 0 {
		memoryLimit = defaultMemoryLimit
	}
	aggregator := heartbeat.NewAggregator(loaded.Heartbeat, monitor,
		heartbeat.WithSelfCheck(heartbeat.NewSelfCheck(uint64(memoryLimit), time.Now)),
		heartbeat.WithProm(prom),
	)
	for _, sub := range loaded.Subsystems {
		aggregator.Register(sub.Name, heartbeat.NewHTTPChecker(sub.URL, nil))
	}
	if marketFeed != nil {
		aggregator.Register("feed", marketFeed)
	}

	refs := make([]syncer.Reference, 0, len(loaded.References))
	for _, r := range loaded.References {
		refs = append(refs, syncer.NewHTTPReference(r.Name, r.URL, nil))
	}
	clock := syncer.NewManager(loaded.Sync, monitor, refs, syncer.WithProm(prom))

	if marketFeed != nil {
		for _, symbol := range loaded.FeedSymbols {
			if err := marketFeed.SubscribeTicker(ctx, symbol); err != nil {
				logs.Warnf("subscribe %s, err: %+v", symbol, err)
			}
		}
		// Ticks are consumed for liveness; the feed heartbeat goes Degraded
		// when the stream falls silent.
		cancel := marketFeed.ObserveTicker(ctx, func(feed.Ticker) {})
		defer cancel()
	}

	var wg sync.WaitGroup
	runAll(ctx, &wg,
		monitor.Run,
		commandRouter.Run,
		aggregator.Run,
		clock.Run,
	)

	logs.Info("coordinator started")
	<-ctx.Done()
	logs.Info("coordinator shutting down")
	wg.Wait()
	return nil
}

func runAll(ctx context.Context, wg *sync.WaitGroup, fns ...func(context.Context)) {
	for _, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
}
