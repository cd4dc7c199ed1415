package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conveyortwin/conveyortwin/internal/analytics"
	"github.com/conveyortwin/conveyortwin/internal/api"
	"github.com/conveyortwin/conveyortwin/internal/archive"
	"github.com/conveyortwin/conveyortwin/internal/auth"
	"github.com/conveyortwin/conveyortwin/internal/cache"
	"github.com/conveyortwin/conveyortwin/internal/command"
	"github.com/conveyortwin/conveyortwin/internal/config"
	"github.com/conveyortwin/conveyortwin/internal/control"
	"github.com/conveyortwin/conveyortwin/internal/metrics"
	"github.com/conveyortwin/conveyortwin/internal/notify"
	"github.com/conveyortwin/conveyortwin/internal/persist"
	"github.com/conveyortwin/conveyortwin/internal/publisher"
	"github.com/conveyortwin/conveyortwin/internal/sensor"
	"github.com/conveyortwin/conveyortwin/internal/series"
	"github.com/conveyortwin/conveyortwin/internal/simulator"
	"github.com/conveyortwin/conveyortwin/internal/twin"
	"github.com/conveyortwin/conveyortwin/internal/ws"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	issueRole := flag.String("issue-token", "", "print a signed API token for this role (operator|viewer) and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of a token printed by -issue-token")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	if *issueRole != "" {
		tok, err := auth.New(cfg.HTTP.Auth).IssueToken("conveyortwin-cli", *issueRole, *tokenTTL)
		if err != nil {
			slog.Error("failed to issue token", "err", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	slog.Info("conveyortwin starting", "config", *configPath)
	slog.Info("config loaded",
		"source", cfg.Source.Kind,
		"cycle_interval", cfg.Conveyor.CycleInterval,
		"http_port", cfg.HTTP.Port,
		"auth_mode", cfg.HTTP.Auth.Mode,
		"bus", cfg.Bus.Enabled(),
		"storage", cfg.Storage.Enabled(),
		"influx", cfg.Influx.Enabled(),
		"cache", cfg.Cache.Enabled(),
		"archive", cfg.Archive.Enabled(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *configPath); err != nil {
		slog.Error("conveyortwin stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("conveyortwin shut down")
}

func run(ctx context.Context, cfg *config.Config, configPath string) error {
	tw, err := twin.New(settingsFrom(cfg))
	if err != nil {
		return err
	}

	src, err := sensor.New(cfg.Source)
	if err != nil {
		return err
	}

	store := series.New(cfg.Series.Retention, cfg.Series.Capacity)
	engine := analytics.New(tw, store)
	m := metrics.New()
	notifier := notify.New(cfg.Alerts)
	defer notifier.Wait()

	var (
		pub      *publisher.Publisher
		sqlSink  *persist.SQLSink
		influx   *persist.InfluxSink
		vc       *cache.ViewCache
		archiver *archive.Archiver
		readings []control.ReadingSink
	)

	if cfg.Bus.Enabled() {
		pub = publisher.New(cfg.Bus)
	}

	if cfg.Storage.Enabled() {
		sqlSink, err = persist.Open(cfg.Storage.Driver, cfg.Storage.DSN())
		if err != nil {
			return err
		}
		defer sqlSink.Close() //nolint:errcheck
		mctx, mcancel := context.WithTimeout(ctx, shutdownTimeout)
		err = sqlSink.Migrate(mctx)
		mcancel()
		if err != nil {
			return err
		}
		readings = append(readings, sqlSink)
	}

	if cfg.Influx.Enabled() {
		influx = persist.NewInfluxSink(cfg.Influx)
		defer influx.Close()
		readings = append(readings, influx)
	}

	if cfg.Cache.Enabled() {
		vc = cache.New(cfg.Cache)
		defer vc.Close() //nolint:errcheck
		pctx, pcancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := vc.Ping(pctx); err != nil {
			slog.Warn("redis unreachable, view cache writes will fail until it recovers", "err", err)
		}
		pcancel()
	}

	if cfg.Archive.Enabled() {
		archiver, err = archive.New(cfg.Archive, engine)
		if err != nil {
			return err
		}
	}

	hub := ws.New(tw, cfg.HTTP.BroadcastInterval)

	sim := simulator.New(tw, simulator.Options{
		HistorySize:         cfg.Simulation.HistorySize,
		MaintenanceBaseCost: cfg.Simulation.MaintenanceBaseCost,
		OnResult: func(res types.SimulationResult) {
			m.SimulationDone(res)
			hub.Broadcast(ws.EventSimulation, res)
			if pub != nil {
				pub.PublishSimulation(res)
			}
			if sqlSink != nil {
				sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer scancel()
				if err := sqlSink.SaveSimulation(sctx, res); err != nil {
					slog.Warn("failed to save simulation", "id", res.ID, "err", err)
				}
			}
		},
	})

	loopOpts := control.Options{
		Source:    src,
		Twin:      tw,
		Series:    store,
		Analytics: engine,
		Metrics:   m,
		Notifier:  notifier,
		Readings:  readings,
	}
	if pub != nil {
		loopOpts.Publisher = pub
	}
	if sqlSink != nil {
		loopOpts.Alerts = sqlSink
	}
	if vc != nil {
		loopOpts.Cache = vc
	}
	loop, err := control.New(loopOpts, cfg.Conveyor.CycleInterval)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Twin:      tw,
		Analytics: engine,
		Simulator: sim,
		Notifier:  notifier,
	}
	if sqlSink != nil {
		deps.Readings = sqlSink
	}

	authn := auth.New(cfg.HTTP.Auth, "/api/v1/health", "/metrics")
	mux := http.NewServeMux()
	mux.Handle("/api/", authn.Wrap(api.New(deps)))
	mux.Handle("/ws/stream", authn.Wrap(hub))
	mux.Handle("/metrics", m.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if o, ok := src.(*sensor.OPCUA); ok {
		g.Go(func() error { return o.Run(gctx) })
	}
	g.Go(func() error {
		loop.Run(gctx)
		return nil
	})
	g.Go(func() error {
		store.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if pub != nil {
		g.Go(func() error {
			pub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			if err := command.Run(gctx, cfg.Bus, command.NewHandler(tw)); err != nil {
				slog.Error("command listener stopped", "err", err)
			}
			return nil
		})
	}
	if archiver != nil {
		g.Go(func() error {
			archiver.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		if err := config.Watch(gctx, configPath, func(updated *config.Config) {
			if err := tw.Reconfigure(settingsFrom(updated)); err != nil {
				slog.Warn("config reload rejected", "err", err)
			}
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", cfg.HTTP.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		return httpSrv.Shutdown(sctx)
	})

	return g.Wait()
}

// settingsFrom maps the config tree onto twin limits.
func settingsFrom(cfg *config.Config) twin.Settings {
	maxSpeed, interval := cfg.Conveyor.Limits()
	return twin.Settings{
		Thresholds:          cfg.Thresholds,
		MaxSpeed:            maxSpeed,
		MaintenanceInterval: interval,
	}
}
