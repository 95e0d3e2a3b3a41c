package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vigilohq/agent/internal/alert"
	"github.com/vigilohq/agent/internal/checkup"
	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/internal/events"
	"github.com/vigilohq/agent/internal/gate"
	"github.com/vigilohq/agent/internal/health"
	"github.com/vigilohq/agent/internal/logging"
	"github.com/vigilohq/agent/internal/metrics"
	"github.com/vigilohq/agent/internal/monitor"
	"github.com/vigilohq/agent/internal/probe"
	"github.com/vigilohq/agent/internal/report"
	"github.com/vigilohq/agent/internal/state"
	"github.com/vigilohq/agent/internal/window"
	"github.com/vigilohq/agent/pkg/types"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, os.Args[2:])
	case "checkup":
		err = checkup.Run(ctx, os.Args[2:], checkup.Dependencies{})
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: agent <command> [flags]

commands:
  run       start the monitoring daemon
  checkup   run every configured probe once and print a summary
  help      show this message`)
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", config.PathFromEnv(), "Path to agent configuration file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	provider, err := config.NewProvider(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := provider.Get()

	if cfg.Agent.StateDir == "" {
		return fmt.Errorf("agent state_dir must be configured")
	}
	if err := os.MkdirAll(cfg.Agent.StateDir, 0o700); err != nil {
		return fmt.Errorf("ensure state dir: %w", err)
	}

	logger := logging.New()
	logger.Printf("agent starting (server=%s, state_dir=%s)", cfg.Agent.ServerName, cfg.Agent.StateDir)

	metricsStore := metrics.NewStore()
	healthChecker := health.NewChecker()
	store := state.NewStore(cfg.Agent.StateDir)

	var sinks alert.Multi
	if cfg.Mail != nil {
		sinks = append(sinks, alert.NewSMTPSink(*cfg.Mail))
	}
	if cfg.Webhook != nil {
		wh, err := alert.NewWebhookSink(alert.WebhookConfig{
			URL:     cfg.Webhook.URL,
			Timeout: config.Seconds(cfg.Webhook.TimeoutSeconds, 0),
		}, alert.WebhookDependencies{})
		if err != nil {
			return fmt.Errorf("init webhook sink: %w", err)
		}
		sinks = append(sinks, wh)
	}
	if len(sinks) == 0 {
		logger.Printf("no alert sinks configured; transitions will only be logged")
	}

	dispatcherOpts := []alert.DispatcherOption{
		alert.WithLogger(logger),
		alert.WithMetrics(metricsStore),
	}
	if cfg.Alerts.MaxAttempts > 0 {
		dispatcherOpts = append(dispatcherOpts, alert.WithMaxAttempts(cfg.Alerts.MaxAttempts))
	}
	if cfg.Alerts.BackoffSeconds > 0 {
		dispatcherOpts = append(dispatcherOpts, alert.WithBackoff(config.Seconds(cfg.Alerts.BackoffSeconds, 0)))
	}
	if cfg.Alerts.RatePerMinute > 0 {
		dispatcherOpts = append(dispatcherOpts, alert.WithRateLimit(cfg.Alerts.RatePerMinute))
	}
	dispatcher := alert.NewDispatcher(sinks, dispatcherOpts...)

	recorder := events.NewMulti(events.LogRecorder{Logger: logger})

	var trafficGate gate.Gate = gate.Always{}
	if cfg.TrafficGate != nil {
		dbGate, err := gate.NewDBActivity(ctx, *cfg.TrafficGate, logger)
		if err != nil {
			return fmt.Errorf("init traffic gate: %w", err)
		}
		defer dbGate.Close()
		trafficGate = dbGate
	}

	runners := buildRunners(provider, cfg, store, dispatcher, trafficGate, runnerDeps{
		logger:   logger,
		metrics:  metricsStore,
		health:   healthChecker,
		recorder: recorder,
	})
	if len(runners) == 0 {
		return fmt.Errorf("no monitor sections configured")
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grp, groupCtx := errgroup.WithContext(runCtx)

	for _, r := range runners {
		r := r
		grp.Go(func() error {
			if err := r.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if cfg.Agent.MetricsAddr != "" {
		grp.Go(func() error {
			return serveObservability(groupCtx, cfg.Agent.MetricsAddr, metricsStore, healthChecker, logger)
		})
	}

	return grp.Wait()
}

type runnerDeps struct {
	logger   *log.Logger
	metrics  *metrics.Store
	health   *health.Checker
	recorder events.Recorder
}

func buildRunners(provider *config.Provider, cfg config.Config, store *state.Store, dispatcher *alert.Dispatcher, trafficGate gate.Gate, deps runnerDeps) []*monitor.Runner {
	server := cfg.Agent.ServerName
	common := func(extra ...monitor.RunnerOption) []monitor.RunnerOption {
		opts := []monitor.RunnerOption{
			monitor.WithLogger(deps.logger),
			monitor.WithMetrics(deps.metrics),
			monitor.WithHealth(deps.health),
			monitor.WithRecorder(deps.recorder),
			monitor.WithGate(trafficGate),
		}
		return append(opts, extra...)
	}

	var runners []*monitor.Runner
	add := func(name string, interval time.Duration, spec func() (monitor.Spec, error), p monitor.EntityProbe, extra ...monitor.RunnerOption) {
		deps.health.Register(name, interval)
		runners = append(runners, monitor.NewRunner(name, server, spec, p, store, dispatcher, common(extra...)...))
	}

	if cfg.CPU != nil {
		add("cpu", config.Seconds(cfg.CPU.IntervalSeconds, time.Second), func() (monitor.Spec, error) {
			c := provider.Get().CPU
			if c == nil {
				return monitor.Spec{}, fmt.Errorf("cpu_monitor section missing")
			}
			return monitor.Spec{
				Interval:        config.Seconds(c.IntervalSeconds, time.Second),
				DefaultCooldown: time.Duration(c.CooldownSeconds) * time.Second,
			}, nil
		}, probe.NewCPU(provider))
	}

	if cfg.Storage != nil {
		add("storage", config.Seconds(cfg.Storage.IntervalSeconds, time.Minute), func() (monitor.Spec, error) {
			c := provider.Get().Storage
			if c == nil {
				return monitor.Spec{}, fmt.Errorf("storage_monitor section missing")
			}
			cooldowns := make(map[string]time.Duration, len(c.Directories))
			for mount, params := range c.Directories {
				cooldowns[mount] = time.Duration(params.CooldownSeconds) * time.Second
			}
			return monitor.Spec{
				Interval:  config.Seconds(c.IntervalSeconds, time.Minute),
				Cooldowns: cooldowns,
			}, nil
		}, probe.NewStorage(provider, deps.logger))
	}

	if cfg.Services != nil {
		add("services", config.Seconds(cfg.Services.IntervalSeconds, 30*time.Second), func() (monitor.Spec, error) {
			c := provider.Get().Services
			if c == nil {
				return monitor.Spec{}, fmt.Errorf("service_monitor section missing")
			}
			cooldowns := make(map[string]time.Duration, len(c.Services))
			for _, svc := range c.Services {
				cooldowns[svc.Name] = time.Duration(svc.CooldownSeconds) * time.Second
			}
			return monitor.Spec{
				Interval:  config.Seconds(c.IntervalSeconds, 30*time.Second),
				Cooldowns: cooldowns,
			}, nil
		}, probe.NewServices(provider))
	}

	if cfg.Processes != nil {
		add("processes", config.Seconds(cfg.Processes.IntervalSeconds, 30*time.Second), func() (monitor.Spec, error) {
			c := provider.Get().Processes
			if c == nil {
				return monitor.Spec{}, fmt.Errorf("process_monitor section missing")
			}
			return monitor.Spec{
				Interval:        config.Seconds(c.IntervalSeconds, 30*time.Second),
				DefaultCooldown: time.Duration(c.CooldownSeconds) * time.Second,
			}, nil
		}, probe.NewProcesses(provider))
	}

	if cfg.Ping != nil {
		add("ping", config.Seconds(cfg.Ping.IntervalSeconds, time.Minute), func() (monitor.Spec, error) {
			c := provider.Get().Ping
			if c == nil {
				return monitor.Spec{}, fmt.Errorf("ping_check section missing")
			}
			return monitor.Spec{
				Interval:        config.Seconds(c.IntervalSeconds, time.Minute),
				DefaultCooldown: time.Duration(c.CooldownSeconds) * time.Second,
			}, nil
		}, probe.NewPing(provider))
	}

	if cfg.Uptime != nil {
		add("uptime", config.Seconds(cfg.Uptime.IntervalSeconds, time.Minute), func() (monitor.Spec, error) {
			c := provider.Get().Uptime
			if c == nil {
				return monitor.Spec{}, fmt.Errorf("uptime_check section missing")
			}
			return monitor.Spec{
				Interval:        config.Seconds(c.IntervalSeconds, time.Minute),
				DefaultCooldown: time.Duration(c.CooldownSeconds) * time.Second,
			}, nil
		}, probe.NewUptime(provider))
	}

	if cfg.CDR != nil {
		add("cdr", config.Seconds(cfg.CDR.IntervalSeconds, 5*time.Minute), func() (monitor.Spec, error) {
			c := provider.Get().CDR
			if c == nil {
				return monitor.Spec{}, fmt.Errorf("cdr_monitor section missing")
			}
			return monitor.Spec{
				Interval:        config.Seconds(c.IntervalSeconds, 5*time.Minute),
				DefaultCooldown: time.Duration(c.CooldownSeconds) * time.Second,
				Gated:           c.Gated,
			}, nil
		}, probe.NewFileGrowth(provider))
	}

	if cfg.Trace != nil {
		add("trace", config.Seconds(cfg.Trace.IntervalSeconds, 5*time.Minute), func() (monitor.Spec, error) {
			c := provider.Get().Trace
			if c == nil {
				return monitor.Spec{}, fmt.Errorf("trace_monitor section missing")
			}
			return monitor.Spec{
				Interval:        config.Seconds(c.IntervalSeconds, 5*time.Minute),
				DefaultCooldown: time.Duration(c.CooldownSeconds) * time.Second,
				Gated:           c.Gated,
			}, nil
		}, probe.NewTraceFreshness(provider))
	}

	if cfg.LogErrors != nil {
		add("logerrors", config.Seconds(cfg.LogErrors.IntervalSeconds, time.Minute), func() (monitor.Spec, error) {
			c := provider.Get().LogErrors
			if c == nil {
				return monitor.Spec{}, fmt.Errorf("log_monitor section missing")
			}
			return monitor.Spec{
				Interval:        config.Seconds(c.IntervalSeconds, time.Minute),
				DefaultCooldown: time.Duration(c.CooldownSeconds) * time.Second,
			}, nil
		}, probe.NewLogErrors(provider, deps.logger, deps.metrics))
	}

	if cfg.Rate != nil {
		rateComposer := func(kind types.AlertKind, server, entity string, res monitor.Result, now time.Time) (string, string) {
			subject := report.Subject(kind, "rate", server, entity)
			body := report.Table(kind, server, res.Detail, []report.Row{{
				Label:    entity,
				Previous: res.Previous,
				Current:  res.Current,
			}}, now)
			return subject, body
		}
		add("rate", config.Seconds(cfg.Rate.IntervalSeconds, time.Minute), func() (monitor.Spec, error) {
			c := provider.Get().Rate
			if c == nil {
				return monitor.Spec{}, fmt.Errorf("rate_monitor section missing")
			}
			cooldowns := make(map[string]time.Duration, len(c.Patterns))
			for _, pat := range c.Patterns {
				cooldowns[pat.Label] = time.Duration(pat.CooldownSeconds) * time.Second
			}
			return monitor.Spec{
				Interval:  config.Seconds(c.IntervalSeconds, time.Minute),
				Cooldowns: cooldowns,
				Gated:     c.Gated,
			}, nil
		}, probe.NewRate(provider, window.New(), deps.logger), monitor.WithComposer(rateComposer))
	}

	return runners
}

func serveObservability(ctx context.Context, addr string, store *metrics.Store, checker *health.Checker, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", store.Handler())
	mux.Handle("/readyz", checker.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("observability server failed: %v", err)
			return err
		}
		return nil
	}
}
