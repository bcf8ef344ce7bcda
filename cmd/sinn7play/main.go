// Command sinn7play plays audio files on a Sinn7 Status 24|96.
//
// Usage:
//
//	sinn7play [flags] file...
//
// Without a device, -hal loopback plays into an emulated device; -dump
// writes the bulk stream it receives to a file.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/sinn7/chip"
	"github.com/ardnew/sinn7/decode"
	"github.com/ardnew/sinn7/hal"
	"github.com/ardnew/sinn7/hal/loopback"
	"github.com/ardnew/sinn7/hal/usb"
	"github.com/ardnew/sinn7/pkg"
	"github.com/ardnew/sinn7/pkg/config"
	"github.com/ardnew/sinn7/pkg/metrics"
	"github.com/ardnew/sinn7/pkg/prof"
	"github.com/ardnew/sinn7/player"
)

// Component identifier for sinn7play logging.
const componentPlay pkg.Component = "sinn7play"

var (
	configPath  = flag.String("config", "", "Path to YAML configuration")
	verbose     = flag.Bool("v", false, "Enable verbose logging")
	jsonOut     = flag.Bool("json", false, "Output logs as JSON")
	halName     = flag.String("hal", "", "Device backend: loopback or usb (overrides config)")
	dumpPath    = flag.String("dump", "", "Write the loopback bulk stream to `file`")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on `addr` (overrides config)")
	realtime    = flag.Bool("realtime", false, "Pace the loopback device at the sample rate")

	cpuProfile   = flag.String("cpuprofile", "", "Write a CPU profile to `file` (profile builds)")
	memProfile   = flag.String("memprofile", "", "Write a heap profile to `file` on exit (profile builds)")
	mutexProfile = flag.String("mutexprofile", "", "Write a mutex contention profile to `file` (profile builds)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	session, err := prof.Start(prof.Options{CPU: *cpuProfile, Heap: *memProfile, Mutex: *mutexProfile})
	if err != nil {
		pkg.LogError(componentPlay, "profiling unavailable", "error", err)
		os.Exit(2)
	}

	err = run(flag.Args())
	if perr := session.Stop(); perr != nil {
		pkg.LogError(componentPlay, "writing profiles", "error", perr)
	}
	if err != nil {
		pkg.LogError(componentPlay, "playback failed", "error", err)
		os.Exit(1)
	}
}

func run(files []string) error {
	cfg, _, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg)
	setupLogging(&cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	dev, closeDump, err := openDevice(&cfg)
	if err != nil {
		return err
	}
	defer closeDump()
	defer dev.Close()

	sc := cfg.StreamConfig()
	sc.Metrics = metrics.New(reg)

	c, err := chip.Probe(ctx, dev, chip.NewRegistry(cfg.Cards), sc)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	defer c.Disconnect()
	pkg.LogInfo(componentPlay, "card ready", "card", c.Card, "name", c.LongName)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return playAll(gctx, c, cfg.PlayerConfig(), files)
	})
	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Listen, reg)
		})
	}
	return g.Wait()
}

func applyFlags(cfg *config.Config) {
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *jsonOut {
		cfg.Log.Format = "json"
	}
	if *halName != "" {
		cfg.Device.HAL = *halName
	}
	if *metricsAddr != "" {
		cfg.Metrics.Listen = *metricsAddr
	}
	if *realtime {
		cfg.Device.Realtime = true
	}
}

func setupLogging(cfg *config.Config) {
	pkg.SetLogLevel(cfg.LogLevel())
	if cfg.LogFormat() == pkg.LogFormatJSON {
		pkg.SetLogger(pkg.NewJSONLogger(os.Stderr, &slog.HandlerOptions{
			Level: pkg.GetLogLevel(),
		}))
	}
}

// openDevice opens the configured backend. The returned func closes the
// dump file, if any.
func openDevice(cfg *config.Config) (hal.DeviceHAL, func(), error) {
	noop := func() {}

	switch cfg.Device.HAL {
	case config.HALUSB:
		dev, err := usb.Open(usb.Options{
			VendorID:  cfg.Device.VendorID,
			ProductID: cfg.Device.ProductID,
			Endpoint:  cfg.Device.Endpoint,
		})
		return dev, noop, err

	case config.HALLoopback:
		opts := loopback.Options{Realtime: cfg.Device.Realtime}
		closeDump := noop
		if *dumpPath != "" {
			f, err := os.Create(*dumpPath)
			if err != nil {
				return nil, noop, fmt.Errorf("create dump: %w", err)
			}
			opts.Wire = f
			closeDump = func() { f.Close() }
		}
		return loopback.New(opts), closeDump, nil

	default:
		return nil, noop, fmt.Errorf("%w: hal %q", pkg.ErrInvalidParameter, cfg.Device.HAL)
	}
}

func playAll(ctx context.Context, c *chip.Chip, pcfg player.Config, files []string) error {
	p := player.New(c.PCM(), pcfg)

	for _, path := range files {
		if c.Gone() {
			return fmt.Errorf("%s: %w", c.Card, pkg.ErrDeviceGone)
		}

		src, err := decode.Open(path)
		if err != nil {
			pkg.LogError(componentPlay, "skipping file", "path", path, "error", err)
			continue
		}

		pkg.LogInfo(componentPlay, "playing", "name", src.Name, "codec", src.Info.Codec)
		st, err := p.Play(ctx, src)
		src.Close()

		switch {
		case errors.Is(err, context.Canceled):
			pkg.LogInfo(componentPlay, "interrupted", "name", src.Name, "played", st.Duration)
			return nil
		case err != nil:
			return fmt.Errorf("%s: %w", path, err)
		}
		pkg.LogInfo(componentPlay, "done", "name", src.Name,
			"duration", st.Duration, "underruns", st.Underruns)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	pkg.LogInfo(componentPlay, "serving metrics", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
