package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/capture"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/framebus"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

// flags holds command-line values; only those actually given override the
// config file
type flags struct {
	configPath    string
	source        string
	device        int
	width         int
	height        int
	compression   string
	lz4           bool
	jpeg          bool
	fps           int
	creditTimeout time.Duration
	metricsAddr   string
	logLevel      string
	logColor      bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*flags, map[string]bool, error) {
	f := &flags{}

	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.source, "source", config.SourceCamera, "Frame source (camera, pattern)")
	fs.IntVar(&f.device, "d", -1, "Video input index")
	fs.IntVar(&f.device, "device", -1, "Video input index")
	fs.IntVar(&f.width, "x", 0, "Horizontal resolution")
	fs.IntVar(&f.width, "xres", 0, "Horizontal resolution")
	fs.IntVar(&f.height, "y", 0, "Vertical resolution")
	fs.IntVar(&f.height, "yres", 0, "Vertical resolution")
	fs.StringVar(&f.compression, "compression", "lz4", "Frame compression (none, lz4, jpeg)")
	fs.BoolVar(&f.lz4, "l", false, "Same as -compression lz4")
	fs.BoolVar(&f.lz4, "lz4", false, "Same as -compression lz4")
	fs.BoolVar(&f.jpeg, "j", false, "Same as -compression jpeg")
	fs.BoolVar(&f.jpeg, "jpeg", false, "Same as -compression jpeg")
	fs.IntVar(&f.fps, "fps", 30, "Pattern source frame rate")
	fs.DurationVar(&f.creditTimeout, "credit-timeout", framebus.DefaultCreditTimeout, "How long a frame waits for a reader")
	fs.StringVar(&f.metricsAddr, "metrics", "", "HTTP address for /metrics, /status and /health (empty disables)")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error, silent)")
	fs.BoolVar(&f.logColor, "log-color", true, "Enable colored log output")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// buildConfig layers explicitly given flags over the file (or defaults)
func buildConfig(f *flags, set map[string]bool) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.LoadFile(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if set["source"] {
		cfg.Source = f.source
	}
	if set["d"] || set["device"] {
		cfg.Device = f.device
	}
	if set["x"] || set["xres"] {
		cfg.Bus.Width = f.width
	}
	if set["y"] || set["yres"] {
		cfg.Bus.Height = f.height
	}
	compression, err := compressionFlag(f, set)
	if err != nil {
		return nil, err
	}
	if compression != nil {
		cfg.Bus.Compression = *compression
	}
	if set["fps"] {
		cfg.FPS = f.fps
	}
	if set["credit-timeout"] {
		cfg.Bus.CreditTimeout = f.creditTimeout
	}
	if set["metrics"] {
		cfg.MetricsAddr = f.metricsAddr
	}
	if set["log-level"] {
		cfg.LogLevel = f.logLevel
	}
	if set["log-color"] {
		cfg.LogColor = f.logColor
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// compressionFlag resolves -compression and its -l/-j aliases. It returns
// nil when none of them was given.
func compressionFlag(f *flags, set map[string]bool) (*types.Compression, error) {
	var modes []types.Compression
	if set["compression"] {
		c, err := types.ParseCompression(f.compression)
		if err != nil {
			return nil, err
		}
		modes = append(modes, c)
	}
	if f.lz4 {
		modes = append(modes, types.CompressionLZ4)
	}
	if f.jpeg {
		modes = append(modes, types.CompressionJPEG)
	}

	if len(modes) == 0 {
		return nil, nil
	}
	for _, c := range modes[1:] {
		if c != modes[0] {
			return nil, fmt.Errorf("conflicting compression flags: %v and %v", modes[0], c)
		}
	}
	return &modes[0], nil
}

func openSource(cfg *config.Config) (capture.Source, error) {
	if cfg.Source == config.SourcePattern {
		return capture.NewPattern(cfg.Bus.Width, cfg.Bus.Height, cfg.FPS), nil
	}

	inputs := capture.VideoInputs()
	for i, in := range inputs {
		logger.Info("Main", "Video input %d: %s", i, in.Label)
	}
	return capture.OpenCamera(cfg.Device, cfg.Bus.Width, cfg.Bus.Height)
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	f, set, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(1)
	}

	cfg, err := buildConfig(f, set)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		fs.Usage()
		os.Exit(1)
	}

	// Initialize logger
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, cfg.LogColor)

	logger.Info("Main", "Frame grabber starting...")
	logger.Info("Main", "  Source: %s (device %d)", cfg.Source, cfg.Device)
	logger.Info("Main", "  Resolution: %dx%d", cfg.Bus.Width, cfg.Bus.Height)
	logger.Info("Main", "  Compression: %s", cfg.Bus.Compression)
	logger.Info("Main", "  Shared memory: %s", cfg.Bus.RegionName)

	src, err := openSource(cfg)
	if err != nil {
		log.Fatalf("Failed to open frame source: %v", err)
	}

	bus := framebus.New(cfg.Bus, src, metrics.New())
	if err := bus.Open(); err != nil {
		src.Close()
		log.Fatalf("Failed to open frame bus: %v", err)
	}

	var httpServer *http.Server
	if cfg.MetricsAddr != "" {
		httpServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: newStatusHandler(bus, cfg.Bus, cfg.Source).routes(),
		}
		go func() {
			logger.Info("Main", "Starting HTTP server on %s", cfg.MetricsAddr)
			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("Main", "HTTP server error: %v", err)
			}
		}()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info("Main", "Received %v, shutting down...", sig)
	bus.Close()
	for bus.IsRunning() {
		time.Sleep(time.Second)
	}

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("Main", "HTTP shutdown: %v", err)
		}
	}

	st := bus.Stats()
	logger.Info("Main", "Grabber stopped (published=%d dropped=%d)", st.Published, st.Dropped)
}
