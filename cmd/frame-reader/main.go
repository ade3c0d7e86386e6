// Command frame-reader attaches to a running grabber and reports what it
// receives. -delay slows it down to show frames being dropped.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/reader"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

func main() {
	opts := reader.Options{
		Names:       reader.DefaultNames(),
		Format:      types.FormatBGR24,
		OpenRetries: 30,
	}

	var compression string
	var delay time.Duration
	var logLevel string
	var logColor bool

	flag.StringVar(&opts.Names.Region, "shm", opts.Names.Region, "Shared memory name")
	flag.StringVar(&opts.Names.Publish, "publish-sem", opts.Names.Publish, "Publish credit semaphore name")
	flag.StringVar(&opts.Names.Ready, "ready-sem", opts.Names.Ready, "Ready signal semaphore name")
	flag.StringVar(&compression, "compression", "lz4", "Compression the grabber uses (none, lz4, jpeg)")
	flag.DurationVar(&delay, "delay", 0, "Sleep between reads")
	flag.IntVar(&opts.OpenRetries, "retries", opts.OpenRetries, "Seconds to wait for the grabber to appear")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logColor)

	if opts.Compression, err = types.ParseCompression(compression); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := reader.Open(ctx, opts)
	if err != nil {
		log.Fatalf("Failed to attach: %v", err)
	}
	defer r.Close()

	run(ctx, r, delay)
}

func run(ctx context.Context, r *reader.Reader, delay time.Duration) {
	var frames, bytes int
	window := time.Now()

	for ctx.Err() == nil {
		frame, slot, err := r.Next(ctx, time.Second)
		switch {
		case errors.Is(err, reader.ErrNoFrame):
			logger.Debug("Reader", "No frame within 1s")
			continue
		case ctx.Err() != nil:
			return
		case err != nil:
			logger.Warn("Reader", "Read error (slot %d): %v", slot, err)
			continue
		}

		frames++
		bytes += len(frame.Data)
		logger.Debug("Reader", "Frame %d from slot %d, %dx%d, %d bytes",
			frame.Seq, slot, frame.Width, frame.Height, len(frame.Data))

		if elapsed := time.Since(window); elapsed >= time.Second {
			logger.Info("Reader", "%.1f fps, %.1f MB/s",
				float64(frames)/elapsed.Seconds(), float64(bytes)/elapsed.Seconds()/1e6)
			frames, bytes = 0, 0
			window = time.Now()
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}
