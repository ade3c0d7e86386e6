// Package framebus publishes captured frames to reader processes through a
// named shared memory region.
//
// The region holds a small header and two slots. A frame is encoded into the
// slot under the write cursor, then the bus waits a bounded time for the
// publish credit. Holding the credit, it stores the slot index in the header
// and posts the ready signal; readers wait on the ready signal, read the
// slot the header names, and give the credit back. When no credit arrives in
// time the frame is dropped and the same slot is rewritten with the next
// frame, so a slow reader loses frames instead of stalling the producer.
package framebus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/capture"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/codec"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/shm"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

var (
	ErrAlreadyOpen    = errors.New("framebus: already running")
	ErrSourceTooLarge = errors.New("framebus: source frames exceed slot capacity")
)

// missBackoff keeps a source that keeps returning nothing from spinning
const missBackoff = 10 * time.Millisecond

// Bus is the single producer of a shared memory frame region
type Bus struct {
	cfg     Config
	src     capture.Source
	metrics *metrics.Metrics

	mu      sync.Mutex // serializes Open and Close
	state   atomic.Int32
	runFlag atomic.Bool
	running atomic.Bool

	// Owned by the loop goroutine once Open succeeds
	region        *shm.Region
	publishCredit *shm.Semaphore
	readySignal   *shm.Semaphore
	layout        *shm.Layout
	codec         *codec.Codec
	cursor        int
}

// Stats is a point-in-time view of the bus
type Stats struct {
	State            State
	Running          bool
	Captured         uint64
	Published        uint64
	Dropped          uint64
	Misses           uint64
	Oversize         uint64
	Compressed       uint64
	Fallbacks        uint64
	CurrentSlot      int
	BytesRaw         uint64
	BytesStored      uint64
	CompressionRatio float64
}

// New creates a bus reading from src. m may be nil.
func New(cfg Config, src capture.Source, m *metrics.Metrics) *Bus {
	if m == nil {
		m = metrics.New()
	}
	return &Bus{cfg: cfg, src: src, metrics: m}
}

// Metrics returns the bus metrics
func (b *Bus) Metrics() *metrics.Metrics {
	return b.metrics
}

// Open creates the region and both semaphores and starts the publish loop.
// On any setup failure nothing is left behind and the bus does not run.
// Once the loop starts the bus owns src and closes it on stop.
func (b *Bus) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running.Load() {
		return ErrAlreadyOpen
	}
	if err := b.cfg.Validate(); err != nil {
		return err
	}

	g := b.cfg.Geometry()
	if capacity := g.SlotStride() - types.SlotHeaderSize; b.src.FrameSize() > capacity {
		return fmt.Errorf("%w: %d > %d bytes", ErrSourceTooLarge, b.src.FrameSize(), capacity)
	}

	c, err := codec.New(b.cfg.Compression, codec.Options{
		Width:       b.cfg.Width,
		Height:      b.cfg.Height,
		Format:      b.cfg.Format,
		JPEGQuality: b.cfg.JPEGQuality,
	})
	if err != nil {
		return err
	}

	if err := b.setup(g); err != nil {
		b.release()
		return err
	}

	b.codec = c
	b.cursor = 0
	b.state.Store(int32(Capturing))
	b.runFlag.Store(true)
	b.running.Store(true)
	b.metrics.Running.Store(1)

	logger.Info("Bus", "Publishing %dx%d frames on %s (%d bytes, %s compression)",
		b.cfg.Width, b.cfg.Height, b.cfg.RegionName, b.region.Size(), b.cfg.Compression)

	go b.run()
	return nil
}

func (b *Bus) setup(g types.Geometry) error {
	perm := os.FileMode(b.cfg.Permissions)
	var err error

	b.readySignal, err = shm.CreateSemaphore(b.cfg.ReadySemName, perm, types.ReadySignalInitial)
	if err != nil {
		return err
	}
	b.publishCredit, err = shm.CreateSemaphore(b.cfg.PublishSemName, perm, types.PublishCreditInitial)
	if err != nil {
		return err
	}
	b.region, err = shm.CreateRegion(b.cfg.RegionName, perm, g.RegionSize())
	if err != nil {
		return err
	}

	b.layout, err = shm.InitLayout(b.region.Bytes(), g)
	return err
}

// release destroys whatever setup created; every step runs
func (b *Bus) release() error {
	var result *multierror.Error

	if b.readySignal != nil {
		result = multierror.Append(result, b.readySignal.Destroy())
		b.readySignal = nil
	}
	if b.publishCredit != nil {
		result = multierror.Append(result, b.publishCredit.Destroy())
		b.publishCredit = nil
	}
	if b.region != nil {
		result = multierror.Append(result, b.region.Destroy())
		b.region = nil
	}
	b.layout = nil

	return result.ErrorOrNil()
}

// IsRunning reports whether the loop is running or still tearing down
func (b *Bus) IsRunning() bool {
	return b.running.Load()
}

// Close asks the loop to stop. It waits only for an Open in progress, never
// for teardown; poll IsRunning (or use WaitStopped) to know when teardown is
// complete. Safe to call repeatedly and before Open.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.runFlag.Swap(false) {
		logger.Info("Bus", "Stop requested")
	}
}

// WaitStopped polls IsRunning every interval until the bus has stopped
func (b *Bus) WaitStopped(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for b.IsRunning() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// State returns the current loop state
func (b *Bus) State() State {
	return State(b.state.Load())
}

// Stats returns a snapshot of the bus counters
func (b *Bus) Stats() Stats {
	m := b.metrics
	return Stats{
		State:            b.State(),
		Running:          b.IsRunning(),
		Captured:         m.FramesCaptured.Load(),
		Published:        m.FramesPublished.Load(),
		Dropped:          m.FramesDropped.Load(),
		Misses:           m.CaptureMisses.Load(),
		Oversize:         m.OversizeFrames.Load(),
		Compressed:       m.FramesCompressed.Load(),
		Fallbacks:        m.CompressionFallbacks.Load(),
		CurrentSlot:      int(m.CurrentSlot.Load()),
		BytesRaw:         m.BytesRaw.Load(),
		BytesStored:      m.BytesStored.Load(),
		CompressionRatio: m.CompressionRatio(),
	}
}

func (b *Bus) setState(s State) {
	b.state.Store(int32(s))
}

func (b *Bus) run() {
	defer b.teardown()

	logger.Info("Bus", "Grabbing is beginning")
	for b.runFlag.Load() {
		if !b.step() {
			time.Sleep(missBackoff)
		}
	}
}

// step runs one capture-encode-publish iteration. It returns false when
// the source produced nothing.
func (b *Bus) step() bool {
	b.setState(Capturing)
	frame, err := b.src.NextFrame()
	if err != nil {
		b.metrics.CaptureMisses.Add(1)
		logger.Debug("Bus", "Capture failed: %v", err)
		return false
	}
	if frame.Empty() {
		b.metrics.CaptureMisses.Add(1)
		return false
	}
	b.metrics.FramesCaptured.Add(1)

	b.setState(Encoding)
	hdr, err := b.codec.Encode(b.layout.Slot(b.cursor), frame.Data)
	if err != nil {
		if errors.Is(err, codec.ErrFrameTooLarge) {
			b.metrics.OversizeFrames.Add(1)
		}
		logger.Warn("Bus", "Frame %d not encoded: %v", frame.Seq, err)
		return true
	}
	b.metrics.ObserveEncode(int(hdr.UncompressedLength), int(hdr.StoredLength),
		hdr.Compressed, b.codec.Mode() != types.CompressionNone)

	b.setState(AwaitingCredit)
	res, err := b.publishCredit.AcquireTimed(b.cfg.CreditTimeout)
	if err != nil {
		b.setState(Dropping)
		b.metrics.SemaphoreErrors.Add(1)
		b.metrics.FramesDropped.Add(1)
		logger.Error("Bus", "Waiting for publish credit: %v", err)
		return false
	}
	if res == shm.TimedOut {
		b.setState(Dropping)
		b.metrics.FramesDropped.Add(1)
		logger.Debug("Bus", "No reader credit within %v, dropping frame %d", b.cfg.CreditTimeout, frame.Seq)
		return true
	}

	b.setState(Publishing)
	b.publish(frame, hdr)
	return true
}

// publish makes the encoded slot visible. The caller holds the publish
// credit and the slot under the cursor is fully written.
func (b *Bus) publish(frame *types.Frame, hdr types.SlotHeader) {
	slot := b.cursor
	b.layout.PublishSlot(slot)

	if err := b.readySignal.Release(); err != nil {
		b.metrics.SemaphoreErrors.Add(1)
		logger.Error("Bus", "Signalling readers: %v", err)
		// Nobody was told, so hand the credit back instead of leaking it
		if err := b.publishCredit.Release(); err != nil {
			logger.Error("Bus", "Returning publish credit: %v", err)
		}
		return
	}

	captured := frame.Timestamp
	if captured.IsZero() {
		captured = time.Now()
	}
	b.metrics.ObservePublish(slot, captured)
	b.cursor = (b.cursor + 1) % types.NumSlots

	logger.Debug("Bus", "Published frame %d in slot %d | %d -> %d bytes (compressed=%v)",
		frame.Seq, slot, hdr.UncompressedLength, hdr.StoredLength, hdr.Compressed)
}

func (b *Bus) teardown() {
	b.setState(Stopped)
	logger.Info("Bus", "Bringing down IPC")

	var result *multierror.Error
	result = multierror.Append(result, b.release())
	if err := b.src.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing source: %w", err))
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Error("Bus", "Teardown incomplete, shared objects may leak: %v", err)
	}

	b.metrics.Running.Store(0)
	b.running.Store(false)
	logger.Info("Bus", "Grabbing is stopping")
}
