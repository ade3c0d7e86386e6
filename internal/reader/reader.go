// Package reader is the consumer side of the frame bus: it waits for the
// ready signal, reads the published slot and returns the publish credit.
package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/codec"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/shm"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

// ErrNoFrame is returned by Next when nothing was published in time
var ErrNoFrame = errors.New("reader: no frame published")

// Names identifies the shared objects of a bus
type Names struct {
	Region  string
	Publish string
	Ready   string
}

// DefaultNames returns the names the grabber uses by default
func DefaultNames() Names {
	return Names{
		Region:  types.DefaultRegionName,
		Publish: types.DefaultPublishSemName,
		Ready:   types.DefaultReadySemName,
	}
}

// Options controls how a Reader attaches and decodes
type Options struct {
	Names       Names
	Compression types.Compression
	Format      types.PixelFormat
	// OpenRetries is how many times to retry, one second apart, while the
	// region does not exist yet
	OpenRetries int
}

// Reader reads frames published by a bus in another process
type Reader struct {
	opts          Options
	region        *shm.Region
	layout        *shm.Layout
	publishCredit *shm.Semaphore
	readySignal   *shm.Semaphore
	codec         *codec.Codec
	seq           uint64
}

// Open attaches to a running bus, waiting for it to appear
func Open(ctx context.Context, opts Options) (*Reader, error) {
	var region *shm.Region
	var err error

	for i := 0; ; i++ {
		region, err = shm.OpenRegion(opts.Names.Region)
		if err == nil || !errors.Is(err, shm.ErrOpen) || i >= opts.OpenRetries {
			break
		}
		// Log waiting status (only every 5 seconds to reduce noise)
		if i%5 == 0 {
			logger.Info("Reader", "Waiting for shared memory %s to appear... (%d/%d)", opts.Names.Region, i+1, opts.OpenRetries)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open shared memory: %w", err)
	}

	r := &Reader{opts: opts, region: region}

	r.layout, err = shm.AttachLayout(region.Bytes())
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("invalid region header: %w", err)
	}

	h := r.layout.Header()
	r.codec, err = codec.New(opts.Compression, codec.Options{
		Width:  int(h.Width),
		Height: int(h.Height),
		Format: opts.Format,
	})
	if err != nil {
		r.Close()
		return nil, err
	}

	if r.readySignal, err = shm.OpenSemaphore(opts.Names.Ready); err != nil {
		r.Close()
		return nil, err
	}
	if r.publishCredit, err = shm.OpenSemaphore(opts.Names.Publish); err != nil {
		r.Close()
		return nil, err
	}

	logger.Info("Reader", "Successfully opened shared memory: %s (%dx%d)", opts.Names.Region, h.Width, h.Height)
	return r, nil
}

// Header returns the region header, current slot included
func (r *Reader) Header() types.RegionHeader {
	return r.layout.Header()
}

// Next waits up to timeout for a published frame, copies it out of shared
// memory and returns the publish credit. The credit is returned even when
// the slot cannot be decoded.
func (r *Reader) Next(ctx context.Context, timeout time.Duration) (*types.Frame, int, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.readySignal.Acquire(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, 0, ErrNoFrame
		}
		return nil, 0, err
	}

	slot := int(r.layout.CurrentSlot())
	data, _, decodeErr := r.codec.Decode(r.layout.Slot(slot), nil)

	if err := r.publishCredit.Release(); err != nil {
		return nil, slot, fmt.Errorf("returning publish credit: %w", err)
	}
	if decodeErr != nil {
		return nil, slot, decodeErr
	}

	h := r.layout.Header()
	r.seq++
	return &types.Frame{
		Data:      data,
		Width:     int(h.Width),
		Height:    int(h.Height),
		Format:    r.opts.Format,
		Seq:       r.seq,
		Timestamp: time.Now(),
	}, slot, nil
}

// Close detaches from the bus without removing any shared object
func (r *Reader) Close() error {
	var result *multierror.Error
	if r.readySignal != nil {
		result = multierror.Append(result, r.readySignal.Close())
	}
	if r.publishCredit != nil {
		result = multierror.Append(result, r.publishCredit.Close())
	}
	if r.region != nil {
		result = multierror.Append(result, r.region.Close())
	}
	return result.ErrorOrNil()
}
