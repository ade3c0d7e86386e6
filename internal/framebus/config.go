package framebus

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

// DefaultCreditTimeout bounds how long a frame waits for a reader
const DefaultCreditTimeout = time.Second

// Upper bounds on frame geometry
const (
	MaxDimension     = 1 << 15
	MaxBytesPerPixel = 16
)

// ErrInvalidConfig wraps every configuration validation failure
var ErrInvalidConfig = errors.New("framebus: invalid config")

// Config defines the shared objects and frame geometry of a bus
type Config struct {
	RegionName     string            `yaml:"region_name"`
	PublishSemName string            `yaml:"publish_semaphore"`
	ReadySemName   string            `yaml:"ready_semaphore"`
	Permissions    uint32            `yaml:"permissions"`
	Width          int               `yaml:"width"`
	Height         int               `yaml:"height"`
	BytesPerPixel  int               `yaml:"bytes_per_pixel"`
	Format         types.PixelFormat `yaml:"-"`
	Compression    types.Compression `yaml:"compression"`
	JPEGQuality    int               `yaml:"jpeg_quality"`
	CreditTimeout  time.Duration     `yaml:"credit_timeout"`
}

// DefaultConfig returns a config matching the names and sizing the
// reader tools expect
func DefaultConfig() Config {
	return Config{
		RegionName:     types.DefaultRegionName,
		PublishSemName: types.DefaultPublishSemName,
		ReadySemName:   types.DefaultReadySemName,
		Permissions:    types.DefaultPermissions,
		Width:          640,
		Height:         480,
		BytesPerPixel:  types.DefaultBytesPerPixel,
		Format:         types.FormatBGR24,
		Compression:    types.CompressionLZ4,
		JPEGQuality:    85,
		CreditTimeout:  DefaultCreditTimeout,
	}
}

// Geometry returns the region geometry described by c
func (c Config) Geometry() types.Geometry {
	return types.Geometry{Width: c.Width, Height: c.Height, BytesPerPixel: c.BytesPerPixel}
}

// Validate checks c for values the bus cannot run with
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.BytesPerPixel <= 0:
		return fmt.Errorf("%w: bytes per pixel %d", ErrInvalidConfig, c.BytesPerPixel)
	case c.CreditTimeout <= 0:
		return fmt.Errorf("%w: credit timeout %v", ErrInvalidConfig, c.CreditTimeout)
	case c.RegionName == "" || c.PublishSemName == "" || c.ReadySemName == "":
		return fmt.Errorf("%w: shared object names must be set", ErrInvalidConfig)
	case c.PublishSemName == c.ReadySemName:
		return fmt.Errorf("%w: publish and ready semaphores share the name %s", ErrInvalidConfig, c.ReadySemName)
	}

	if c.Width > MaxDimension || c.Height > MaxDimension || c.BytesPerPixel > MaxBytesPerPixel {
		return fmt.Errorf("%w: %dx%d at %d bytes per pixel is out of range", ErrInvalidConfig, c.Width, c.Height, c.BytesPerPixel)
	}

	// Header fields are u32; the bounds above keep this product far from wrapping
	payload := uint64(c.Width) * uint64(c.Height) * uint64(c.BytesPerPixel)
	stride := (types.SlotHeaderSize + payload + types.SlotAlign - 1) &^ (types.SlotAlign - 1)
	header := uint64(types.RegionHeaderSize+types.SlotAlign-1) &^ (types.SlotAlign - 1)
	if size := header + types.NumSlots*stride; size > math.MaxUint32 {
		return fmt.Errorf("%w: region of %d bytes exceeds the 32-bit layout", ErrInvalidConfig, size)
	}
	return nil
}
