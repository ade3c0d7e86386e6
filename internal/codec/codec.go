// Package codec writes raw frames into shared memory slots and reads them
// back. A frame is stored compressed when the compressed form fits in the
// slot and verbatim otherwise; nothing is ever written past the slot.
package codec

import (
	"errors"
	"fmt"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

var (
	// ErrFrameTooLarge is returned when a raw frame exceeds the slot's
	// payload capacity. The slot is left untouched.
	ErrFrameTooLarge = errors.New("codec: frame exceeds slot capacity")

	// ErrCorruptSlot is returned by Decode when the slot header is
	// inconsistent with the slot it sits in
	ErrCorruptSlot = errors.New("codec: corrupt slot header")
)

// Options carries the frame geometry needed by geometry-aware codecs
type Options struct {
	Width       int
	Height      int
	Format      types.PixelFormat
	JPEGQuality int
}

// Codec encodes frames into slots for one compression mode
type Codec struct {
	mode   types.Compression
	comp   Compressor
	decomp Decompressor
}

// New returns a codec for mode
func New(mode types.Compression, opts Options) (*Codec, error) {
	c := &Codec{mode: mode}
	switch mode {
	case types.CompressionNone:
	case types.CompressionLZ4:
		z := &LZ4{}
		c.comp, c.decomp = z, z
	case types.CompressionJPEG:
		if opts.Width <= 0 || opts.Height <= 0 {
			return nil, fmt.Errorf("codec: jpeg needs frame geometry, got %dx%d", opts.Width, opts.Height)
		}
		j := NewJPEG(opts.Width, opts.Height, opts.Format, opts.JPEGQuality)
		c.comp, c.decomp = j, j
	default:
		return nil, fmt.Errorf("codec: unsupported compression %v", mode)
	}
	return c, nil
}

// NewWith returns a codec reported as mode but using custom compression.
// decomp may be nil for an encode-only codec.
func NewWith(mode types.Compression, comp Compressor, decomp Decompressor) *Codec {
	return &Codec{mode: mode, comp: comp, decomp: decomp}
}

// Mode returns the codec's compression mode
func (c *Codec) Mode() types.Compression {
	return c.mode
}

// Encode writes raw into slot (SlotHeader followed by payload) and returns
// the header it wrote. The header is written after the payload.
func (c *Codec) Encode(slot, raw []byte) (types.SlotHeader, error) {
	var hdr types.SlotHeader
	if len(slot) < types.SlotHeaderSize {
		return hdr, fmt.Errorf("codec: slot of %d bytes has no room for a header", len(slot))
	}

	capacity := len(slot) - types.SlotHeaderSize
	if len(raw) > capacity {
		return hdr, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(raw), capacity)
	}

	payload := slot[types.SlotHeaderSize : types.SlotHeaderSize+capacity : types.SlotHeaderSize+capacity]
	hdr.UncompressedLength = uint32(len(raw))

	if n, ok := c.compress(raw, payload); ok {
		hdr.StoredLength = uint32(n)
		hdr.Compressed = true
	} else {
		copy(payload, raw)
		hdr.StoredLength = uint32(len(raw))
		hdr.Compressed = false
	}

	hdr.Put(slot[:types.SlotHeaderSize])
	return hdr, nil
}

func (c *Codec) compress(raw, payload []byte) (int, bool) {
	if c.comp == nil || len(raw) == 0 {
		return 0, false
	}
	n, err := c.comp.Compress(raw, payload)
	if err != nil || n <= 0 || n > len(payload) {
		return 0, false
	}
	return n, true
}

// Decode reads the frame stored in slot into dst (grown if needed) and
// returns the raw bytes together with the slot header
func (c *Codec) Decode(slot, dst []byte) ([]byte, types.SlotHeader, error) {
	if len(slot) < types.SlotHeaderSize {
		return nil, types.SlotHeader{}, ErrCorruptSlot
	}
	hdr := types.ParseSlotHeader(slot)

	capacity := len(slot) - types.SlotHeaderSize
	if int(hdr.StoredLength) > capacity || int(hdr.UncompressedLength) > capacity {
		return nil, hdr, fmt.Errorf("%w: stored=%d uncompressed=%d capacity=%d",
			ErrCorruptSlot, hdr.StoredLength, hdr.UncompressedLength, capacity)
	}
	if !hdr.Compressed && hdr.StoredLength != hdr.UncompressedLength {
		return nil, hdr, fmt.Errorf("%w: verbatim slot with stored=%d uncompressed=%d",
			ErrCorruptSlot, hdr.StoredLength, hdr.UncompressedLength)
	}

	size := int(hdr.UncompressedLength)
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	dst = dst[:size]

	payload := slot[types.SlotHeaderSize : types.SlotHeaderSize+int(hdr.StoredLength)]
	if !hdr.Compressed {
		copy(dst, payload)
		return dst, hdr, nil
	}

	if c.decomp == nil {
		return nil, hdr, fmt.Errorf("codec: %v codec cannot decompress", c.mode)
	}
	n, err := c.decomp.Decompress(payload, dst)
	if err != nil {
		return nil, hdr, fmt.Errorf("codec: decompress: %w", err)
	}
	if n != size {
		return nil, hdr, fmt.Errorf("%w: decompressed %d bytes, header says %d", ErrCorruptSlot, n, size)
	}
	return dst, hdr, nil
}
