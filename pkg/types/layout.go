package types

import (
	"encoding/binary"
	"fmt"
)

// Shared memory wire layout. All integers are host-endian; producer and
// readers must run on the same host.
//
//	RegionHeader: total_size u32 | width u32 | height u32 | slot_offset[NumSlots] u32 | current_slot u32
//	SlotHeader:   uncompressed_length u32 | stored_length u32 | compressed u8 | padding[3]
const (
	NumSlots = 2

	RegionHeaderSize = 4*3 + 4*NumSlots + 4
	SlotHeaderSize   = 12

	// CurrentSlotOffset is the byte offset of current_slot inside the region
	CurrentSlotOffset = 4*3 + 4*NumSlots

	// SlotAlign keeps every slot on its own cache line
	SlotAlign = 64

	// DefaultBytesPerPixel is the assumed worst case used to size slots
	DefaultBytesPerPixel = 4
)

// RegionHeader is the fixed prefix of the shared region
type RegionHeader struct {
	TotalSize   uint32
	Width       uint32
	Height      uint32
	SlotOffsets [NumSlots]uint32
	CurrentSlot uint32
}

// Put encodes h into b, which must hold RegionHeaderSize bytes
func (h *RegionHeader) Put(b []byte) {
	_ = b[RegionHeaderSize-1]
	ne := binary.NativeEndian
	ne.PutUint32(b[0:], h.TotalSize)
	ne.PutUint32(b[4:], h.Width)
	ne.PutUint32(b[8:], h.Height)
	for i, off := range h.SlotOffsets {
		ne.PutUint32(b[12+4*i:], off)
	}
	ne.PutUint32(b[CurrentSlotOffset:], h.CurrentSlot)
}

// ParseRegionHeader decodes and sanity-checks a region header against the
// mapped size
func ParseRegionHeader(b []byte) (RegionHeader, error) {
	var h RegionHeader
	if len(b) < RegionHeaderSize {
		return h, fmt.Errorf("region too small for header: %d bytes", len(b))
	}
	ne := binary.NativeEndian
	h.TotalSize = ne.Uint32(b[0:])
	h.Width = ne.Uint32(b[4:])
	h.Height = ne.Uint32(b[8:])
	for i := range h.SlotOffsets {
		h.SlotOffsets[i] = ne.Uint32(b[12+4*i:])
	}
	h.CurrentSlot = ne.Uint32(b[CurrentSlotOffset:])

	if int(h.TotalSize) > len(b) {
		return h, fmt.Errorf("header size %d exceeds mapped size %d", h.TotalSize, len(b))
	}
	// Widened so offsets near the top of the u32 range cannot wrap
	prev := uint64(RegionHeaderSize)
	for i, off := range h.SlotOffsets {
		if end := uint64(off) + SlotHeaderSize; uint64(off) < prev || end > uint64(h.TotalSize) {
			return h, fmt.Errorf("slot %d offset %d out of range", i, off)
		}
		prev = uint64(off) + SlotHeaderSize
	}
	if h.CurrentSlot >= NumSlots {
		return h, fmt.Errorf("current slot %d out of range", h.CurrentSlot)
	}
	return h, nil
}

// SlotCapacity returns the payload capacity of slot i as implied by the
// offsets and the total size
func (h *RegionHeader) SlotCapacity(i int) int {
	end := h.TotalSize
	if i+1 < NumSlots {
		end = h.SlotOffsets[i+1]
	}
	return int(end-h.SlotOffsets[i]) - SlotHeaderSize
}

// SlotHeader prefixes every slot's payload
type SlotHeader struct {
	UncompressedLength uint32
	StoredLength       uint32
	Compressed         bool
}

// Put encodes h into b, which must hold SlotHeaderSize bytes
func (h *SlotHeader) Put(b []byte) {
	_ = b[SlotHeaderSize-1]
	ne := binary.NativeEndian
	ne.PutUint32(b[0:], h.UncompressedLength)
	ne.PutUint32(b[4:], h.StoredLength)
	b[8] = 0
	if h.Compressed {
		b[8] = 1
	}
	b[9], b[10], b[11] = 0, 0, 0
}

// ParseSlotHeader decodes a slot header
func ParseSlotHeader(b []byte) SlotHeader {
	_ = b[SlotHeaderSize-1]
	ne := binary.NativeEndian
	return SlotHeader{
		UncompressedLength: ne.Uint32(b[0:]),
		StoredLength:       ne.Uint32(b[4:]),
		Compressed:         b[8] != 0,
	}
}

// Geometry is everything needed to lay out a region
type Geometry struct {
	Width         int
	Height        int
	BytesPerPixel int
}

// PayloadCapacity is the per-slot payload ceiling
func (g Geometry) PayloadCapacity() int {
	return g.Width * g.Height * g.BytesPerPixel
}

// SlotStride is the aligned size reserved for each slot
func (g Geometry) SlotStride() int {
	return alignUp(SlotHeaderSize+g.PayloadCapacity(), SlotAlign)
}

// Header computes the region header for g. Offsets are fixed from here on.
func (g Geometry) Header() RegionHeader {
	h := RegionHeader{
		Width:  uint32(g.Width),
		Height: uint32(g.Height),
	}
	off := alignUp(RegionHeaderSize, SlotAlign)
	for i := range h.SlotOffsets {
		h.SlotOffsets[i] = uint32(off)
		off += g.SlotStride()
	}
	h.TotalSize = uint32(off)
	return h
}

// RegionSize is the total number of bytes the region needs
func (g Geometry) RegionSize() int {
	return alignUp(RegionHeaderSize, SlotAlign) + NumSlots*g.SlotStride()
}

func alignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// Default names of the shared objects
const (
	DefaultRegionName     = "/picamera_grabber_mem"
	DefaultPublishSemName = "/picamera_grabber_generate"
	DefaultReadySemName   = "/picamera_grabber_notifier"
	DefaultPermissions    = 0o666
	PublishCreditInitial  = 1
	ReadySignalInitial    = 0
)
