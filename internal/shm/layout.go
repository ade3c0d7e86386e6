package shm

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

// Layout is a typed view over a mapped frame region. Slot views are computed
// once and never change for the lifetime of the mapping.
type Layout struct {
	mem         []byte
	header      types.RegionHeader
	slots       [types.NumSlots][]byte
	currentSlot *uint32
}

// InitLayout writes a fresh header for g into mem and returns the view.
// mem must be at least g.RegionSize() bytes.
func InitLayout(mem []byte, g types.Geometry) (*Layout, error) {
	if g.Width <= 0 || g.Height <= 0 || g.BytesPerPixel <= 0 {
		return nil, fmt.Errorf("invalid geometry %dx%d@%d", g.Width, g.Height, g.BytesPerPixel)
	}
	if len(mem) < g.RegionSize() {
		return nil, fmt.Errorf("region of %d bytes cannot hold layout of %d bytes", len(mem), g.RegionSize())
	}

	h := g.Header()
	h.Put(mem[:types.RegionHeaderSize])
	return newLayout(mem, h), nil
}

// AttachLayout parses the header already present in mem (reader side)
func AttachLayout(mem []byte) (*Layout, error) {
	h, err := types.ParseRegionHeader(mem)
	if err != nil {
		return nil, err
	}
	return newLayout(mem, h), nil
}

func newLayout(mem []byte, h types.RegionHeader) *Layout {
	l := &Layout{
		mem:         mem,
		header:      h,
		currentSlot: (*uint32)(unsafe.Pointer(&mem[types.CurrentSlotOffset])),
	}
	for i := range l.slots {
		start := int(h.SlotOffsets[i])
		end := int(h.TotalSize)
		if i+1 < types.NumSlots {
			end = int(h.SlotOffsets[i+1])
		}
		// Full slice expression caps the view so nothing can spill into
		// the next slot through append or reslicing
		l.slots[i] = mem[start:end:end]
	}
	return l
}

// Header returns the header as written at creation
func (l *Layout) Header() types.RegionHeader {
	h := l.header
	h.CurrentSlot = l.CurrentSlot()
	return h
}

// Slot returns the fixed-capacity view of slot i, SlotHeader included
func (l *Layout) Slot(i int) []byte {
	return l.slots[i]
}

// PayloadCapacity returns how many payload bytes slot i can hold
func (l *Layout) PayloadCapacity(i int) int {
	return len(l.slots[i]) - types.SlotHeaderSize
}

// CurrentSlot loads the published slot index
func (l *Layout) CurrentSlot() uint32 {
	return atomic.LoadUint32(l.currentSlot)
}

// PublishSlot stores the slot index readers should consume next. Callers
// must have finished writing the slot; the store is atomic so it is never
// observed torn.
func (l *Layout) PublishSlot(i int) {
	atomic.StoreUint32(l.currentSlot, uint32(i))
}
