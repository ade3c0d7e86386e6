package capture

import (
	"sync"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

// Pattern generates moving colour bars. Useful without a camera and in
// tests; frames are paced by a ticker when fps > 0.
type Pattern struct {
	width  int
	height int
	format types.PixelFormat

	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{} // closed by Close to wake a paced NextFrame
	seq    uint64
	closed bool
}

var barColors = [][3]byte{
	{255, 255, 255}, {0, 255, 255}, {255, 255, 0}, {0, 255, 0},
	{255, 0, 255}, {0, 0, 255}, {255, 0, 0}, {0, 0, 0},
}

// NewPattern returns a BGR24 test pattern source
func NewPattern(width, height int, fps int) *Pattern {
	p := &Pattern{width: width, height: height, format: types.FormatBGR24, done: make(chan struct{})}
	if fps > 0 {
		p.ticker = time.NewTicker(time.Second / time.Duration(fps))
	}
	return p
}

// NextFrame implements Source
func (p *Pattern) NextFrame() (*types.Frame, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, nil
	}

	if p.ticker != nil {
		select {
		case <-p.done:
			return nil, nil
		case <-p.ticker.C:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, nil
	}
	p.seq++

	data := make([]byte, types.FrameSize(p.width, p.height, p.format))
	barWidth := max(p.width/len(barColors), 1)
	shift := int(p.seq)

	row := data[:p.width*3]
	for x := 0; x < p.width; x++ {
		c := barColors[((x+shift)/barWidth)%len(barColors)]
		// barColors are RGB, the frame is BGR
		row[x*3+0], row[x*3+1], row[x*3+2] = c[2], c[1], c[0]
	}
	for y := 1; y < p.height; y++ {
		copy(data[y*p.width*3:(y+1)*p.width*3], row)
	}

	return &types.Frame{
		Data:      data,
		Width:     p.width,
		Height:    p.height,
		Format:    p.format,
		Seq:       p.seq,
		Timestamp: time.Now(),
	}, nil
}

// FrameSize implements Source
func (p *Pattern) FrameSize() int {
	return types.FrameSize(p.width, p.height, p.format)
}

// Close implements Source
func (p *Pattern) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	p.closed = true
	close(p.done)
	return nil
}
