// Package capture provides the frame sources that feed the bus.
package capture

import (
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

// Source delivers raw frames at a nominal resolution fixed when it is
// opened. NextFrame may return a nil frame (or one with no data) when the
// device had nothing to give; callers treat that as a soft miss.
type Source interface {
	NextFrame() (*types.Frame, error)
	// FrameSize is the largest raw frame, in bytes, the source will deliver
	FrameSize() int
	Close() error
}
