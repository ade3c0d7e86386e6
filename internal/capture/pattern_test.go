package capture

import (
	"bytes"
	"testing"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

func TestPatternFrames(t *testing.T) {
	p := NewPattern(64, 48, 0)
	defer p.Close()

	if p.FrameSize() != 64*48*3 {
		t.Fatalf("FrameSize() = %d, want %d", p.FrameSize(), 64*48*3)
	}

	first, err := p.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	second, err := p.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}

	if len(first.Data) != p.FrameSize() || first.Format != types.FormatBGR24 {
		t.Errorf("unexpected frame: %d bytes, format %v", len(first.Data), first.Format)
	}
	if second.Seq != first.Seq+1 {
		t.Errorf("Seq = %d after %d", second.Seq, first.Seq)
	}
	if bytes.Equal(first.Data, second.Data) {
		t.Error("pattern did not move between frames")
	}
}

func TestPatternPacing(t *testing.T) {
	p := NewPattern(8, 8, 50)
	defer p.Close()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := p.NextFrame(); err != nil {
			t.Fatalf("NextFrame: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("5 frames at 50fps took %v, expected pacing", elapsed)
	}
}

func TestPatternClosedYieldsEmpty(t *testing.T) {
	p := NewPattern(8, 8, 30)
	p.Close()

	f, err := p.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if !f.Empty() {
		t.Error("closed pattern should yield an empty frame")
	}
}

func TestPatternCloseWakesNextFrame(t *testing.T) {
	tests := []struct {
		name string
		fps  int
	}{
		{"one fps", 1},
		{"two fps", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPattern(8, 8, tt.fps)

			done := make(chan *types.Frame, 1)
			go func() {
				f, _ := p.NextFrame()
				done <- f
			}()

			// Well before the first tick
			time.Sleep(20 * time.Millisecond)
			if err := p.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if err := p.Close(); err != nil {
				t.Errorf("second Close: %v", err)
			}

			select {
			case f := <-done:
				if !f.Empty() {
					t.Error("NextFrame after Close should yield an empty frame")
				}
			case <-time.After(200 * time.Millisecond):
				t.Fatal("NextFrame still blocked after Close")
			}
		})
	}
}
