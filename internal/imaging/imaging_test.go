package imaging

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

func TestBGRRoundTrip(t *testing.T) {
	const w, h = 4, 3
	raw := make([]byte, types.FrameSize(w, h, types.FormatBGR24))
	for i := range raw {
		raw[i] = byte(i * 7)
	}

	img, err := ToImage(raw, w, h, types.FormatBGR24)
	if err != nil {
		t.Fatalf("ToImage: %v", err)
	}

	got := FromImage(img, w, h, types.FormatBGR24, nil)
	if !bytes.Equal(got, raw) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", got, raw)
	}
}

func TestBGRChannelOrder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	got := FromImage(img, 1, 1, types.FormatBGR24, nil)
	if want := []byte{30, 20, 10}; !bytes.Equal(got, want) {
		t.Errorf("FromImage = %v, want %v", got, want)
	}
}

func TestFromImageScales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := range src.Pix {
		src.Pix[i] = 0x80
	}

	tests := []struct {
		format types.PixelFormat
		w, h   int
	}{
		{types.FormatBGR24, 32, 24},
		{types.FormatRGBA32, 16, 12},
		{types.FormatGray8, 100, 80},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			got := FromImage(src, tt.w, tt.h, tt.format, nil)
			if want := types.FrameSize(tt.w, tt.h, tt.format); len(got) != want {
				t.Errorf("len = %d, want %d", len(got), want)
			}
		})
	}
}

func TestFromImageReusesBuffer(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 8, 8))
	buf := make([]byte, 0, 256)

	got := FromImage(src, 8, 8, types.FormatGray8, buf)
	if &got[0] != &buf[:1][0] {
		t.Error("expected dst buffer to be reused")
	}
}

func TestToImageShortBuffer(t *testing.T) {
	if _, err := ToImage(make([]byte, 5), 2, 2, types.FormatBGR24); err == nil {
		t.Error("expected error for short buffer")
	}
}
