package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/pierrec/lz4/v4"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/imaging"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

// Compressor compresses src into dst, which bounds the output size.
// A zero count or an error means the data did not fit or was declined.
type Compressor interface {
	Compress(src, dst []byte) (int, error)
}

// Decompressor reverses a Compressor into dst and returns the bytes written
type Decompressor interface {
	Decompress(src, dst []byte) (int, error)
}

var errShortBuffer = errors.New("codec: output does not fit")

// LZ4 is an LZ4 block compressor. Not safe for concurrent use.
type LZ4 struct {
	c lz4.Compressor
}

// Compress implements Compressor
func (z *LZ4) Compress(src, dst []byte) (int, error) {
	return z.c.CompressBlock(src, dst)
}

// Decompress implements Decompressor
func (z *LZ4) Decompress(src, dst []byte) (int, error) {
	return lz4.UncompressBlock(src, dst)
}

// JPEG encodes raw frames of a fixed geometry as baseline JPEG. Lossy:
// Decompress yields an approximation of the original pixels.
type JPEG struct {
	width   int
	height  int
	format  types.PixelFormat
	quality int
}

// NewJPEG returns a JPEG codec for width x height frames of format
func NewJPEG(width, height int, format types.PixelFormat, quality int) *JPEG {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &JPEG{width: width, height: height, format: format, quality: quality}
}

// Compress implements Compressor
func (j *JPEG) Compress(src, dst []byte) (int, error) {
	if len(src) != types.FrameSize(j.width, j.height, j.format) {
		return 0, fmt.Errorf("jpeg: frame is %d bytes, want %dx%d %v", len(src), j.width, j.height, j.format)
	}
	img, err := imaging.ToImage(src, j.width, j.height, j.format)
	if err != nil {
		return 0, err
	}

	w := &boundedWriter{buf: dst}
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: j.quality}); err != nil {
		return 0, err
	}
	return w.n, nil
}

// Decompress implements Decompressor
func (j *JPEG) Decompress(src, dst []byte) (int, error) {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return 0, err
	}
	if b := img.Bounds(); b.Dx() != j.width || b.Dy() != j.height {
		return 0, fmt.Errorf("jpeg: decoded %dx%d, want %dx%d", b.Dx(), b.Dy(), j.width, j.height)
	}
	size := types.FrameSize(j.width, j.height, j.format)
	if len(dst) < size {
		return 0, errShortBuffer
	}
	imaging.FromImage(img, j.width, j.height, j.format, dst[:0])
	return size, nil
}

// boundedWriter writes into a fixed buffer and fails instead of growing
type boundedWriter struct {
	buf []byte
	n   int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	if len(p) > len(w.buf)-w.n {
		return 0, errShortBuffer
	}
	w.n += copy(w.buf[w.n:], p)
	return len(p), nil
}
