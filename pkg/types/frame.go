package types

import (
	"fmt"
	"strings"
	"time"
)

// Frame is one raw picture as delivered by a capture source
type Frame struct {
	Data      []byte      // Raw pixel data, row-major, no padding
	Width     int         // Frame width in pixels
	Height    int         // Frame height in pixels
	Format    PixelFormat // Layout of Data
	Seq       uint64      // Sequential frame number assigned by the source
	Timestamp time.Time   // Capture timestamp
}

// Empty reports whether the frame carries no usable pixels
func (f *Frame) Empty() bool {
	return f == nil || len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}

// PixelFormat describes how pixels are packed in Frame.Data
type PixelFormat int

const (
	FormatBGR24 PixelFormat = iota // 3 bytes per pixel, blue first (camera default)
	FormatRGBA32
	FormatGray8
)

// BytesPerPixel returns the packed pixel size
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case FormatRGBA32:
		return 4
	case FormatGray8:
		return 1
	default:
		return 3
	}
}

func (p PixelFormat) String() string {
	switch p {
	case FormatBGR24:
		return "bgr24"
	case FormatRGBA32:
		return "rgba32"
	case FormatGray8:
		return "gray8"
	default:
		return "unknown"
	}
}

// FrameSize returns the raw byte size of a width x height frame in format p
func FrameSize(width, height int, p PixelFormat) int {
	return width * height * p.BytesPerPixel()
}

// Compression selects how frames are stored in a slot
type Compression int

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionJPEG
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionJPEG:
		return "jpeg"
	default:
		return "unknown"
	}
}

// ParseCompression parses a compression mode name
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none", "raw":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "jpeg", "jpg":
		return CompressionJPEG, nil
	default:
		return CompressionNone, fmt.Errorf("invalid compression mode: %s", s)
	}
}

// MarshalText lets Compression round-trip through YAML and flags
func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Compression) UnmarshalText(text []byte) error {
	parsed, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
