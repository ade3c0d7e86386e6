// Package imaging converts between image.Image values and the packed raw
// pixel buffers carried in frame slots.
package imaging

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

// ToImage wraps or converts a raw buffer into an image.Image
func ToImage(raw []byte, width, height int, format types.PixelFormat) (image.Image, error) {
	if need := types.FrameSize(width, height, format); len(raw) < need {
		return nil, fmt.Errorf("raw buffer too small: %d < %d", len(raw), need)
	}
	rect := image.Rect(0, 0, width, height)

	switch format {
	case types.FormatGray8:
		return &image.Gray{Pix: raw, Stride: width, Rect: rect}, nil
	case types.FormatRGBA32:
		return &image.RGBA{Pix: raw, Stride: width * 4, Rect: rect}, nil
	case types.FormatBGR24:
		img := image.NewRGBA(rect)
		for i, j := 0, 0; i < width*height*3; i, j = i+3, j+4 {
			img.Pix[j+0] = raw[i+2]
			img.Pix[j+1] = raw[i+1]
			img.Pix[j+2] = raw[i+0]
			img.Pix[j+3] = 0xff
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported pixel format %v", format)
	}
}

// FromImage packs img into dst as width x height pixels of format. If img
// has a different size it is scaled. dst is reused when large enough.
func FromImage(img image.Image, width, height int, format types.PixelFormat, dst []byte) []byte {
	size := types.FrameSize(width, height, format)
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	dst = dst[:size]

	src := fit(img, width, height)
	b := src.Bounds()

	switch format {
	case types.FormatGray8:
		for y := 0; y < height; y++ {
			row := dst[y*width : (y+1)*width]
			for x := range row {
				row[x] = color.GrayModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
			}
		}
	case types.FormatRGBA32:
		rgba := toRGBA(src)
		for y := 0; y < height; y++ {
			copy(dst[y*width*4:(y+1)*width*4], rgba.Pix[y*rgba.Stride:y*rgba.Stride+width*4])
		}
	default:
		rgba := toRGBA(src)
		for y := 0; y < height; y++ {
			in := rgba.Pix[y*rgba.Stride : y*rgba.Stride+width*4]
			out := dst[y*width*3 : (y+1)*width*3]
			for i, j := 0, 0; j < len(out); i, j = i+4, j+3 {
				out[j+0] = in[i+2]
				out[j+1] = in[i+1]
				out[j+2] = in[i+0]
			}
		}
	}
	return dst
}

// fit scales img to exactly width x height when needed
func fit(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)
	return scaled
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
