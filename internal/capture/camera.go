package capture

import (
	"fmt"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	// Registers the V4L2 camera driver
	_ "github.com/pion/mediadevices/pkg/driver/camera"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/imaging"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

// Camera reads frames from a local video device. Frames are always
// delivered at the requested resolution as BGR24; devices that ignore the
// size constraint are scaled.
type Camera struct {
	track  mediadevices.Track
	reader video.Reader
	width  int
	height int
	seq    uint64
	buf    []byte
}

// VideoInputs lists the video capture devices in enumeration order
func VideoInputs() []mediadevices.MediaDeviceInfo {
	var inputs []mediadevices.MediaDeviceInfo
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind == mediadevices.VideoInput {
			inputs = append(inputs, d)
		}
	}
	return inputs
}

// OpenCamera opens the index-th video input at width x height
func OpenCamera(index, width, height int) (*Camera, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid resolution %dx%d", width, height)
	}

	inputs := VideoInputs()
	if index < 0 || index >= len(inputs) {
		return nil, fmt.Errorf("video device %d not found (%d available)", index, len(inputs))
	}
	device := inputs[index]
	logger.Info("Camera", "Opening device %d: %s (%s)", index, device.Label, device.DeviceID)

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.DeviceID = prop.String(device.DeviceID)
			c.Width = prop.Int(width)
			c.Height = prop.Int(height)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open video device %d: %w", index, err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("video device %d produced no track", index)
	}
	videoTrack, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		tracks[0].Close()
		return nil, fmt.Errorf("video device %d: unexpected track type %T", index, tracks[0])
	}

	return &Camera{
		track:  videoTrack,
		reader: videoTrack.NewReader(false),
		width:  width,
		height: height,
	}, nil
}

// NextFrame implements Source. The returned Data is reused by the next call.
func (c *Camera) NextFrame() (*types.Frame, error) {
	img, release, err := c.reader.Read()
	if err != nil {
		return nil, err
	}
	defer release()

	if img == nil || img.Bounds().Empty() {
		return nil, nil
	}

	c.buf = imaging.FromImage(img, c.width, c.height, types.FormatBGR24, c.buf)
	c.seq++

	return &types.Frame{
		Data:      c.buf,
		Width:     c.width,
		Height:    c.height,
		Format:    types.FormatBGR24,
		Seq:       c.seq,
		Timestamp: time.Now(),
	}, nil
}

// FrameSize implements Source
func (c *Camera) FrameSize() int {
	return types.FrameSize(c.width, c.height, types.FormatBGR24)
}

// Close implements Source
func (c *Camera) Close() error {
	return c.track.Close()
}
