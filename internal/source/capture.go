package source

import (
	"context"
	"fmt"
	"image"
	"io"
	"strconv"

	"gocv.io/x/gocv"
)

// Capture reads frames from a camera index or a video URL/path via OpenCV.
type Capture struct {
	cap   *gocv.VideoCapture
	frame gocv.Mat
}

// OpenCapture opens device, which is either a camera index ("0") or
// anything OpenCV can open (file path, rtsp:// URL).
func OpenCapture(device string) (*Capture, error) {
	var target interface{} = device
	if id, err := strconv.Atoi(device); err == nil {
		target = id
	}
	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("could not open video source %s: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("could not open video source %s", device)
	}
	return &Capture{cap: vc, frame: gocv.NewMat()}, nil
}

// Next grabs one frame. A failed grab ends the stream.
func (c *Capture) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := c.cap.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, io.EOF
	}
	img, err := c.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

func (c *Capture) Close() error {
	c.frame.Close()
	return c.cap.Close()
}
