// Package source provides live frame sources: cameras and RTSP through
// OpenCV, raw MJPEG byte streams, and browser cameras over a websocket.
package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/amirhossein5/rollcall/internal/imagefile"
	"github.com/amirhossein5/rollcall/pkg/logger"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

const megabyte = 1 << 20

// SplitJpeg is a bufio.SplitFunc yielding one complete JPEG per token,
// discarding any bytes before the start-of-image marker. Frames are measured
// by their segment lengths, so an EXIF thumbnail with its own markers stays
// inside the frame that carries it.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}

	n := jpegLength(data[start:])
	if n < 0 {
		// broken segment layout: cut at the first end marker and let the
		// decoder reject it
		n = 0
		if end := bytes.Index(data[start+len(jpegSOI):], jpegEOI); end != -1 {
			n = len(jpegSOI) + end + len(jpegEOI)
		}
	}
	if n == 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + n, data[start : start+n], nil
}

// jpegLength walks the segments of the JPEG at the head of data and returns
// its length through the end-of-image marker. It returns 0 when data ends
// first and -1 when the segments do not parse.
func jpegLength(data []byte) int {
	i := len(jpegSOI)
	for {
		for i+1 < len(data) && data[i] == 0xFF && data[i+1] == 0xFF {
			i++
		}
		if i+1 >= len(data) {
			return 0
		}
		if data[i] != 0xFF {
			return -1
		}
		marker := data[i+1]
		switch {
		case marker == 0xD9:
			return i + 2
		case marker == 0xD8:
			return -1
		case marker == 0x01, marker >= 0xD0 && marker <= 0xD7:
			i += 2
			continue
		}

		if i+3 >= len(data) {
			return 0
		}
		size := int(data[i+2])<<8 | int(data[i+3])
		if size < 2 {
			return -1
		}
		i += 2 + size
		if marker != 0xDA {
			continue
		}

		// entropy-coded data: 0xFF is only ever followed by a stuffed zero,
		// a restart marker or fill, until the next real marker
		for {
			if i+1 >= len(data) {
				return 0
			}
			next := data[i+1]
			if data[i] == 0xFF && next != 0x00 && next != 0xFF && (next < 0xD0 || next > 0xD7) {
				break
			}
			i++
		}
	}
}

// MJPEG reads concatenated JPEG frames, e.g. ffmpeg -f image2pipe output.
type MJPEG struct {
	r       io.Reader
	scanner *bufio.Scanner
	log     logger.Logger
}

func NewMJPEG(r io.Reader) *MJPEG {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(SplitJpeg)
	return &MJPEG{r: r, scanner: scanner, log: logger.Named("source.mjpeg")}
}

// Next returns the next decodable frame. Corrupt frames are skipped.
func (m *MJPEG) Next(ctx context.Context) (image.Image, error) {
	for m.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := imagefile.Decode(m.scanner.Bytes())
		if err != nil {
			m.log.Warn(ctx, "skipping undecodable frame", logger.Error(err))
			continue
		}
		return img, nil
	}
	if err := m.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read mjpeg stream: %w", err)
	}
	return nil, io.EOF
}

// Close closes the underlying reader when it is an io.Closer.
func (m *MJPEG) Close() error {
	if c, ok := m.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
