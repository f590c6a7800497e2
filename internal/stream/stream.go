// Package stream publishes the latest annotated frame as an MJPEG stream.
package stream

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/amirhossein5/rollcall/internal/imagefile"
)

const boundary = "\r\n--frame\r\nContent-Type: image/jpeg\r\n\r\n"

// Broadcaster holds the most recent JPEG frame and hands it to any number of
// HTTP viewers.
type Broadcaster struct {
	mu       sync.RWMutex
	frame    []byte
	seq      uint64
	changed  chan struct{}
	interval time.Duration
}

// NewBroadcaster returns a Broadcaster that sends each viewer at most one
// frame per interval. Zero sends every frame.
func NewBroadcaster(interval time.Duration) *Broadcaster {
	return &Broadcaster{changed: make(chan struct{}), interval: interval}
}

// UpdateImage replaces the current frame with buf, which must be a JPEG.
func (b *Broadcaster) UpdateImage(buf []byte) {
	frame := append([]byte(nil), buf...)

	b.mu.Lock()
	b.frame = frame
	b.seq++
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()
}

// Render encodes img and publishes it.
func (b *Broadcaster) Render(img image.Image) error {
	buf, err := imagefile.EncodeJPEG(img)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	b.UpdateImage(buf)
	return nil
}

// Latest returns the current frame and its sequence number; nil before the
// first update.
func (b *Broadcaster) Latest() ([]byte, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frame, b.seq
}

// Next blocks until a frame newer than after is available.
func (b *Broadcaster) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		b.mu.RLock()
		frame, seq, changed := b.frame, b.seq, b.changed
		b.mu.RUnlock()
		if seq > after {
			return frame, seq, nil
		}
		select {
		case <-ctx.Done():
			return nil, after, ctx.Err()
		case <-changed:
		}
	}
}

// ServeHTTP streams frames as multipart/x-mixed-replace until the viewer
// goes away.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	flusher, _ := w.(http.Flusher)

	var seq uint64
	for {
		frame, next, err := b.Next(r.Context(), seq)
		if err != nil {
			return
		}
		seq = next

		n, err := io.WriteString(w, boundary)
		if err != nil || n != len(boundary) {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		n, err = io.WriteString(w, "\r\n")
		if err != nil || n != 2 {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}

		if b.interval > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(b.interval):
			}
		}
	}
}
