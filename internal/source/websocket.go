package source

import (
	"context"
	"errors"
	"image"
	"io"
	"strings"
	"sync"

	"github.com/amirhossein5/rollcall/internal/attendance"
	"github.com/amirhossein5/rollcall/internal/imagefile"
	"github.com/amirhossein5/rollcall/pkg/logger"
	"golang.org/x/net/websocket"
)

// ArrivalSound is sent to every browser when someone new is marked present.
const ArrivalSound = "play-sound:success"

var commandWords = map[string]bool{"capture": true, "snapshot": true, "s": true, "stop": true, "quit": true, "q": true}

// Websocket receives JPEG frames and text commands from browser cameras.
// Only the newest frame is kept; slow inference drops stale frames.
type Websocket struct {
	frames   chan []byte
	commands chan string
	closed   chan struct{}
	once     sync.Once

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	log   logger.Logger
}

func NewWebsocket() *Websocket {
	return &Websocket{
		frames:   make(chan []byte, 1),
		commands: make(chan string, 8),
		closed:   make(chan struct{}),
		conns:    make(map[*websocket.Conn]struct{}),
		log:      logger.Named("source.websocket"),
	}
}

// Handler serves one browser connection until it disconnects.
func (w *Websocket) Handler() websocket.Handler {
	return func(ws *websocket.Conn) {
		ctx := ws.Request().Context()
		w.mu.Lock()
		w.conns[ws] = struct{}{}
		w.mu.Unlock()
		defer func() {
			w.mu.Lock()
			delete(w.conns, ws)
			w.mu.Unlock()
			ws.Close()
		}()

		for {
			var buf string
			err := websocket.Message.Receive(ws, &buf)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					w.log.Warn(ctx, "failed to read websocket data", logger.Error(err))
				}
				return
			}
			if word := strings.ToLower(strings.TrimSpace(buf)); commandWords[word] {
				select {
				case w.commands <- word:
				default:
					w.log.Warn(ctx, "command queue full, dropping", logger.String("command", word))
				}
				continue
			}
			w.push([]byte(buf))
		}
	}
}

func (w *Websocket) push(frame []byte) {
	for {
		select {
		case w.frames <- frame:
			return
		default:
		}
		select {
		case <-w.frames:
		default:
		}
	}
}

// Next blocks until a browser sends a decodable frame. It returns io.EOF
// once Close was called.
func (w *Websocket) Next(ctx context.Context) (image.Image, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-w.closed:
			return nil, io.EOF
		case buf := <-w.frames:
			img, err := imagefile.Decode(buf)
			if err != nil {
				w.log.Warn(ctx, "skipping undecodable frame", logger.Error(err))
				continue
			}
			return img, nil
		}
	}
}

// Commands yields the command words browsers send.
func (w *Websocket) Commands() <-chan string { return w.commands }

// Notify sends msg to every connected browser.
func (w *Websocket) Notify(ctx context.Context, msg string) {
	w.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(w.conns))
	for c := range w.conns {
		conns = append(conns, c)
	}
	w.mu.Unlock()

	for _, c := range conns {
		if err := websocket.Message.Send(c, msg); err != nil {
			w.log.Warn(ctx, "websocket send failed", logger.Error(err))
		}
	}
}

// Arrived plays the arrival sound in every browser.
func (w *Websocket) Arrived(ctx context.Context, s attendance.Sighting) {
	w.Notify(ctx, ArrivalSound)
}

// Clients reports how many browsers are connected.
func (w *Websocket) Clients() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.conns)
}

func (w *Websocket) Close() error {
	w.once.Do(func() { close(w.closed) })
	return nil
}
