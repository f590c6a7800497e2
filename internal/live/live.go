// Package live runs an attendance session over a stream of frames: cadenced
// inference, a stale-overlay cache for smooth rendering, and synchronous
// snapshot captures.
package live

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/amirhossein5/rollcall/internal/annotate"
	"github.com/amirhossein5/rollcall/internal/attendance"
	"github.com/amirhossein5/rollcall/internal/matcher"
	"github.com/amirhossein5/rollcall/internal/pipeline"
	"github.com/amirhossein5/rollcall/internal/region"
	"github.com/amirhossein5/rollcall/pkg/logger"
	"github.com/amirhossein5/rollcall/pkg/metrics"
	"github.com/google/uuid"
)

var (
	ErrRunning        = errors.New("a live session is already running")
	ErrUnknownCommand = errors.New("unknown command")
)

type State int

const (
	Idle State = iota
	Streaming
	Capturing
)

func (s State) String() string {
	switch s {
	case Streaming:
		return "streaming"
	case Capturing:
		return "capturing"
	default:
		return "idle"
	}
}

type Command int

const (
	Capture Command = iota + 1
	Stop
)

func (c Command) String() string {
	switch c {
	case Capture:
		return "capture"
	case Stop:
		return "stop"
	default:
		return "none"
	}
}

// ParseCommand accepts the command names and the single-key shortcuts s and q.
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "capture", "snapshot", "s":
		return Capture, nil
	case "stop", "quit", "q":
		return Stop, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// FrameSource yields frames until it returns io.EOF.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
}

// Frame is what the controller hands to its Renderer every iteration.
type Frame struct {
	Seq      int
	State    State
	Image    *image.RGBA
	Overlays []annotate.Overlay
}

type Renderer interface {
	Render(f Frame) error
}

type RenderFunc func(f Frame) error

func (fn RenderFunc) Render(f Frame) error { return fn(f) }

// Notifier hears about people the session sees for the first time.
type Notifier interface {
	Arrived(ctx context.Context, s attendance.Sighting)
}

const Banner = "Commands: 's' (Snapshot) | 'q' (Quit)"

type Options struct {
	// Cadence runs inference on every Cadence-th frame.
	Cadence  int
	Scale    float64
	Padding  int
	Upsample int
	Workers  int
	// SnapshotDir receives the raw frame of every capture; empty skips it.
	SnapshotDir string
	// DebugImage receives the annotated capture; empty skips it.
	DebugImage string
}

func DefaultOptions() Options {
	return Options{Cadence: 5, Scale: 0.5, Padding: 5, Upsample: 0, Workers: 1}
}

// Summary describes a finished session.
type Summary struct {
	SessionID string
	Frames    int
	Captures  int
	Present   []attendance.Sighting
	// Report is the session report path, empty when nobody was seen.
	Report string
}

// Status is a point-in-time view of the controller.
type Status struct {
	SessionID string   `json:"session_id,omitempty"`
	State     string   `json:"state"`
	Frames    int      `json:"frames"`
	Present   []string `json:"present"`
}

type Controller struct {
	ident     *pipeline.Identifier
	photo     *pipeline.Pipeline
	roster    pipeline.Roster
	publisher *attendance.Publisher
	renderer  Renderer
	notifier  Notifier
	metrics   *metrics.Manager
	opts      Options
	log       logger.Logger
	commands  chan Command
	now       func() time.Time

	mu             sync.Mutex
	state          State
	sessionID      string
	session        *attendance.PresentSet
	lastDetections []annotate.Overlay
	frames         int
	captures       int
}

// Deps are the collaborators a Controller drives. Renderer, Notifier and
// Metrics are optional.
type Deps struct {
	Identifier *pipeline.Identifier
	Photo      *pipeline.Pipeline
	Roster     pipeline.Roster
	Publisher  *attendance.Publisher
	Renderer   Renderer
	Notifier   Notifier
	Metrics    *metrics.Manager
}

func New(d Deps, opts Options) *Controller {
	if opts.Cadence < 1 {
		opts.Cadence = 1
	}
	if opts.Scale <= 0 || opts.Scale > 1 {
		opts.Scale = 1
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop()
	}
	return &Controller{
		ident:     d.Identifier,
		photo:     d.Photo,
		roster:    d.Roster,
		publisher: d.Publisher,
		renderer:  d.Renderer,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		opts:      opts,
		log:       logger.Named("live"),
		commands:  make(chan Command, 8),
		now:       time.Now,
		session:   attendance.NewPresentSet(),
	}
}

// Send queues a command for the running session. It reports false when the
// controller is idle or the queue is full.
func (c *Controller) Send(cmd Command) bool {
	if c.State() == Idle {
		return false
	}
	select {
	case c.commands <- cmd:
		return true
	default:
		return false
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		SessionID: c.sessionID,
		State:     c.state.String(),
		Frames:    c.frames,
		Present:   c.session.RollNos(),
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run streams frames from src until it ends, ctx is cancelled or a Stop
// command arrives. The session report is written on the way out.
func (c *Controller) Run(ctx context.Context, src FrameSource) (Summary, error) {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return Summary{}, ErrRunning
	}
	c.state = Streaming
	c.sessionID = uuid.NewString()
	c.session = attendance.NewPresentSet()
	c.lastDetections = nil
	c.frames, c.captures = 0, 0
	c.mu.Unlock()
	c.drainCommands()

	if len(c.roster.All()) == 0 {
		c.log.Warn(ctx, "no registered students found")
	}
	c.log.Info(ctx, "live session started", logger.String("session", c.sessionID), logger.Int("cadence", c.opts.Cadence))

	err := c.loop(ctx, src)
	sum := c.finish(ctx)
	return sum, err
}

func (c *Controller) loop(ctx context.Context, src FrameSource) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		img, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to grab frame: %w", err)
		}
		if !c.step(ctx, img) {
			return nil
		}
	}
}

// step handles one frame and reports whether the session continues.
func (c *Controller) step(ctx context.Context, img image.Image) (more bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error(ctx, "frame iteration panicked", logger.Any("panic", r))
			c.setState(Streaming)
			more = true
		}
	}()

	c.mu.Lock()
	c.frames++
	seq := c.frames
	cached := c.lastDetections
	c.mu.Unlock()
	c.metrics.IncFrames()

	vis := region.Clone(img)
	annotate.Draw(vis, cached)
	annotate.Text(vis, image.Pt(vis.Rect.Min.X+10, vis.Rect.Min.Y+30), Banner, annotate.White)
	c.render(ctx, Frame{Seq: seq, State: Streaming, Image: vis, Overlays: cached})

	switch c.poll() {
	case Stop:
		c.log.Info(ctx, "stop requested")
		return false
	case Capture:
		c.setState(Capturing)
		annotate.Text(vis, image.Pt(vis.Rect.Min.X+50, vis.Rect.Min.Y+150), "SAVING snapshot...", annotate.Red)
		c.render(ctx, Frame{Seq: seq, State: Capturing, Image: vis, Overlays: cached})
		c.capture(ctx, img)
		c.setState(Streaming)
		return true
	}

	if seq%c.opts.Cadence == 0 {
		c.infer(ctx, img)
	}
	return true
}

func (c *Controller) poll() Command {
	select {
	case cmd := <-c.commands:
		return cmd
	default:
		return 0
	}
}

func (c *Controller) drainCommands() {
	for {
		select {
		case <-c.commands:
		default:
			return
		}
	}
}

func (c *Controller) render(ctx context.Context, f Frame) {
	if c.renderer == nil {
		return
	}
	if err := c.renderer.Render(f); err != nil {
		c.log.Warn(ctx, "render failed", logger.Error(err))
	}
}

// infer detects on a downscaled copy, matches every person and replaces the
// overlay cache. Boxes are mapped back to full-frame coordinates.
func (c *Controller) infer(ctx context.Context, img image.Image) {
	small := region.Resize(img, c.opts.Scale)
	boxes, err := c.ident.Detect(small)
	if err != nil {
		c.log.Warn(ctx, "inference error", logger.Error(err))
		return
	}

	findings := c.ident.IdentifyRegions(ctx, small, boxes, c.roster.All(), pipeline.RegionOptions{
		Padding:  c.opts.Padding,
		Upsample: c.opts.Upsample,
		Workers:  c.opts.Workers,
	})

	at := c.now()
	overlays := make([]annotate.Overlay, 0, len(findings))
	for _, f := range findings {
		overlays = append(overlays, c.liveOverlay(f, img.Bounds().Min))
		if f.FaceFound && f.Decision.Status == matcher.Matched {
			c.arrive(ctx, attendance.Sighting{
				RollNo:     f.Decision.RollNo,
				Name:       f.Decision.Name,
				Distance:   f.Decision.Distance,
				Confidence: f.Decision.Confidence,
				At:         at,
			})
		}
	}

	c.mu.Lock()
	c.lastDetections = overlays
	c.mu.Unlock()
}

func (c *Controller) liveOverlay(f pipeline.Finding, origin image.Point) annotate.Overlay {
	r := region.Scale(f.Detection, 1/c.opts.Scale).Add(origin)
	if f.FaceFound && f.Decision.Status == matcher.Matched {
		return annotate.Overlay{Rect: r, Color: annotate.Green, Label: f.Decision.Label()}
	}
	return annotate.Overlay{Rect: r, Color: annotate.Blue}
}

// arrive records s in the session; only the first sighting is announced.
func (c *Controller) arrive(ctx context.Context, s attendance.Sighting) {
	c.mu.Lock()
	added := c.session.Record(s)
	n := c.session.Len()
	c.mu.Unlock()
	if !added {
		return
	}
	c.metrics.SetPresent(n)
	c.log.Info(ctx, "live match", logger.String("roll_no", s.RollNo), logger.String("name", s.Name),
		logger.Float64("confidence", s.Confidence))
	if c.notifier != nil {
		c.notifier.Arrived(ctx, s)
	}
}

func (c *Controller) finish(ctx context.Context) Summary {
	c.mu.Lock()
	sum := Summary{
		SessionID: c.sessionID,
		Frames:    c.frames,
		Captures:  c.captures,
		Present:   c.session.Sightings(),
	}
	session := c.session
	c.state = Idle
	c.lastDetections = nil
	c.mu.Unlock()

	if session.Len() > 0 && c.publisher != nil {
		r := attendance.Reconcile(c.roster.All(), session, c.now())
		r.Title = attendance.LiveTitle
		path, err := c.publisher.Publish(ctx, r, attendance.LivePrefix)
		if err != nil {
			c.log.Error(ctx, "failed to save live session report", logger.Error(err))
		} else {
			sum.Report = path
		}
	}
	c.log.Info(ctx, "live session ended", logger.String("session", sum.SessionID), logger.Int("frames", sum.Frames),
		logger.Int("present", len(sum.Present)), logger.String("report", sum.Report))
	return sum
}
