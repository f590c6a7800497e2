package live_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/amirhossein5/rollcall/internal/annotate"
	"github.com/amirhossein5/rollcall/internal/attendance"
	"github.com/amirhossein5/rollcall/internal/live"
	"github.com/amirhossein5/rollcall/internal/matcher"
	"github.com/amirhossein5/rollcall/internal/pipeline"
	"github.com/amirhossein5/rollcall/internal/recognizer/recognizertest"
	"github.com/amirhossein5/rollcall/internal/store"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	red      = color.RGBA{R: 255, A: 255}
	green    = color.RGBA{G: 255, A: 255}
	aliceBox = image.Rect(10, 10, 40, 45) // in half-scale coordinates
)

type frames struct {
	img     image.Image
	total   int
	n       int
	onFrame func(n int)
}

func (f *frames) Next(ctx context.Context) (image.Image, error) {
	if f.n >= f.total {
		return nil, io.EOF
	}
	f.n++
	if f.onFrame != nil {
		f.onFrame(f.n)
	}
	return f.img, nil
}

type recorder struct {
	mu     sync.Mutex
	frames []live.Frame
}

func (r *recorder) Render(f live.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

// streamed returns the regular per-frame renders, skipping capture banners.
func (r *recorder) streamed() []live.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []live.Frame
	for _, f := range r.frames {
		if f.State == live.Streaming {
			out = append(out, f)
		}
	}
	return out
}

type arrivals struct {
	mu    sync.Mutex
	rolls []string
}

func (a *arrivals) Arrived(ctx context.Context, s attendance.Sighting) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rolls = append(a.rolls, s.RollNo)
}

type fixture struct {
	ctrl      *live.Controller
	detector  *recognizertest.Detector
	rendered  *recorder
	notified  *arrivals
	reportDir string
	snapDir   string
	img       *image.RGBA
}

func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	s := store.NewMemory()
	So(s.Upsert(ctx, "101", "Alice", recognizertest.Embedding(red), ""), ShouldBeNil)
	So(s.Upsert(ctx, "102", "Bob", recognizertest.Embedding(green), ""), ShouldBeNil)

	m, err := matcher.New(matcher.DefaultConfig())
	So(err, ShouldBeNil)

	dir := t.TempDir()
	f := &fixture{
		detector:  &recognizertest.Detector{Boxes: []image.Rectangle{aliceBox}},
		rendered:  &recorder{},
		notified:  &arrivals{},
		reportDir: filepath.Join(dir, "reports"),
		snapDir:   filepath.Join(dir, "snapshots"),
		img:       image.NewRGBA(image.Rect(0, 0, 200, 100)),
	}
	recognizertest.Paint(f.img, image.Rect(20, 20, 80, 90), red)

	photoIdent := pipeline.NewIdentifier(f.detector, &recognizertest.ColorFaces{}, m, nil)
	opts := live.DefaultOptions()
	opts.SnapshotDir = f.snapDir

	f.ctrl = live.New(live.Deps{
		Identifier: photoIdent.WithMatcher(m.WithPrecision(1)),
		Photo:      pipeline.New(photoIdent, s, pipeline.DefaultOptions()),
		Roster:     s,
		Publisher:  attendance.NewPublisher(f.reportDir, ""),
		Renderer:   f.rendered,
		Notifier:   f.notified,
	}, opts)
	return f
}

func reports(dir, prefix string) []string {
	matches, _ := filepath.Glob(filepath.Join(dir, prefix+"_*.txt"))
	var out []string
	for _, m := range matches {
		// Attendance_* also matches Attendance_Live_*
		if prefix == attendance.PhotoPrefix && strings.HasPrefix(filepath.Base(m), attendance.LivePrefix+"_") {
			continue
		}
		out = append(out, m)
	}
	return out
}

func TestCadenceAndStaleCache(t *testing.T) {
	Convey("Given Alice stands in front of the camera for nine frames", t, func() {
		f := newFixture(t)
		sum, err := f.ctrl.Run(context.Background(), &frames{img: f.img, total: 9})
		So(err, ShouldBeNil)

		Convey("Then inference ran once, on frame five", func() {
			So(f.detector.Calls(), ShouldEqual, 1)
			So(sum.Frames, ShouldEqual, 9)
		})

		Convey("And frames one to five render no overlays", func() {
			got := f.rendered.streamed()
			So(len(got), ShouldEqual, 9)
			for _, fr := range got[:5] {
				So(fr.Overlays, ShouldBeEmpty)
			}
		})

		Convey("And frames six to nine render the frame-five detections at full scale", func() {
			for _, fr := range f.rendered.streamed()[5:] {
				So(len(fr.Overlays), ShouldEqual, 1)
				So(fr.Overlays[0].Rect, ShouldResemble, image.Rect(20, 20, 80, 90))
				So(fr.Overlays[0].Color, ShouldResemble, annotate.Green)
				So(strings.HasPrefix(fr.Overlays[0].Label, "Alice "), ShouldBeTrue)
			}
		})

		Convey("And the session report lists Alice present and Bob absent", func() {
			So(len(sum.Present), ShouldEqual, 1)
			So(sum.Present[0].RollNo, ShouldEqual, "101")
			So(filepath.Base(sum.Report), ShouldStartWith, "Attendance_Live_")

			body, err := os.ReadFile(sum.Report)
			So(err, ShouldBeNil)
			So(string(body), ShouldStartWith, "Live Session Attendance Report\n")
			So(string(body), ShouldContainSubstring, "Present: 1\nAbsent: 1\n")
		})

		Convey("And the controller is idle again", func() {
			So(f.ctrl.State(), ShouldEqual, live.Idle)
		})
	})

	Convey("A person seen on several inference frames is announced once", t, func() {
		f := newFixture(t)
		_, err := f.ctrl.Run(context.Background(), &frames{img: f.img, total: 15})
		So(err, ShouldBeNil)
		So(f.detector.Calls(), ShouldEqual, 3)
		So(f.notified.rolls, ShouldResemble, []string{"101"})
	})
}

func TestCommands(t *testing.T) {
	Convey("Given a running session", t, func() {
		f := newFixture(t)
		ctx := context.Background()

		Convey("When capture is pressed on frame five", func() {
			src := &frames{img: f.img, total: 7, onFrame: func(n int) {
				if n == 5 {
					So(f.ctrl.Send(live.Capture), ShouldBeTrue)
				}
			}}
			sum, err := f.ctrl.Run(ctx, src)
			So(err, ShouldBeNil)

			Convey("Then the snapshot replaces that frame's cadence inference", func() {
				So(sum.Captures, ShouldEqual, 1)
				So(f.detector.Calls(), ShouldEqual, 1)
				for _, fr := range f.rendered.streamed() {
					So(fr.Overlays, ShouldBeEmpty)
				}
			})

			Convey("And the raw frame and a capture report are written", func() {
				snaps, _ := filepath.Glob(filepath.Join(f.snapDir, "snapshot_*.jpg"))
				So(len(snaps), ShouldEqual, 1)
				So(len(reports(f.reportDir, attendance.PhotoPrefix)), ShouldEqual, 1)
			})

			Convey("And the capture's matches join the session", func() {
				So(len(sum.Present), ShouldEqual, 1)
				So(f.notified.rolls, ShouldResemble, []string{"101"})
				So(len(reports(f.reportDir, attendance.LivePrefix)), ShouldEqual, 1)
			})
		})

		Convey("When capture is pressed on two frames in a row", func() {
			src := &frames{img: f.img, total: 3, onFrame: func(n int) {
				if n <= 2 {
					So(f.ctrl.Send(live.Capture), ShouldBeTrue)
				}
			}}
			sum, err := f.ctrl.Run(ctx, src)
			So(err, ShouldBeNil)

			Convey("Then each capture keeps its own snapshot", func() {
				So(sum.Captures, ShouldEqual, 2)
				snaps, _ := filepath.Glob(filepath.Join(f.snapDir, "snapshot_*.jpg"))
				So(len(snaps), ShouldEqual, 2)
			})
		})

		Convey("When stop is pressed on frame three", func() {
			src := &frames{img: f.img, total: 20, onFrame: func(n int) {
				if n == 3 {
					f.ctrl.Send(live.Stop)
				}
			}}
			sum, err := f.ctrl.Run(ctx, src)

			Convey("Then the session ends without a report", func() {
				So(err, ShouldBeNil)
				So(sum.Frames, ShouldEqual, 3)
				So(sum.Report, ShouldEqual, "")
				So(f.detector.Calls(), ShouldEqual, 0)
				So(reports(f.reportDir, attendance.LivePrefix), ShouldBeEmpty)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			defer cancel()
			src := &frames{img: f.img, total: 20, onFrame: func(n int) {
				if n == 2 {
					cancel()
				}
			}}
			sum, err := f.ctrl.Run(cctx, src)

			Convey("Then the loop stops between iterations", func() {
				So(err, ShouldBeNil)
				So(sum.Frames, ShouldEqual, 2)
			})
		})

		Convey("When a second session is started while one runs", func() {
			var nested error
			src := &frames{img: f.img, total: 2, onFrame: func(n int) {
				if n == 1 {
					_, nested = f.ctrl.Run(ctx, &frames{img: f.img, total: 1})
				}
			}}
			_, err := f.ctrl.Run(ctx, src)

			Convey("Then it is refused", func() {
				So(err, ShouldBeNil)
				So(errors.Is(nested, live.ErrRunning), ShouldBeTrue)
			})
		})

		Convey("Commands sent while idle are dropped", func() {
			So(f.ctrl.Send(live.Capture), ShouldBeFalse)
			So(f.ctrl.Status().State, ShouldEqual, "idle")
		})
	})
}

func TestFrameSourceFailure(t *testing.T) {
	Convey("A frame source error ends the session and still writes the report", t, func() {
		f := newFixture(t)
		src := &failingAfter{frames: frames{img: f.img, total: 6}}
		sum, err := f.ctrl.Run(context.Background(), src)

		So(err, ShouldNotBeNil)
		So(sum.Frames, ShouldEqual, 6)
		So(sum.Report, ShouldNotEqual, "")
	})
}

type failingAfter struct{ frames }

func (f *failingAfter) Next(ctx context.Context) (image.Image, error) {
	img, err := f.frames.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil, errors.New("camera unplugged")
	}
	return img, err
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want live.Command
		err  bool
	}{
		{"capture", live.Capture, false},
		{" S ", live.Capture, false},
		{"stop", live.Stop, false},
		{"q", live.Stop, false},
		{"dance", 0, true},
	}
	for _, tt := range tests {
		got, err := live.ParseCommand(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseCommand(%q) = %v, %v; want %v, err=%v", tt.in, got, err, tt.want, tt.err)
		}
	}
}
