// Package pipeline identifies enrolled people in a single still image.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/amirhossein5/rollcall/internal/annotate"
	"github.com/amirhossein5/rollcall/internal/attendance"
	"github.com/amirhossein5/rollcall/internal/imagefile"
	"github.com/amirhossein5/rollcall/internal/matcher"
	"github.com/amirhossein5/rollcall/internal/region"
	"github.com/amirhossein5/rollcall/internal/store"
	"github.com/amirhossein5/rollcall/pkg/logger"
)

var (
	ErrImageLoad        = errors.New("could not load image")
	ErrEmptyRoster      = errors.New("no registered students found, please register students first")
	ErrDetectionFailure = errors.New("person detection failed")
	// ErrNoFace is never returned; regions without a face are skipped.
	ErrNoFace = errors.New("no face in region")
)

const noneIdentified = "No registered students identified in the photo."

// Roster is the read side of the enrollment store.
type Roster interface {
	All() []store.Identity
}

// Options are the still-photo defaults: wide padding and an upsampled face
// search to catch larger and smaller faces alike.
type Options struct {
	MaxWidth int
	Padding  int
	Upsample int
	Workers  int
}

func DefaultOptions() Options {
	return Options{MaxWidth: 1920, Padding: 20, Upsample: 2, Workers: 1}
}

// Status tags a successful run.
type Status int

const (
	NoneIdentified Status = iota
	Identified
)

// Result is the outcome of one run. Present holds only this image's matches.
type Result struct {
	Status     Status
	Message    string
	Present    *attendance.PresentSet
	Annotated  *image.RGBA
	Overlays   []annotate.Overlay
	Detections int
	// Scale is the downscale factor applied before detection.
	Scale float64
}

// Pipeline is the photo path: detect, crop, search, match, annotate.
type Pipeline struct {
	ident  *Identifier
	roster Roster
	opts   Options
	log    logger.Logger
	now    func() time.Time
}

func New(ident *Identifier, roster Roster, opts Options) *Pipeline {
	return &Pipeline{
		ident:  ident,
		roster: roster,
		opts:   opts,
		log:    logger.Named("pipeline"),
		now:    time.Now,
	}
}

// RunFile decodes path and runs the pipeline on it.
func (p *Pipeline) RunFile(ctx context.Context, path string) (Result, error) {
	p.log.Info(ctx, "processing group photo", logger.String("path", path))
	img, err := imagefile.Load(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	return p.Run(ctx, img)
}

// Run identifies everyone in img. It checks the roster before detection so an
// empty store never pays for inference.
func (p *Pipeline) Run(ctx context.Context, img image.Image) (Result, error) {
	if img == nil || img.Bounds().Empty() {
		return Result{}, ErrImageLoad
	}
	roster := p.roster.All()
	if len(roster) == 0 {
		return Result{}, ErrEmptyRoster
	}

	work, scale := region.Downscale(img, p.opts.MaxWidth)
	boxes, err := p.ident.Detect(work)
	if err != nil {
		return Result{}, err
	}
	p.log.Info(ctx, "detected people", logger.Int("count", len(boxes)))

	findings := p.ident.IdentifyRegions(ctx, work, boxes, roster, RegionOptions{
		Padding:  p.opts.Padding,
		Upsample: p.opts.Upsample,
		Workers:  p.opts.Workers,
	})

	res := Result{
		Present:    attendance.NewPresentSet(),
		Annotated:  region.Clone(work),
		Detections: len(boxes),
		Scale:      scale,
	}
	at := p.now()
	for _, f := range findings {
		if f.Skipped {
			continue
		}
		res.Overlays = append(res.Overlays, PhotoOverlay(f))

		d := f.Decision
		if f.FaceFound && d.Status == matcher.Matched {
			if res.Present.Record(attendance.Sighting{RollNo: d.RollNo, Name: d.Name, Distance: d.Distance, Confidence: d.Confidence, At: at}) {
				p.log.Info(ctx, "match",
					logger.String("roll_no", d.RollNo),
					logger.String("name", d.Name),
					logger.Float64("distance", d.Distance),
					logger.Float64("confidence", d.Confidence))
			}
		}
	}
	annotate.Draw(res.Annotated, res.Overlays)

	if res.Present.Len() == 0 {
		res.Status = NoneIdentified
		res.Message = noneIdentified
	} else {
		res.Status = Identified
		res.Message = fmt.Sprintf("Identified %d of %d registered students.", res.Present.Len(), len(roster))
	}
	return res, nil
}

// PhotoOverlay colors a finding: green for a match, red for an unrecognized
// face, grey when no face or an error left it undecided.
func PhotoOverlay(f Finding) annotate.Overlay {
	switch {
	case f.Err != nil || !f.FaceFound:
		return annotate.Overlay{Rect: f.Box, Color: annotate.Grey}
	case f.Decision.Status == matcher.Matched:
		return annotate.Overlay{Rect: f.Box, Color: annotate.Green, Label: f.Decision.Label()}
	default:
		return annotate.Overlay{Rect: f.Box, Color: annotate.Red, Label: "Unknown"}
	}
}
