package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/amirhossein5/rollcall/internal/matcher"
	"github.com/amirhossein5/rollcall/internal/recognizer"
	"github.com/amirhossein5/rollcall/internal/region"
	"github.com/amirhossein5/rollcall/internal/store"
	"github.com/amirhossein5/rollcall/pkg/logger"
	"github.com/amirhossein5/rollcall/pkg/metrics"
)

// Finding is the outcome for one detector box.
type Finding struct {
	// Detection is the box as the detector reported it.
	Detection image.Rectangle
	// Box is the padded, clamped region that was searched.
	Box image.Rectangle
	// Skipped is set when the padded region had no area.
	Skipped bool
	// FaceFound is false when neither face search found anything.
	FaceFound bool
	Decision  matcher.Decision
	// Err is a per-detection failure; it never aborts the image.
	Err error
}

// RegionOptions tunes one IdentifyRegions pass.
type RegionOptions struct {
	Padding int
	// Upsample > 0 runs an upsampled Faces search before falling back to
	// the model's default search; 0 goes straight to the default search.
	Upsample int
	Workers  int
}

// Identifier runs person detection and per-region face matching. Photo and
// live paths share it so they make identical decisions.
type Identifier struct {
	detector recognizer.PersonDetector
	faces    recognizer.FaceModel
	matcher  *matcher.Matcher
	metrics  *metrics.Manager
	log      logger.Logger
}

func NewIdentifier(det recognizer.PersonDetector, faces recognizer.FaceModel, m *matcher.Matcher, mm *metrics.Manager) *Identifier {
	if mm == nil {
		mm = metrics.Nop()
	}
	return &Identifier{
		detector: det,
		faces:    faces,
		matcher:  m,
		metrics:  mm,
		log:      logger.Named("identify"),
	}
}

// WithMatcher returns an Identifier sharing the models but using m.
func (id *Identifier) WithMatcher(m *matcher.Matcher) *Identifier {
	cp := *id
	cp.matcher = m
	return &cp
}

// Detect runs the person detector once over img.
func (id *Identifier) Detect(img image.Image) ([]image.Rectangle, error) {
	start := time.Now()
	boxes, err := id.detector.DetectPersons(img)
	id.metrics.ObserveInference("detect", start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectionFailure, err)
	}
	return boxes, nil
}

// IdentifyRegions searches every box for a face and matches it against
// roster. Findings come back in box order whatever the worker count.
func (id *Identifier) IdentifyRegions(ctx context.Context, img image.Image, boxes []image.Rectangle, roster []store.Identity, opts RegionOptions) []Finding {
	findings := make([]Finding, len(boxes))
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(boxes) {
		workers = len(boxes)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				findings[i] = id.identify(ctx, img, boxes[i], roster, opts)
			}
		}()
	}
	for i := range boxes {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, f := range findings {
		id.logFinding(ctx, i, f)
	}
	return findings
}

func (id *Identifier) identify(ctx context.Context, img image.Image, box image.Rectangle, roster []store.Identity, opts RegionOptions) (f Finding) {
	defer func() {
		// a collaborator panic costs this detection only
		if r := recover(); r != nil {
			f.Err = fmt.Errorf("face search panicked: %v", r)
		}
	}()

	f.Detection = box
	r, ok := region.Extract(box, img.Bounds(), opts.Padding)
	if !ok {
		f.Skipped = true
		return f
	}
	f.Box = r

	probe, err := id.embed(region.Crop(img, r), opts.Upsample)
	if err != nil {
		f.Err = err
		return f
	}
	if probe == nil {
		return f
	}

	f.FaceFound = true
	f.Decision = id.matcher.Match(probe, roster)
	id.metrics.ObserveMatch(f.Decision.Status.String())
	return f
}

// embed returns the first face embedding found in crop, or nil. Location and
// embedding come from one Faces call so concurrent workers never share a
// search.
func (id *Identifier) embed(crop image.Image, upsample int) ([]float64, error) {
	start := time.Now()
	defer id.metrics.ObserveInference("faces", start)

	if upsample > 0 {
		faces, err := id.faces.Faces(crop, upsample)
		if err != nil {
			return nil, fmt.Errorf("locate faces: %w", err)
		}
		if len(faces) > 0 && len(faces[0].Embedding) > 0 {
			return faces[0].Embedding, nil
		}
	}

	// the person box may have clipped the face, let the model look itself
	embeddings, err := id.faces.Embed(crop, nil)
	if err != nil {
		return nil, fmt.Errorf("embed faces: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, nil
	}
	return embeddings[0], nil
}

func (id *Identifier) logFinding(ctx context.Context, i int, f Finding) {
	switch {
	case f.Err != nil:
		id.metrics.IncRegionErrors()
		id.log.Warn(ctx, "error processing person", logger.Int("person", i), logger.Error(f.Err))
	case f.Skipped:
		id.log.Debug(ctx, "empty region after clamping", logger.Int("person", i))
	case !f.FaceFound:
		id.log.Debug(ctx, ErrNoFace.Error(), logger.Int("person", i))
	case f.Decision.Status == matcher.NearMiss:
		id.log.Info(ctx, "ignored near miss, too unsure",
			logger.String("candidate", f.Decision.Name),
			logger.Float64("distance", f.Decision.Distance),
			logger.Float64("threshold", id.matcher.Config().MatchThreshold))
	}
}
