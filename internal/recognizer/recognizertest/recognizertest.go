// Package recognizertest provides deterministic stand-ins for the person
// detector and face model, driven by pixel colors instead of neural nets.
package recognizertest

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/amirhossein5/rollcall/internal/recognizer"
)

// Detector returns a fixed set of boxes for every image.
type Detector struct {
	mu    sync.Mutex
	Boxes []image.Rectangle
	Err   error
	calls int
}

func (d *Detector) DetectPersons(img image.Image) ([]image.Rectangle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]image.Rectangle(nil), d.Boxes...), nil
}

func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// ColorFaces reads a face embedding off the pixel at the middle of the face
// box: the color channels scaled to [0,1]. Black means there is no face.
type ColorFaces struct {
	mu sync.Mutex
	// NoLocate makes Faces come back empty so callers fall back to the
	// default search in Embed.
	NoLocate bool
	// Err fails every call whose middle pixel is ErrColor.
	Err      error
	ErrColor color.RGBA

	locateCalls  int
	defaultCalls int
}

func (f *ColorFaces) Faces(img image.Image, upsample int) ([]recognizer.Face, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locateCalls++
	if err := f.failOn(img, img.Bounds()); err != nil {
		return nil, err
	}
	c := middle(img, img.Bounds())
	if f.NoLocate || isBlack(c) {
		return nil, nil
	}
	return []recognizer.Face{{Rect: img.Bounds(), Embedding: Embedding(c)}}, nil
}

func (f *ColorFaces) Embed(img image.Image, faces []image.Rectangle) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if faces == nil {
		f.defaultCalls++
		faces = []image.Rectangle{img.Bounds()}
	}
	var out [][]float64
	for _, r := range faces {
		if err := f.failOn(img, r); err != nil {
			return nil, err
		}
		c := middle(img, r)
		if isBlack(c) {
			continue
		}
		out = append(out, Embedding(c))
	}
	return out, nil
}

// Calls reports how often Faces and the default Embed search ran.
func (f *ColorFaces) Calls() (locate, fallback int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locateCalls, f.defaultCalls
}

func (f *ColorFaces) failOn(img image.Image, r image.Rectangle) error {
	if f.Err != nil && middle(img, r) == f.ErrColor {
		return f.Err
	}
	return nil
}

// Embedding is the vector ColorFaces reports for a face painted c.
func Embedding(c color.RGBA) []float64 {
	return []float64{float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255}
}

// Paint fills r on dst with c.
func Paint(dst draw.Image, r image.Rectangle, c color.RGBA) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func middle(img image.Image, r image.Rectangle) color.RGBA {
	p := image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
	return color.RGBAModel.Convert(img.At(p.X, p.Y)).(color.RGBA)
}

func isBlack(c color.RGBA) bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}
