// Package region turns detector boxes into padded crops and moves boxes between
// a downscaled working copy and the full frame.
package region

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Box is a detector box together with the size of the frame it came from.
type Box struct {
	Rect  image.Rectangle
	Frame image.Point
}

// Extract grows box by pad pixels on every side and clamps it to frame. It
// returns false when nothing of the box is left, in which case the caller must
// skip the detection.
func Extract(box, frame image.Rectangle, pad int) (image.Rectangle, bool) {
	if pad < 0 {
		pad = 0
	}
	r := box.Canon().Inset(-pad).Intersect(frame)
	if r.Empty() {
		return image.Rectangle{}, false
	}
	return r, true
}

// Scale multiplies every coordinate by f, truncating toward zero.
func Scale(r image.Rectangle, f float64) image.Rectangle {
	return image.Rect(
		int(float64(r.Min.X)*f),
		int(float64(r.Min.Y)*f),
		int(float64(r.Max.X)*f),
		int(float64(r.Max.Y)*f),
	)
}

// Crop copies r out of img into a new image whose origin is (0,0).
func Crop(img image.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Clone returns an RGBA copy of img with the same bounds, safe to draw on.
func Clone(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// Downscale shrinks img so it is at most maxWidth wide, keeping the aspect
// ratio. It returns the factor applied (1 when untouched).
func Downscale(img image.Image, maxWidth int) (image.Image, float64) {
	w := img.Bounds().Dx()
	if maxWidth <= 0 || w <= maxWidth {
		return img, 1
	}
	f := float64(maxWidth) / float64(w)
	return Resize(img, f), f
}

// Resize scales img by f with bilinear filtering.
func Resize(img image.Image, f float64) *image.RGBA {
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*f))
	h := max(1, int(float64(b.Dy())*f))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// IoU is the intersection over union of a and b.
func IoU(a, b image.Rectangle) float64 {
	in := a.Intersect(b)
	if in.Empty() {
		return 0
	}
	inter := float64(in.Dx() * in.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Uniform returns a w×h image filled with c, handy for tests and placeholders.
func Uniform(w, h int, c color.Color) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return dst
}
