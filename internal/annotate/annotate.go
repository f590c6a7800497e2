// Package annotate draws detection boxes and labels onto frames.
package annotate

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	Green = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	Red   = color.RGBA{R: 220, G: 0, B: 0, A: 255}
	Blue  = color.RGBA{R: 0, G: 90, B: 255, A: 255}
	Grey  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Overlay is one box to draw, in full-frame coordinates.
type Overlay struct {
	Rect  image.Rectangle
	Color color.RGBA
	Label string
}

const thickness = 2

// Draw renders every overlay onto dst.
func Draw(dst draw.Image, overlays []Overlay) {
	for _, o := range overlays {
		Rect(dst, o.Rect, o.Color)
		if o.Label != "" {
			Text(dst, image.Pt(o.Rect.Min.X, o.Rect.Min.Y-10), o.Label, o.Color)
		}
	}
}

// Rect draws an unfilled rectangle clipped to dst.
func Rect(dst draw.Image, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		e = e.Intersect(dst.Bounds())
		if !e.Empty() {
			draw.Draw(dst, e, src, image.Point{}, draw.Src)
		}
	}
}

// Text writes s with its baseline at pt. Labels pushed above the frame are
// moved just inside it.
func Text(dst draw.Image, pt image.Point, s string, c color.Color) {
	face := basicfont.Face7x13
	if top := dst.Bounds().Min.Y + face.Ascent; pt.Y < top {
		pt.Y = top
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(pt.X, pt.Y),
	}
	d.DrawString(s)
}
