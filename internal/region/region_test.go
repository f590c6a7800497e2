package region

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestExtract(t *testing.T) {
	frame := image.Rect(0, 0, 100, 80)
	tests := []struct {
		name   string
		box    image.Rectangle
		pad    int
		want   image.Rectangle
		wantOK bool
	}{
		{"interior", image.Rect(30, 30, 50, 50), 5, image.Rect(25, 25, 55, 55), true},
		{"clamped at origin", image.Rect(2, 3, 20, 20), 20, image.Rect(0, 0, 40, 40), true},
		{"clamped at far edge", image.Rect(90, 70, 100, 80), 20, image.Rect(70, 50, 100, 80), true},
		{"no padding", image.Rect(10, 10, 20, 20), 0, image.Rect(10, 10, 20, 20), true},
		{"negative padding is ignored", image.Rect(10, 10, 20, 20), -4, image.Rect(10, 10, 20, 20), true},
		{"inverted coordinates", image.Rect(50, 50, 30, 30), 0, image.Rect(30, 30, 50, 50), true},
		{"outside the frame", image.Rect(200, 200, 240, 240), 5, image.Rectangle{}, false},
		{"zero area", image.Rect(10, 10, 10, 10), 0, image.Rectangle{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.box, frame, tt.pad)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Extract(%v, pad %d) = %v, %v; want %v, %v", tt.box, tt.pad, got, ok, tt.want, tt.wantOK)
			}
			if ok && !got.In(frame) {
				t.Errorf("result %v escapes frame %v", got, frame)
			}
		})
	}
}

func TestScaleRoundTrip(t *testing.T) {
	small := image.Rect(10, 20, 30, 40)
	if got := Scale(small, 1/0.5); got != image.Rect(20, 40, 60, 80) {
		t.Errorf("Scale up = %v", got)
	}
}

func TestDownscale(t *testing.T) {
	img := Uniform(4000, 2000, color.White)

	out, f := Downscale(img, 1920)
	if f != 0.48 {
		t.Errorf("factor = %v, want 0.48", f)
	}
	if b := out.Bounds(); b.Dx() != 1920 || b.Dy() != 960 {
		t.Errorf("bounds = %v, want 1920x960", b)
	}

	same, f := Downscale(img, 5000)
	if f != 1 || same != image.Image(img) {
		t.Errorf("image under the cap should be returned untouched")
	}
}

func TestCropHasZeroOrigin(t *testing.T) {
	img := Uniform(50, 50, color.Black)
	c := Crop(img, image.Rect(10, 10, 30, 25))
	if c.Bounds() != image.Rect(0, 0, 20, 15) {
		t.Errorf("crop bounds = %v", c.Bounds())
	}
}

func TestIoU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	if got := IoU(a, a); got != 1 {
		t.Errorf("IoU(a,a) = %v", got)
	}
	if got := IoU(a, image.Rect(20, 20, 30, 30)); got != 0 {
		t.Errorf("disjoint IoU = %v", got)
	}
	got := IoU(a, image.Rect(5, 0, 15, 10))
	if math.Abs(got-1.0/3.0) > 1e-9 {
		t.Errorf("half overlap IoU = %v, want 1/3", got)
	}
}
