package enroll_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amirhossein5/rollcall/internal/attendance"
	"github.com/amirhossein5/rollcall/internal/enroll"
	"github.com/amirhossein5/rollcall/internal/imagefile"
	"github.com/amirhossein5/rollcall/internal/recognizer"
	"github.com/amirhossein5/rollcall/internal/recognizer/recognizertest"
	"github.com/amirhossein5/rollcall/internal/region"
	"github.com/amirhossein5/rollcall/internal/store"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	black = color.RGBA{A: 255}
)

// crowd reports n faces for any image.
type crowd struct{ n int }

func (c crowd) Faces(img image.Image, upsample int) ([]recognizer.Face, error) {
	out := make([]recognizer.Face, c.n)
	for i := range out {
		out[i] = recognizer.Face{Rect: image.Rect(i*10, 0, i*10+10, 10), Embedding: []float64{float64(i)}}
	}
	return out, nil
}

func (c crowd) Embed(img image.Image, faces []image.Rectangle) ([][]float64, error) {
	out := make([][]float64, len(faces))
	for i := range out {
		out[i] = []float64{float64(i)}
	}
	return out, nil
}

func TestEnroll(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := store.NewMemory()
		facesDir := filepath.Join(t.TempDir(), "faces")
		e := enroll.New(&recognizertest.ColorFaces{}, s, facesDir, nil)

		Convey("When the photo shows two faces", func() {
			multi := enroll.New(crowd{n: 2}, s, facesDir, nil)
			_, err := multi.Enroll(ctx, 103, "Carol", region.Uniform(40, 40, red))

			Convey("Then enrollment is rejected and nothing is written", func() {
				So(errors.Is(err, enroll.ErrAmbiguousEnrollment), ShouldBeTrue)
				So(s.Len(), ShouldEqual, 0)
				_, statErr := os.Stat(facesDir)
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})

		Convey("When the photo shows no face", func() {
			_, err := e.Enroll(ctx, "103", "Carol", region.Uniform(40, 40, black))

			Convey("Then enrollment is rejected", func() {
				So(errors.Is(err, enroll.ErrAmbiguousEnrollment), ShouldBeTrue)
				So(s.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the photo shows one face", func() {
			out, err := e.Enroll(ctx, 101, " Alice ", region.Uniform(40, 40, red))
			So(err, ShouldBeNil)

			Convey("Then the identity is stored under the canonical roll number", func() {
				So(out.RollNo, ShouldEqual, "101")
				So(out.Name, ShouldEqual, "Alice")
				So(out.Replaced, ShouldBeFalse)
				So(out.Message(), ShouldEqual, "Successfully registered Alice (101).")

				id, ok, err := s.Get("101")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(id.Embedding, ShouldResemble, recognizertest.Embedding(red))
			})

			Convey("And a reference photo is saved", func() {
				So(out.Path, ShouldEqual, filepath.Join(facesDir, "101_Alice.jpg"))
				_, err := os.Stat(out.Path)
				So(err, ShouldBeNil)
			})

			Convey("And enrolling the same roll again overwrites it", func() {
				again, err := e.Enroll(ctx, "101", "Alice", region.Uniform(40, 40, green))
				So(err, ShouldBeNil)
				So(again.Replaced, ShouldBeTrue)
				So(s.Len(), ShouldEqual, 1)
				id, _, _ := s.Get(101)
				So(id.Embedding, ShouldResemble, recognizertest.Embedding(green))
			})
		})

		Convey("When the name is blank", func() {
			_, err := e.Enroll(ctx, "101", "  ", region.Uniform(40, 40, red))
			So(err, ShouldNotBeNil)
			So(s.Len(), ShouldEqual, 0)
		})
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	Convey("Given Alice and Bob are enrolled and a register was published", t, func() {
		dir := t.TempDir()
		register := filepath.Join(dir, "attendance.csv")
		pub := attendance.NewPublisher(filepath.Join(dir, "reports"), register)
		s := store.NewMemory()
		e := enroll.New(&recognizertest.ColorFaces{}, s, filepath.Join(dir, "faces"), pub)

		alice, err := e.Enroll(ctx, "101", "Alice", region.Uniform(40, 40, red))
		So(err, ShouldBeNil)
		_, err = e.Enroll(ctx, "102", "Bob", region.Uniform(40, 40, green))
		So(err, ShouldBeNil)
		_, err = pub.Publish(ctx, attendance.Reconcile(s.All(), nil, time.Now()), attendance.PhotoPrefix)
		So(err, ShouldBeNil)

		Convey("When Alice is deleted by her integer roll number", func() {
			removed, err := e.Delete(ctx, 101)
			So(err, ShouldBeNil)
			So(removed, ShouldBeTrue)

			Convey("Then she is gone from the store, the faces dir and the register", func() {
				So(s.Len(), ShouldEqual, 1)
				_, statErr := os.Stat(alice.Path)
				So(os.IsNotExist(statErr), ShouldBeTrue)

				body, err := os.ReadFile(register)
				So(err, ShouldBeNil)
				So(string(body), ShouldNotContainSubstring, "Alice")
				So(string(body), ShouldContainSubstring, "Bob")
			})
		})

		Convey("When an unknown roll number is deleted", func() {
			removed, err := e.Delete(ctx, "999")
			So(err, ShouldBeNil)
			So(removed, ShouldBeFalse)
			So(s.Len(), ShouldEqual, 2)
		})
	})
}

func TestEnrollDir(t *testing.T) {
	Convey("Given a directory of named photos", t, func() {
		dir := t.TempDir()
		write := func(name string, c color.RGBA) {
			So(imagefile.SaveJPEG(filepath.Join(dir, name), region.Uniform(40, 40, c)), ShouldBeNil)
		}
		write("101_Alice.jpg", red)
		write("102_Bob Smith.jpg", green)
		write("103_Nobody.jpg", black)
		write("portrait.jpg", red)
		So(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644), ShouldBeNil)

		s := store.NewMemory()
		e := enroll.New(&recognizertest.ColorFaces{}, s, "", nil)

		sum, err := e.EnrollDir(context.Background(), dir, nil)
		So(err, ShouldBeNil)

		Convey("Then every well-named photo with one face is enrolled", func() {
			So(sum.Enrolled, ShouldEqual, 2)
			So(sum.Failed, ShouldEqual, 1)
			So(sum.Unmatched, ShouldResemble, []string{"portrait.jpg"})
			So(s.Len(), ShouldEqual, 2)

			bob, ok, _ := s.Get("102")
			So(ok, ShouldBeTrue)
			So(bob.Name, ShouldEqual, "Bob Smith")
		})

		Convey("And the failure names its file", func() {
			So(sum.Results[2].File, ShouldEqual, "103_Nobody.jpg")
			So(errors.Is(sum.Results[2].Err, enroll.ErrAmbiguousEnrollment), ShouldBeTrue)
		})
	})
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		file       string
		roll, name string
		ok         bool
	}{
		{"101_Alice.jpg", "101", "Alice", true},
		{"dir/0042_Mary_Ann.png", "0042", "Mary_Ann", true},
		{"Alice.jpg", "", "", false},
		{"_Alice.jpg", "", "", false},
		{"101_.jpg", "", "", false},
	}
	for _, tt := range tests {
		roll, name, ok := enroll.ParseFilename(tt.file)
		if roll != tt.roll || name != tt.name || ok != tt.ok {
			t.Errorf("ParseFilename(%q) = %q, %q, %v; want %q, %q, %v", tt.file, roll, name, ok, tt.roll, tt.name, tt.ok)
		}
	}
}
