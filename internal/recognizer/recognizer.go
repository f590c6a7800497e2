// Package recognizer defines the person and face models rollcall depends on
// and provides the dlib (go-face) and OpenCV (gocv) implementations.
package recognizer

import (
	"image"
)

// PersonDetector finds people in an image.
type PersonDetector interface {
	DetectPersons(img image.Image) ([]image.Rectangle, error)
}

// Face is one face found in an image, with its embedding.
type Face struct {
	Rect      image.Rectangle
	Embedding []float64
}

// FaceModel locates faces and computes their embeddings. Embedding vectors have
// a fixed length chosen by the model. Implementations keep no state between
// calls, so one model can serve concurrent callers.
type FaceModel interface {
	// Faces locates and embeds every face in img in one pass. Higher
	// upsample values search harder for small faces.
	Faces(img image.Image, upsample int) ([]Face, error)

	// Embed returns one embedding per face box, in order. A nil faces slice
	// makes the model run its own default face search over img.
	Embed(img image.Image, faces []image.Rectangle) ([][]float64, error)
}
