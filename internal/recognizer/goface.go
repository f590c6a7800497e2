package recognizer

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/amirhossein5/rollcall/internal/imagefile"
	"github.com/amirhossein5/rollcall/internal/region"
	"github.com/amirhossein5/rollcall/pkg/logger"
)

// minFaceIoU is how much an Embed box must overlap a detected face to use it.
const minFaceIoU = 0.5

// GoFace wraps a dlib recognizer. dlib detects and describes in one pass, so
// every call runs a fresh search and nothing is carried between calls.
type GoFace struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// NewGoFace loads the dlib models from modelsDir (shape predictor, ResNet
// descriptor and the CNN/HOG face detectors).
func NewGoFace(modelsDir string) (*GoFace, error) {
	logger.Named("recognizer").Info(context.Background(), "initializing face-recognition-models",
		logger.String("dir", modelsDir))

	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load recognizer: %v", err)
	}
	return &GoFace{rec: rec}, nil
}

func (g *GoFace) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rec.Close()
}

// Faces uses the CNN detector when upsample > 1 because it finds small
// faces that the HOG detector misses, at a higher cost.
func (g *GoFace) Faces(img image.Image, upsample int) ([]Face, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	faces, err := g.recognize(img, upsample > 1)
	if err != nil {
		return nil, err
	}
	out := make([]Face, len(faces))
	for i, f := range faces {
		out[i] = Face{Rect: f.Rectangle, Embedding: descriptor(f.Descriptor)}
	}
	return out, nil
}

// Embed with boxes searches with the CNN detector and describes the face
// overlapping each box best. Boxes without such a face are left out.
func (g *GoFace) Embed(img image.Image, boxes []image.Rectangle) ([][]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	faces, err := g.recognize(img, boxes != nil)
	if err != nil {
		return nil, err
	}
	if boxes == nil {
		out := make([][]float64, len(faces))
		for i, f := range faces {
			out[i] = descriptor(f.Descriptor)
		}
		return out, nil
	}

	out := make([][]float64, 0, len(boxes))
	for _, b := range boxes {
		if f, ok := bestOverlap(faces, b); ok {
			out = append(out, descriptor(f.Descriptor))
		}
	}
	return out, nil
}

func (g *GoFace) recognize(img image.Image, cnn bool) ([]face.Face, error) {
	buf, err := imagefile.EncodeJPEG(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	if cnn {
		return g.rec.RecognizeCNN(buf)
	}
	return g.rec.Recognize(buf)
}

func bestOverlap(faces []face.Face, box image.Rectangle) (face.Face, bool) {
	var best face.Face
	bestIoU := 0.0
	for _, f := range faces {
		if iou := region.IoU(f.Rectangle, box); iou > bestIoU {
			best, bestIoU = f, iou
		}
	}
	return best, bestIoU >= minFaceIoU
}

func descriptor(d face.Descriptor) []float64 {
	out := make([]float64, len(d))
	for i, v := range d {
		out[i] = float64(v)
	}
	return out
}
