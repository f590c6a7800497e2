package recognizer

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// HOGPeople detects people with OpenCV's default HOG + linear SVM model.
type HOGPeople struct {
	mu  sync.Mutex
	hog gocv.HOGDescriptor
}

func NewHOGPeople() (*HOGPeople, error) {
	hog := gocv.NewHOGDescriptor()

	det := gocv.HOGDefaultPeopleDetector()
	defer det.Close()

	if err := hog.SetSVMDetector(det); err != nil {
		hog.Close()
		return nil, fmt.Errorf("load people detector: %w", err)
	}
	return &HOGPeople{hog: hog}, nil
}

func (h *HOGPeople) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hog.Close()
}

func (h *HOGPeople) DetectPersons(img image.Image) ([]image.Rectangle, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, nil
	}

	h.mu.Lock()
	rects := h.hog.DetectMultiScale(mat)
	h.mu.Unlock()

	// gocv reports boxes relative to the Mat, which starts at (0,0).
	off := img.Bounds().Min
	for i := range rects {
		rects[i] = rects[i].Add(off)
	}
	return rects, nil
}
