// Package enroll validates enrollment photos and registers identities in the
// embedding store.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/amirhossein5/rollcall/internal/imagefile"
	"github.com/amirhossein5/rollcall/internal/recognizer"
	"github.com/amirhossein5/rollcall/internal/rollno"
	"github.com/amirhossein5/rollcall/internal/store"
	"github.com/amirhossein5/rollcall/pkg/logger"
)

// ErrAmbiguousEnrollment means the photo held zero faces or more than one.
var ErrAmbiguousEnrollment = errors.New("enrollment photo must show exactly one face")

// Retractor removes a roll number from published attendance artifacts.
type Retractor interface {
	Retract(ctx context.Context, rollNo string) (bool, error)
}

// Outcome describes a successful enrollment.
type Outcome struct {
	RollNo string
	Name   string
	// Replaced is set when the roll number was already enrolled.
	Replaced bool
	// Path is the saved reference image, empty when it could not be written.
	Path string
}

func (o Outcome) Message() string {
	return fmt.Sprintf("Successfully registered %s (%s).", o.Name, o.RollNo)
}

type Enroller struct {
	faces    recognizer.FaceModel
	store    *store.Store
	facesDir string
	register Retractor
	log      logger.Logger
}

// New returns an Enroller that keeps reference photos in facesDir. facesDir
// and register may be empty/nil.
func New(faces recognizer.FaceModel, s *store.Store, facesDir string, register Retractor) *Enroller {
	return &Enroller{
		faces:    faces,
		store:    s,
		facesDir: facesDir,
		register: register,
		log:      logger.Named("enroll"),
	}
}

// EnrollFile loads path and enrolls the single face in it.
func (e *Enroller) EnrollFile(ctx context.Context, rollNo any, name, path string) (Outcome, error) {
	img, err := imagefile.Load(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("registration failed: %w", err)
	}
	return e.Enroll(ctx, rollNo, name, img)
}

// Enroll registers the single face in img under rollNo. On any validation
// error the store is left untouched.
func (e *Enroller) Enroll(ctx context.Context, rollNo any, name string, img image.Image) (Outcome, error) {
	key, err := rollno.Canonical(rollNo)
	if err != nil {
		return Outcome{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Outcome{}, errors.New("name is required")
	}
	e.log.Info(ctx, "registering student", logger.String("roll_no", key), logger.String("name", name))

	faces, err := e.faces.Faces(img, 1)
	if err != nil {
		return Outcome{}, fmt.Errorf("locate faces: %w", err)
	}
	switch {
	case len(faces) == 0:
		return Outcome{}, fmt.Errorf("%w: no face detected in the image", ErrAmbiguousEnrollment)
	case len(faces) > 1:
		return Outcome{}, fmt.Errorf("%w: %d faces detected, provide an image with a single student", ErrAmbiguousEnrollment, len(faces))
	}
	embedding := faces[0].Embedding
	if len(embedding) == 0 {
		return Outcome{}, fmt.Errorf("%w: face could not be encoded", ErrAmbiguousEnrollment)
	}

	_, replaced, err := e.store.Get(key)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{RollNo: key, Name: name, Replaced: replaced}
	if e.facesDir != "" {
		path := filepath.Join(e.facesDir, referenceName(key, name))
		if err := saveReference(path, img); err != nil {
			e.log.Warn(ctx, "saving reference image failed", logger.String("path", path), logger.Error(err))
		} else {
			out.Path = path
		}
	}

	if err := e.store.Upsert(ctx, key, name, embedding, out.Path); err != nil {
		return out, err
	}
	e.log.Info(ctx, out.Message())
	return out, nil
}

// Delete removes rollNo from the store, its reference photo and the CSV
// register. It reports whether the identity existed.
func (e *Enroller) Delete(ctx context.Context, rollNo any) (bool, error) {
	id, ok, err := e.store.Get(rollNo)
	if err != nil || !ok {
		return false, err
	}

	removed, err := e.store.Delete(ctx, id.RollNo)
	if !removed {
		return false, err
	}
	// memory is already updated even when persisting failed; finish the cleanup
	if id.Path != "" {
		if rmErr := os.Remove(id.Path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			e.log.Warn(ctx, "removing reference image failed", logger.String("path", id.Path), logger.Error(rmErr))
		}
	}
	if e.register != nil {
		if _, rErr := e.register.Retract(ctx, id.RollNo); rErr != nil {
			e.log.Warn(ctx, "scrubbing attendance register failed", logger.String("roll_no", id.RollNo), logger.Error(rErr))
		}
	}
	e.log.Info(ctx, "deleted student", logger.String("roll_no", id.RollNo), logger.String("name", id.Name))
	return true, err
}

func referenceName(rollNo, name string) string {
	clean := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '-'
		}
		return r
	}, name)
	return rollNo + "_" + clean + ".jpg"
}

func saveReference(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return imagefile.SaveJPEG(path, img)
}
