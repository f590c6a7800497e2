package models

import (
	"fmt"

	"github.com/amirhossein5/rollcall/internal/rollno"
	"gorm.io/gorm"
)

// EnrolledFace is one enrolled identity. Rows are ordered by ID, which an
// upsert keeps, so re-enrolling a roll number does not move it in the roster.
type EnrolledFace struct {
	gorm.Model
	RollNo    string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null"`
	Embedding []float64 `gorm:"serializer:json;not null"`
	Path      string
}

func (enrolledFace *EnrolledFace) BeforeSave(tx *gorm.DB) error {
	key, err := rollno.Canonical(enrolledFace.RollNo)
	if err != nil {
		return fmt.Errorf("EnrolledFace,BeforeSave: %w", err)
	}
	enrolledFace.RollNo = key

	if len(enrolledFace.Embedding) == 0 {
		return fmt.Errorf("EnrolledFace,BeforeSave: empty embedding for %s", key)
	}
	return nil
}
