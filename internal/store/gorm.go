package store

import (
	"context"

	"github.com/amirhossein5/rollcall/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPersister keeps one enrolled_faces row per identity.
type GormPersister struct {
	db *gorm.DB
}

func NewGormPersister(db *gorm.DB) *GormPersister {
	return &GormPersister{db: db}
}

func (p *GormPersister) Load(ctx context.Context) ([]Identity, error) {
	var rows []models.EnrolledFace
	if err := p.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}

	ids := make([]Identity, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, Identity{
			RollNo:    row.RollNo,
			Name:      row.Name,
			Embedding: row.Embedding,
			Path:      row.Path,
		})
	}
	return ids, nil
}

func (p *GormPersister) Save(ctx context.Context, id Identity) error {
	row := models.EnrolledFace{
		RollNo:    id.RollNo,
		Name:      id.Name,
		Embedding: id.Embedding,
		Path:      id.Path,
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "roll_no"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "embedding", "path", "updated_at"}),
	}).Create(&row).Error
}

// Remove hard-deletes so the unique roll_no index is free for re-enrollment.
func (p *GormPersister) Remove(ctx context.Context, rollNo string) error {
	return p.db.WithContext(ctx).Unscoped().Where("roll_no = ?", rollNo).Delete(&models.EnrolledFace{}).Error
}
