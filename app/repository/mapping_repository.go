package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/database"
)

type mappingRepository struct {
	db   *gorm.DB
	gate *database.Gate
}

// NewMappingRepository creates a new mapping repository instance
func NewMappingRepository(db *gorm.DB, gate *database.Gate) MappingRepository {
	return &mappingRepository{db: db, gate: gate}
}

func (r *mappingRepository) FindActive(ctx context.Context, facilityID uint, internalCode string) (*models.CodeMapping, error) {
	var m models.CodeMapping
	err := guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).
			Where("facility_id = ? AND internal_code = ? AND is_active = ?", facilityID, internalCode, true).
			Order("id DESC").
			First(&m).Error
	})
	if err != nil {
		return nil, translate(err, "code mapping")
	}
	return &m, nil
}

func (r *mappingRepository) Create(ctx context.Context, mapping *models.CodeMapping) error {
	if err := mapping.Validate(); err != nil {
		return err
	}
	mapping.SyncActiveKey()
	return translate(guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).Create(mapping).Error
	}), "code mapping")
}
