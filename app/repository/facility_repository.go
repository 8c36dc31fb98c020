package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/database"
)

type facilityRepository struct {
	db   *gorm.DB
	gate *database.Gate
}

// NewFacilityRepository creates a new facility repository instance
func NewFacilityRepository(db *gorm.DB, gate *database.Gate) FacilityRepository {
	return &facilityRepository{db: db, gate: gate}
}

// GetProfile joins the facility with its pricing tier.
func (r *facilityRepository) GetProfile(ctx context.Context, facilityID uint) (*models.FacilityProfile, error) {
	var profile models.FacilityProfile
	err := guarded(ctx, r.gate, func() error {
		res := r.db.WithContext(ctx).
			Table("facilities").
			Select("facilities.facility_id, facilities.name, facilities.tier, pricing_tiers.markup_percentage").
			Joins("JOIN pricing_tiers ON pricing_tiers.tier = facilities.tier").
			Where("facilities.facility_id = ? AND facilities.is_active = ?", facilityID, true).
			Limit(1).
			Scan(&profile)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "facility profile")
	}
	return &profile, nil
}
