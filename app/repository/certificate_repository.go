package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/database"
)

type certificateRepository struct {
	db   *gorm.DB
	gate *database.Gate
}

// NewCertificateRepository creates a new certificate repository instance
func NewCertificateRepository(db *gorm.DB, gate *database.Gate) CertificateRepository {
	return &certificateRepository{db: db, gate: gate}
}

// ListActive returns every row flagged active for the facility. Callers treat
// anything other than exactly one row as an error.
func (r *certificateRepository) ListActive(ctx context.Context, facilityID uint) ([]models.Certificate, error) {
	var certs []models.Certificate
	err := guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).
			Where("facility_id = ? AND is_active = ?", facilityID, true).
			Order("id ASC").
			Find(&certs).Error
	})
	return certs, translate(err, "certificates")
}

func (r *certificateRepository) GetBySerial(ctx context.Context, facilityID uint, serial string) (*models.Certificate, error) {
	var cert models.Certificate
	err := guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).
			Where("facility_id = ? AND serial_number = ?", facilityID, serial).
			First(&cert).Error
	})
	if err != nil {
		return nil, translate(err, "certificate")
	}
	return &cert, nil
}

func (r *certificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	return translate(guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).Create(cert).Error
	}), "certificate")
}

// Activate makes serial the only active certificate of the facility in a
// single database transaction.
func (r *certificateRepository) Activate(ctx context.Context, facilityID uint, serial string) (*models.Certificate, error) {
	var cert models.Certificate
	err := guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("facility_id = ? AND serial_number = ?", facilityID, serial).First(&cert).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Certificate{}).
				Where("facility_id = ? AND id <> ? AND is_active = ?", facilityID, cert.ID, true).
				Update("is_active", false).Error; err != nil {
				return err
			}
			cert.IsActive = true
			return tx.Model(&cert).Update("is_active", true).Error
		})
	})
	if err != nil {
		return nil, translate(err, "certificate")
	}
	return &cert, nil
}
