package repository

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/database"
)

type catalogRepository struct {
	db   *gorm.DB
	gate *database.Gate
}

// NewCatalogRepository creates a new catalog repository instance
func NewCatalogRepository(db *gorm.DB, gate *database.Gate) CatalogRepository {
	return &catalogRepository{db: db, gate: gate}
}

func (r *catalogRepository) GetByCode(ctx context.Context, canonicalCode string) (*models.CatalogEntry, error) {
	var entry models.CatalogEntry
	err := guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).
			Where("canonical_code = ? AND is_active = ?", canonicalCode, true).
			First(&entry).Error
	})
	if err != nil {
		return nil, translate(err, "catalog entry")
	}
	return &entry, nil
}

// GetByCodes returns the active entries found, keyed by canonical code.
// Missing codes are simply absent from the map.
func (r *catalogRepository) GetByCodes(ctx context.Context, canonicalCodes []string) (map[string]models.CatalogEntry, error) {
	out := make(map[string]models.CatalogEntry, len(canonicalCodes))
	if len(canonicalCodes) == 0 {
		return out, nil
	}
	var entries []models.CatalogEntry
	err := guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).
			Where("canonical_code IN ? AND is_active = ?", canonicalCodes, true).
			Find(&entries).Error
	})
	if err != nil {
		return nil, translate(err, "catalog entries")
	}
	for _, e := range entries {
		out[e.CanonicalCode] = e
	}
	return out, nil
}

func (r *catalogRepository) ListActive(ctx context.Context) ([]models.CatalogEntry, error) {
	var entries []models.CatalogEntry
	err := guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).
			Where("is_active = ?", true).
			Order("canonical_code ASC").
			Find(&entries).Error
	})
	return entries, translate(err, "catalog")
}

// ListBundleRules returns every active bundle with its sorted member codes.
// Bundles without active members are omitted.
func (r *catalogRepository) ListBundleRules(ctx context.Context) ([]models.BundleRule, error) {
	var bundles []models.Bundle
	var members []models.CatalogEntry
	err := guarded(ctx, r.gate, func() error {
		if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&bundles).Error; err != nil {
			return err
		}
		if len(bundles) == 0 {
			return nil
		}
		ids := make([]uint, 0, len(bundles))
		for _, b := range bundles {
			ids = append(ids, b.ID)
		}
		return r.db.WithContext(ctx).
			Where("bundle_id IN ? AND is_active = ?", ids, true).
			Find(&members).Error
	})
	if err != nil {
		return nil, translate(err, "bundle rules")
	}

	codesByBundle := make(map[uint][]string, len(bundles))
	for _, m := range members {
		if m.BundleID != nil {
			codesByBundle[*m.BundleID] = append(codesByBundle[*m.BundleID], m.CanonicalCode)
		}
	}

	rules := make([]models.BundleRule, 0, len(bundles))
	for _, b := range bundles {
		codes := codesByBundle[b.ID]
		if len(codes) == 0 {
			continue
		}
		sort.Strings(codes)
		rules = append(rules, models.BundleRule{Bundle: b, Codes: codes})
	}
	return rules, nil
}
