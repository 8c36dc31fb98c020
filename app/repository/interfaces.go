package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/database"
)

// MappingRepository reads facility code mappings.
type MappingRepository interface {
	FindActive(ctx context.Context, facilityID uint, internalCode string) (*models.CodeMapping, error)
	Create(ctx context.Context, mapping *models.CodeMapping) error
}

// CatalogRepository reads the canonical code catalog and bundle rules.
type CatalogRepository interface {
	GetByCode(ctx context.Context, canonicalCode string) (*models.CatalogEntry, error)
	GetByCodes(ctx context.Context, canonicalCodes []string) (map[string]models.CatalogEntry, error)
	ListActive(ctx context.Context) ([]models.CatalogEntry, error)
	ListBundleRules(ctx context.Context) ([]models.BundleRule, error)
}

// FacilityRepository resolves facility pricing profiles.
type FacilityRepository interface {
	GetProfile(ctx context.Context, facilityID uint) (*models.FacilityProfile, error)
}

// CertificateRepository reads signing certificates and performs the
// activation half of a rotation.
type CertificateRepository interface {
	ListActive(ctx context.Context, facilityID uint) ([]models.Certificate, error)
	GetBySerial(ctx context.Context, facilityID uint, serial string) (*models.Certificate, error)
	Create(ctx context.Context, cert *models.Certificate) error
	Activate(ctx context.Context, facilityID uint, serial string) (*models.Certificate, error)
}

// TransactionRepository is the Transaction Ledger. Only the submission bridge
// writes through it; terminal statuses are written at most once.
type TransactionRepository interface {
	// CreatePending inserts tx unless its uuid already exists. created reports
	// whether this call inserted the row; stored is the persisted row either way.
	CreatePending(ctx context.Context, tx *models.Transaction) (created bool, stored *models.Transaction, err error)
	GetByUUID(ctx context.Context, transactionUUID string) (*models.Transaction, error)
	// MarkRetrying records a failed attempt on a non-terminal row.
	MarkRetrying(ctx context.Context, transactionUUID string, retryCount, httpStatus int, errorMessage string) error
	// Finalize applies the terminal outcome. applied is false when the row
	// was already terminal.
	Finalize(ctx context.Context, transactionUUID string, outcome models.TransactionOutcome) (applied bool, err error)
	ListByFacility(ctx context.Context, facilityID uint, limit int) ([]models.Transaction, error)
	// ListStale returns non-terminal rows not touched since before.
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Mapping     MappingRepository
	Catalog     CatalogRepository
	Facility    FacilityRepository
	Certificate CertificateRepository
	Transaction TransactionRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB, gate *database.Gate) *Repositories {
	return &Repositories{
		Mapping:     NewMappingRepository(db, gate),
		Catalog:     NewCatalogRepository(db, gate),
		Facility:    NewFacilityRepository(db, gate),
		Certificate: NewCertificateRepository(db, gate),
		Transaction: NewTransactionRepository(db, gate),
	}
}
