package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogEntry is the canonical service-code reference row. BundleID, when
// set, makes the code a member of that bundle's code set.
type CatalogEntry struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	CanonicalCode string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"canonical_code"`
	Description   string          `gorm:"type:varchar(512);not null;default:''" json:"description"`
	BasePrice     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"base_price"`
	Currency      string          `gorm:"type:char(3);not null;default:'SAR'" json:"currency"`
	BundleID      *uint           `gorm:"index" json:"bundle_id,omitempty"`
	IsActive      bool            `gorm:"not null;index" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Bundle is a set of canonical codes billed together at one combined price.
type Bundle struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	BundleCode  string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"bundle_code"`
	Name        string          `gorm:"type:varchar(255);not null;default:''" json:"name"`
	BundlePrice decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"bundle_price"`
	Currency    string          `gorm:"type:char(3);not null;default:'SAR'" json:"currency"`
	IsActive    bool            `gorm:"not null;index" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BundleRule is a bundle together with its resolved member codes.
type BundleRule struct {
	Bundle Bundle
	Codes  []string
}
