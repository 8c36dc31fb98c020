package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Facility is a healthcare provider submitting claims.
type Facility struct {
	FacilityID uint      `gorm:"primaryKey;autoIncrement:false" json:"facility_id"`
	Name       string    `gorm:"type:varchar(255);not null;default:''" json:"name"`
	Tier       int       `gorm:"not null;index" json:"tier"`
	IsActive   bool      `gorm:"not null" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PricingTier holds the markup applied to facilities of that tier.
type PricingTier struct {
	Tier             int             `gorm:"primaryKey;autoIncrement:false" json:"tier"`
	Description      string          `gorm:"type:varchar(255);not null;default:''" json:"description"`
	MarkupPercentage decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"markup_percentage"`
}

// FacilityProfile is the read model joined from facilities and pricing_tiers.
type FacilityProfile struct {
	FacilityID       uint            `json:"facility_id"`
	Name             string          `json:"name"`
	Tier             int             `json:"tier"`
	MarkupPercentage decimal.Decimal `json:"markup_percentage"`
}
