package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	MappingSourceManual   = "manual"
	MappingSourceAI       = "ai"
	MappingSourceFallback = "fallback"
)

// CodeMapping links a facility-local service code to a canonical code.
// Only one active mapping may exist per (facility_id, internal_code); the
// ActiveKey column carries "1" for active rows and NULL otherwise so the
// unique index ignores retired mappings.
type CodeMapping struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	FacilityID    uint      `gorm:"not null;index:ux_code_mappings_active,unique,priority:1" json:"facility_id" validate:"required"`
	InternalCode  string    `gorm:"type:varchar(64);not null;index:ux_code_mappings_active,unique,priority:2" json:"internal_code" validate:"required,max=64"`
	CanonicalCode string    `gorm:"type:varchar(64);not null;index" json:"canonical_code" validate:"required,max=64"`
	Confidence    float64   `gorm:"type:decimal(5,4);not null;default:1" json:"confidence" validate:"gte=0,lte=1"`
	Source        string    `gorm:"type:varchar(16);not null;default:'manual'" json:"source" validate:"oneof=manual ai fallback"`
	IsActive      bool      `gorm:"not null" json:"is_active"`
	ActiveKey     *string   `gorm:"type:char(1);index:ux_code_mappings_active,unique,priority:3" json:"-"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *CodeMapping) Validate() error {
	v := validator.New()
	return v.Struct(m)
}

// SyncActiveKey keeps ActiveKey consistent with IsActive before persisting.
func (m *CodeMapping) SyncActiveKey() {
	if m.IsActive {
		k := "1"
		m.ActiveKey = &k
		return
	}
	m.ActiveKey = nil
}
