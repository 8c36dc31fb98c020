package models

import "time"

const (
	CertificateStatusValid       = "valid"
	CertificateStatusExpired     = "expired"
	CertificateStatusNotYetValid = "not_yet_valid"
)

// Certificate describes a facility signing credential. KeyRef points at the
// private key material (file:// or s3://) and is never exposed over HTTP.
type Certificate struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FacilityID   uint      `gorm:"not null;index:idx_certificates_facility_active,priority:1" json:"facility_id"`
	SerialNumber string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"serial_number"`
	ValidFrom    time.Time `gorm:"not null" json:"valid_from"`
	ValidUntil   time.Time `gorm:"not null" json:"valid_until"`
	IsActive     bool      `gorm:"default:false;index:idx_certificates_facility_active,priority:2" json:"is_active"`
	KeyRef       string    `gorm:"type:varchar(512);not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// StatusAt reports the validity of the certificate window at t.
func (c *Certificate) StatusAt(t time.Time) string {
	switch {
	case t.Before(c.ValidFrom):
		return CertificateStatusNotYetValid
	case t.After(c.ValidUntil):
		return CertificateStatusExpired
	default:
		return CertificateStatusValid
	}
}
