// Package signer produces detached signatures over canonicalized claims with
// the facility's active certificate.
package signer

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

// Algorithm names the signature scheme reported with every signature.
const Algorithm = "SHA256withRSA"

// Signature is a detached signature and the certificate that made it.
type Signature struct {
	Signature         string    `json:"signature"`
	Algorithm         string    `json:"algorithm"`
	Timestamp         time.Time `json:"timestamp"`
	CertificateSerial string    `json:"certificate_serial"`
}

// CertificateStatus reports the validity window of the active certificate.
type CertificateStatus struct {
	ValidFrom         time.Time `json:"valid_from"`
	ValidUntil        time.Time `json:"valid_until"`
	IsExpired         bool      `json:"is_expired"`
	Status            string    `json:"status"`
	CertificateSerial string    `json:"certificate_serial"`
}

type Signer struct {
	store *CertificateStore
	now   func() time.Time
}

// New creates a signer. now defaults to time.Now.
func New(store *CertificateStore, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{store: store, now: now}
}

// Store exposes the certificate store, for rotation.
func (s *Signer) Store() *CertificateStore {
	return s.store
}

// Sign canonicalizes payload and signs its SHA-256 digest with RSA
// PKCS#1 v1.5. The signature is deterministic for a given payload and key.
func (s *Signer) Sign(ctx context.Context, facilityID uint, payload []byte) (*Signature, error) {
	cert, err := s.store.Active(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	switch cert.StatusAt(now) {
	case models.CertificateStatusExpired:
		return nil, claimerr.New(claimerr.KindExpiredCertificate, "certificate %s expired at %s", cert.SerialNumber, cert.ValidUntil.UTC().Format(time.RFC3339))
	case models.CertificateStatusNotYetValid:
		return nil, claimerr.New(claimerr.KindExpiredCertificate, "certificate %s not valid before %s", cert.SerialNumber, cert.ValidFrom.UTC().Format(time.RFC3339))
	}

	canonical, err := Canonicalize(payload)
	if err != nil {
		return nil, claimerr.Wrap(claimerr.KindInvalidPayload, err, "payload")
	}
	key, err := s.store.key(ctx, cert)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(canonical)
	sig, err := rsa.SignPKCS1v15(nil, key.private, crypto.SHA256, digest[:])
	if err != nil {
		return nil, claimerr.Wrap(claimerr.KindInternal, err, "sign with certificate %s", cert.SerialNumber)
	}

	return &Signature{
		Signature:         base64.StdEncoding.EncodeToString(sig),
		Algorithm:         Algorithm,
		Timestamp:         now,
		CertificateSerial: cert.SerialNumber,
	}, nil
}

// Verify checks signature against payload with the facility's active
// certificate. An expired certificate still verifies what it signed.
func (s *Signer) Verify(ctx context.Context, facilityID uint, payload []byte, signature string) (bool, error) {
	cert, err := s.store.Active(ctx, facilityID)
	if err != nil {
		return false, err
	}
	canonical, err := Canonicalize(payload)
	if err != nil {
		return false, claimerr.Wrap(claimerr.KindInvalidPayload, err, "payload")
	}
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, claimerr.Wrap(claimerr.KindInvalidPayload, err, "signature is not base64")
	}
	key, err := s.store.key(ctx, cert)
	if err != nil {
		return false, err
	}

	digest := sha256.Sum256(canonical)
	if err := rsa.VerifyPKCS1v15(key.public, crypto.SHA256, digest[:], raw); err != nil {
		if errors.Is(err, rsa.ErrVerification) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// VerifyCertificate reports the active certificate's validity without
// touching key material.
func (s *Signer) VerifyCertificate(ctx context.Context, facilityID uint) (*CertificateStatus, error) {
	cert, err := s.store.Active(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	status := cert.StatusAt(s.now().UTC())
	return &CertificateStatus{
		ValidFrom:         cert.ValidFrom.UTC(),
		ValidUntil:        cert.ValidUntil.UTC(),
		IsExpired:         status == models.CertificateStatusExpired,
		Status:            status,
		CertificateSerial: cert.SerialNumber,
	}, nil
}
