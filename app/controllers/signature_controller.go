package controllers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/callercontext"
	"github.com/sbsbridge/claimbridge/internal/pkg/signer"
)

type ClaimSigner interface {
	Sign(ctx context.Context, facilityID uint, payload []byte) (*signer.Signature, error)
	Verify(ctx context.Context, facilityID uint, payload []byte, signature string) (bool, error)
	VerifyCertificate(ctx context.Context, facilityID uint) (*signer.CertificateStatus, error)
}

type CertificateRotator interface {
	Rotate(ctx context.Context, facilityID uint, serial string) (*models.Certificate, error)
}

// SignatureController signs payloads and reports certificate state.
type SignatureController struct {
	signer  ClaimSigner
	rotator CertificateRotator
}

func NewSignatureController(s ClaimSigner, r CertificateRotator) *SignatureController {
	return &SignatureController{signer: s, rotator: r}
}

type signRequest struct {
	FacilityID uint            `json:"facility_id" validate:"required"`
	Payload    json.RawMessage `json:"payload" validate:"required"`
}

type verifyRequest struct {
	FacilityID uint            `json:"facility_id" validate:"required"`
	Payload    json.RawMessage `json:"payload" validate:"required"`
	Signature  string          `json:"signature" validate:"required"`
}

type rotateRequest struct {
	SerialNumber string `json:"serial_number" validate:"required"`
}

// HandleSign returns {signature, algorithm, timestamp, certificate_serial}.
func (sc *SignatureController) HandleSign(c *fiber.Ctx) error {
	var req signRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	sig, err := sc.signer.Sign(c.UserContext(), req.FacilityID, req.Payload)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sig)
}

// HandleVerifySignature returns {valid}.
func (sc *SignatureController) HandleVerifySignature(c *fiber.Ctx) error {
	var req verifyRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	ok, err := sc.signer.Verify(c.UserContext(), req.FacilityID, req.Payload, req.Signature)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"valid": ok})
}

// HandleVerifyCertificate reports the validity window of the active
// certificate.
func (sc *SignatureController) HandleVerifyCertificate(c *fiber.Ctx, facilityID uint) error {
	status, err := sc.signer.VerifyCertificate(c.UserContext(), facilityID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

// HandleRotateCertificate makes serial_number the facility's only active
// certificate.
func (sc *SignatureController) HandleRotateCertificate(c *fiber.Ctx, facilityID uint) error {
	var req rotateRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	cert, err := sc.rotator.Rotate(c.UserContext(), facilityID, req.SerialNumber)
	if err != nil {
		return respondError(c, err)
	}
	fiberlog.Infof("[API] Facility %d rotated to certificate %s by %s", facilityID, cert.SerialNumber, callercontext.GetCallerID(c))
	return c.JSON(fiber.Map{
		"facility_id":        cert.FacilityID,
		"certificate_serial": cert.SerialNumber,
		"valid_from":         formatTimePtr(&cert.ValidFrom),
		"valid_until":        formatTimePtr(&cert.ValidUntil),
	})
}
