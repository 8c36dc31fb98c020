package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/bridge"
	"github.com/sbsbridge/claimbridge/internal/pkg/callercontext"
)

type ClaimSubmitter interface {
	Submit(ctx context.Context, claim bridge.SignedClaim) (*models.Transaction, error)
	GetTransactionStatus(ctx context.Context, transactionUUID string) (*models.Transaction, error)
	GetFacilityTransactions(ctx context.Context, facilityID uint, limit int) ([]models.Transaction, error)
}

// SubmissionController exposes the submission bridge and the ledger reads.
type SubmissionController struct {
	submitter   ClaimSubmitter
	waitTimeout time.Duration
}

// NewSubmissionController creates the controller. A submission still running
// after waitTimeout is answered with 202.
func NewSubmissionController(s ClaimSubmitter, waitTimeout time.Duration) *SubmissionController {
	return &SubmissionController{submitter: s, waitTimeout: waitTimeout}
}

type submitRequest struct {
	FacilityID      uint            `json:"facility_id" validate:"required"`
	FHIRPayload     json.RawMessage `json:"fhir_payload" validate:"required"`
	Signature       string          `json:"signature" validate:"required"`
	TransactionUUID string          `json:"transaction_uuid" validate:"omitempty,uuid"`
}

// HandleSubmitClaim returns {transaction_id, transaction_uuid, status,
// http_status, nphies_response}.
func (sc *SubmissionController) HandleSubmitClaim(c *fiber.Ctx) error {
	var req submitRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx := c.UserContext()
	if sc.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sc.waitTimeout)
		defer cancel()
	}

	tx, err := sc.submitter.Submit(ctx, bridge.SignedClaim{
		TransactionUUID: req.TransactionUUID,
		FacilityID:      req.FacilityID,
		Payload:         req.FHIRPayload,
		Signature:       req.Signature,
	})
	if err != nil {
		if errors.Is(err, bridge.ErrStillRunning) && tx != nil {
			fiberlog.Infof("[API] %s still in flight for caller %s", tx.TransactionUUID, callercontext.GetCallerID(c))
			return c.Status(fiber.StatusAccepted).JSON(submissionResponse(tx))
		}
		return respondError(c, err)
	}
	return c.JSON(submissionResponse(tx))
}

// HandleGetTransaction returns the ledger record.
func (sc *SubmissionController) HandleGetTransaction(c *fiber.Ctx, transactionUUID string) error {
	tx, err := sc.submitter.GetTransactionStatus(c.UserContext(), transactionUUID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(transactionResponse(tx))
}

// HandleFacilityTransactions lists a facility's records, newest first.
func (sc *SubmissionController) HandleFacilityTransactions(c *fiber.Ctx, facilityID uint, limit int) error {
	list, err := sc.submitter.GetFacilityTransactions(c.UserContext(), facilityID, limit)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]fiber.Map, 0, len(list))
	for i := range list {
		out = append(out, transactionResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"facility_id": facilityID, "transactions": out})
}

func submissionResponse(tx *models.Transaction) fiber.Map {
	return fiber.Map{
		"transaction_id":   tx.ID,
		"transaction_uuid": tx.TransactionUUID,
		"status":           tx.Status,
		"http_status":      tx.HTTPStatus,
		"error":            tx.ErrorKind,
		"nphies_response":  rawOrString(tx.ResponsePayload),
	}
}

func transactionResponse(tx *models.Transaction) fiber.Map {
	return fiber.Map{
		"transaction_id":          tx.ID,
		"transaction_uuid":        tx.TransactionUUID,
		"facility_id":             tx.FacilityID,
		"status":                  tx.Status,
		"retry_count":             tx.RetryCount,
		"http_status":             tx.HTTPStatus,
		"submission_timestamp":    formatTimePtr(&tx.SubmissionTimestamp),
		"response_timestamp":      formatTimePtr(tx.ResponseTimestamp),
		"external_transaction_id": tx.ExternalTransactionID,
		"error_message":           tx.ErrorMessage,
		"error":                   tx.ErrorKind,
		"nphies_response":         rawOrString(tx.ResponsePayload),
	}
}
