package models

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

const (
	TransactionStatusPending           = "pending"
	TransactionStatusRetrying          = "retrying"
	TransactionStatusSubmittedAccepted = "submitted_accepted"
	TransactionStatusSubmittedDenied   = "submitted_denied"
	TransactionStatusFailed            = "failed"
)

// Transaction is one Ledger row: a submission attempt sequence for a single
// signed claim. Rows are never deleted and only the submission bridge writes
// them; terminal statuses are write-once.
type Transaction struct {
	ID                    uint       `gorm:"primaryKey" json:"transaction_id"`
	TransactionUUID       string     `gorm:"type:char(36);not null;uniqueIndex" json:"transaction_uuid" validate:"required,uuid"`
	FacilityID            uint       `gorm:"not null;index:idx_transactions_facility_submitted,priority:1" json:"facility_id" validate:"required"`
	Status                string     `gorm:"type:varchar(32);not null;default:'pending';index" json:"status" validate:"oneof=pending retrying submitted_accepted submitted_denied failed"`
	RetryCount            int        `gorm:"not null;default:0" json:"retry_count"`
	HTTPStatus            int        `gorm:"not null;default:0" json:"http_status"`
	SubmissionTimestamp   time.Time  `gorm:"not null;index:idx_transactions_facility_submitted,priority:2" json:"submission_timestamp"`
	ResponseTimestamp     *time.Time `gorm:"default:null" json:"response_timestamp"`
	ExternalTransactionID *string    `gorm:"type:varchar(191);default:null" json:"external_transaction_id"`
	ErrorMessage          *string    `gorm:"type:text" json:"error_message"`
	ErrorKind             *string    `gorm:"type:varchar(32);default:null" json:"error_kind"`
	RequestPayload        string     `gorm:"type:longtext" json:"-"`
	Signature             string     `gorm:"type:text" json:"-"`
	ResponsePayload       string     `gorm:"type:longtext" json:"nphies_response,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *Transaction) Validate() error {
	v := validator.New()
	return v.Struct(t)
}

// IsTerminal reports whether no further writes may happen to the record.
func (t *Transaction) IsTerminal() bool {
	return IsTerminalStatus(t.Status)
}

func IsTerminalStatus(status string) bool {
	switch status {
	case TransactionStatusSubmittedAccepted, TransactionStatusSubmittedDenied, TransactionStatusFailed:
		return true
	}
	return false
}

// TransactionOutcome is the terminal write applied once per transaction.
type TransactionOutcome struct {
	Status                string
	RetryCount            int
	HTTPStatus            int
	ResponseTimestamp     time.Time
	ExternalTransactionID string
	ErrorMessage          string
	ErrorKind             string
	ResponsePayload       string
}

// Failure returns the typed error behind a failed record: a
// TransientSubmissionError when retries ran out, a PermanentSubmissionError
// when the exchange rejected the claim. Other statuses return nil.
func (t *Transaction) Failure() error {
	if t.Status != TransactionStatusFailed {
		return nil
	}
	kind := claimerr.KindPermanentSubmission
	if t.ErrorKind != nil && *t.ErrorKind != "" {
		kind = claimerr.Kind(*t.ErrorKind)
	}
	msg := ""
	if t.ErrorMessage != nil {
		msg = *t.ErrorMessage
	}
	return &claimerr.Error{Kind: kind, Message: msg}
}
