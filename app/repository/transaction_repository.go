package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/database"
)

const (
	DefaultTransactionListLimit = 50
	MaxTransactionListLimit     = 500
)

var nonTerminalStatuses = []string{models.TransactionStatusPending, models.TransactionStatusRetrying}

type transactionRepository struct {
	db   *gorm.DB
	gate *database.Gate
}

// NewTransactionRepository creates the gorm-backed ledger
func NewTransactionRepository(db *gorm.DB, gate *database.Gate) TransactionRepository {
	return &transactionRepository{db: db, gate: gate}
}

func (r *transactionRepository) CreatePending(ctx context.Context, tx *models.Transaction) (bool, *models.Transaction, error) {
	var created bool
	var stored models.Transaction
	err := guarded(ctx, r.gate, func() error {
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_uuid"}},
			DoNothing: true,
		}).Create(tx)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		return r.db.WithContext(ctx).Where("transaction_uuid = ?", tx.TransactionUUID).First(&stored).Error
	})
	if err != nil {
		return false, nil, translate(err, "transaction")
	}
	return created, &stored, nil
}

func (r *transactionRepository) GetByUUID(ctx context.Context, transactionUUID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).Where("transaction_uuid = ?", transactionUUID).First(&tx).Error
	})
	if err != nil {
		return nil, translate(err, "transaction")
	}
	return &tx, nil
}

func (r *transactionRepository) MarkRetrying(ctx context.Context, transactionUUID string, retryCount, httpStatus int, errorMessage string) error {
	return translate(guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).Model(&models.Transaction{}).
			Where("transaction_uuid = ? AND status IN ?", transactionUUID, nonTerminalStatuses).
			Updates(map[string]interface{}{
				"status":        models.TransactionStatusRetrying,
				"retry_count":   retryCount,
				"http_status":   httpStatus,
				"error_message": errorMessage,
			}).Error
	}), "transaction")
}

func (r *transactionRepository) Finalize(ctx context.Context, transactionUUID string, outcome models.TransactionOutcome) (bool, error) {
	updates := map[string]interface{}{
		"status":             outcome.Status,
		"retry_count":        outcome.RetryCount,
		"http_status":        outcome.HTTPStatus,
		"response_timestamp": outcome.ResponseTimestamp.UTC(),
		"response_payload":   outcome.ResponsePayload,
	}
	if outcome.ExternalTransactionID != "" {
		updates["external_transaction_id"] = outcome.ExternalTransactionID
	}
	if outcome.ErrorMessage != "" {
		updates["error_message"] = outcome.ErrorMessage
	} else {
		updates["error_message"] = gorm.Expr("NULL")
	}
	if outcome.ErrorKind != "" {
		updates["error_kind"] = outcome.ErrorKind
	} else {
		updates["error_kind"] = gorm.Expr("NULL")
	}

	var applied bool
	err := guarded(ctx, r.gate, func() error {
		res := r.db.WithContext(ctx).Model(&models.Transaction{}).
			Where("transaction_uuid = ? AND status IN ?", transactionUUID, nonTerminalStatuses).
			Updates(updates)
		applied = res.RowsAffected == 1
		return res.Error
	})
	return applied, translate(err, "transaction")
}

func (r *transactionRepository) ListByFacility(ctx context.Context, facilityID uint, limit int) ([]models.Transaction, error) {
	limit = clampLimit(limit)
	var txs []models.Transaction
	err := guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).
			Where("facility_id = ?", facilityID).
			Order("submission_timestamp DESC, id DESC").
			Limit(limit).
			Find(&txs).Error
	})
	return txs, translate(err, "transactions")
}

func (r *transactionRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error) {
	limit = clampLimit(limit)
	var txs []models.Transaction
	err := guarded(ctx, r.gate, func() error {
		return r.db.WithContext(ctx).
			Where("status IN ? AND updated_at < ?", nonTerminalStatuses, before.UTC()).
			Order("updated_at ASC").
			Limit(limit).
			Find(&txs).Error
	})
	return txs, translate(err, "stale transactions")
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultTransactionListLimit
	}
	if limit > MaxTransactionListLimit {
		return MaxTransactionListLimit
	}
	return limit
}
