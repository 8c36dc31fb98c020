package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

// MemoryTransactionRepository is an in-process ledger used by tests and
// local runs without MySQL. It honours the same write-once rules as the gorm
// implementation.
type MemoryTransactionRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   map[string]*models.Transaction
	now    func() time.Time
}

func NewMemoryTransactionRepository() *MemoryTransactionRepository {
	return &MemoryTransactionRepository{
		rows: make(map[string]*models.Transaction),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryTransactionRepository) CreatePending(_ context.Context, tx *models.Transaction) (bool, *models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.rows[tx.TransactionUUID]; ok {
		cp := *existing
		return false, &cp, nil
	}
	r.nextID++
	row := *tx
	row.ID = r.nextID
	if row.Status == "" {
		row.Status = models.TransactionStatusPending
	}
	row.CreatedAt = r.now()
	row.UpdatedAt = row.CreatedAt
	r.rows[tx.TransactionUUID] = &row
	tx.ID = row.ID

	cp := row
	return true, &cp, nil
}

func (r *MemoryTransactionRepository) GetByUUID(_ context.Context, transactionUUID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[transactionUUID]
	if !ok {
		return nil, claimerr.New(claimerr.KindNotFound, "transaction %s not found", transactionUUID)
	}
	cp := *row
	return &cp, nil
}

func (r *MemoryTransactionRepository) MarkRetrying(_ context.Context, transactionUUID string, retryCount, httpStatus int, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[transactionUUID]
	if !ok || row.IsTerminal() {
		return nil
	}
	row.Status = models.TransactionStatusRetrying
	row.RetryCount = retryCount
	row.HTTPStatus = httpStatus
	row.ErrorMessage = &errorMessage
	row.UpdatedAt = r.now()
	return nil
}

func (r *MemoryTransactionRepository) Finalize(_ context.Context, transactionUUID string, outcome models.TransactionOutcome) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[transactionUUID]
	if !ok || row.IsTerminal() {
		return false, nil
	}
	row.Status = outcome.Status
	row.RetryCount = outcome.RetryCount
	row.HTTPStatus = outcome.HTTPStatus
	ts := outcome.ResponseTimestamp.UTC()
	row.ResponseTimestamp = &ts
	row.ResponsePayload = outcome.ResponsePayload
	if outcome.ExternalTransactionID != "" {
		id := outcome.ExternalTransactionID
		row.ExternalTransactionID = &id
	}
	if outcome.ErrorMessage != "" {
		msg := outcome.ErrorMessage
		row.ErrorMessage = &msg
	} else {
		row.ErrorMessage = nil
	}
	if outcome.ErrorKind != "" {
		kind := outcome.ErrorKind
		row.ErrorKind = &kind
	} else {
		row.ErrorKind = nil
	}
	row.UpdatedAt = r.now()
	return true, nil
}

func (r *MemoryTransactionRepository) ListByFacility(_ context.Context, facilityID uint, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Transaction
	for _, row := range r.rows {
		if row.FacilityID == facilityID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmissionTimestamp.Equal(out[j].SubmissionTimestamp) {
			return out[i].SubmissionTimestamp.After(out[j].SubmissionTimestamp)
		}
		return out[i].ID > out[j].ID
	})
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTransactionRepository) ListStale(_ context.Context, before time.Time, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Transaction
	for _, row := range r.rows {
		if !row.IsTerminal() && row.UpdatedAt.Before(before) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Touch overrides a row's UpdatedAt; tests use it to age records.
func (r *MemoryTransactionRepository) Touch(transactionUUID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[transactionUUID]; ok {
		row.UpdatedAt = at
	}
}

var _ TransactionRepository = (*MemoryTransactionRepository)(nil)
