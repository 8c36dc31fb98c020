// Package bridge submits signed claims to the external exchange and keeps
// the transaction ledger in step with every attempt.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/app/repository"
	"github.com/sbsbridge/claimbridge/internal/pkg/cache"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

// ErrStillRunning is returned when the caller stopped waiting, or another
// replica owns the submission, before a terminal status was reached. The
// submission continues; poll the ledger for the outcome.
var ErrStillRunning = errors.New("submission still in progress")

// finalizeAttempts bounds how often a terminal write is retried when the
// ledger is briefly unavailable.
const finalizeAttempts = 3

// Locker provides cross-replica exclusion per transaction. *cache.Locker
// satisfies it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Counters records submission events. *counter.SubmissionCounters
// satisfies it.
type Counters interface {
	Incr(ctx context.Context, event string)
}

// SignedClaim is the bridge input.
type SignedClaim struct {
	TransactionUUID string
	FacilityID      uint
	Payload         []byte
	Signature       string
}

// Option configures a Bridge.
type Option func(*Bridge)

func WithClock(c Clock) Option       { return func(b *Bridge) { b.clock = c } }
func WithLocker(l Locker) Option     { return func(b *Bridge) { b.locker = l } }
func WithCounters(c Counters) Option { return func(b *Bridge) { b.counters = c } }

type Bridge struct {
	ledger   repository.TransactionRepository
	exchange Exchange
	cfg      Config
	clock    Clock
	locker   Locker
	counters Counters

	group singleflight.Group

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func New(ledger repository.TransactionRepository, exchange Exchange, cfg Config, opts ...Option) *Bridge {
	b := &Bridge{
		ledger:   ledger,
		exchange: exchange,
		cfg:      cfg,
		clock:    RealClock,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Submit records a pending transaction and drives it to a terminal status.
// A transaction_uuid that is already terminal is returned unchanged without
// contacting the exchange. The attempt loop does not depend on ctx: when ctx
// ends first, Submit returns the current record with ErrStillRunning and the
// loop still records the outcome.
func (b *Bridge) Submit(ctx context.Context, claim SignedClaim) (*models.Transaction, error) {
	if err := validateClaim(&claim); err != nil {
		return nil, err
	}

	pending := &models.Transaction{
		TransactionUUID:     claim.TransactionUUID,
		FacilityID:          claim.FacilityID,
		Status:              models.TransactionStatusPending,
		SubmissionTimestamp: b.clock.Now().UTC(),
		RequestPayload:      string(claim.Payload),
		Signature:           claim.Signature,
	}
	created, stored, err := b.ledger.CreatePending(ctx, pending)
	if err != nil {
		return nil, err
	}
	if stored.FacilityID != claim.FacilityID {
		return nil, claimerr.New(claimerr.KindInvalidPayload, "transaction %s belongs to another facility", claim.TransactionUUID)
	}
	if stored.IsTerminal() {
		log.Infof("[Bridge] %s already %s, not resubmitting", stored.TransactionUUID, stored.Status)
		return stored, nil
	}
	if created {
		b.incr(ctx, "created")
	}
	return b.await(ctx, stored)
}

// Resume drives an existing non-terminal transaction, as after a restart.
func (b *Bridge) Resume(ctx context.Context, transactionUUID string) (*models.Transaction, error) {
	tx, err := b.ledger.GetByUUID(ctx, transactionUUID)
	if err != nil {
		return nil, err
	}
	if tx.IsTerminal() {
		return tx, nil
	}
	return b.await(ctx, tx)
}

// GetTransactionStatus is a pure ledger read.
func (b *Bridge) GetTransactionStatus(ctx context.Context, transactionUUID string) (*models.Transaction, error) {
	id, err := uuid.Parse(transactionUUID)
	if err != nil {
		return nil, claimerr.New(claimerr.KindNotFound, "transaction %s not found", transactionUUID)
	}
	return b.ledger.GetByUUID(ctx, id.String())
}

// GetFacilityTransactions lists a facility's transactions, newest first.
func (b *Bridge) GetFacilityTransactions(ctx context.Context, facilityID uint, limit int) ([]models.Transaction, error) {
	return b.ledger.ListByFacility(ctx, facilityID, limit)
}

// Wait stops new attempt loops from starting and blocks until the running
// ones have finished or ctx ends. Submissions arriving afterwards stay
// pending for the recovery sweeper.
func (b *Bridge) Wait(ctx context.Context) error {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) await(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	detached := context.WithoutCancel(ctx)
	snapshot := *tx
	ch := b.group.DoChan(tx.TransactionUUID, func() (any, error) {
		if !b.track() {
			return &snapshot, fmt.Errorf("%w: bridge is shutting down", ErrStillRunning)
		}
		defer b.wg.Done()
		return b.run(detached, &snapshot)
	})

	select {
	case res := <-ch:
		current, _ := res.Val.(*models.Transaction)
		return current, res.Err
	case <-ctx.Done():
		current, err := b.ledger.GetByUUID(detached, tx.TransactionUUID)
		if err != nil {
			current = tx
		}
		return current, fmt.Errorf("%w: %w", ErrStillRunning, ctx.Err())
	}
}

// track registers a starting loop with wg unless Wait has been called.
func (b *Bridge) track() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return false
	}
	b.wg.Add(1)
	return true
}

// run is the attempt loop. It owns the transaction until a terminal status
// is written.
func (b *Bridge) run(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	if b.locker != nil {
		release, err := b.locker.Acquire(ctx, tx.TransactionUUID, b.cfg.LockTTL)
		switch {
		case errors.Is(err, cache.ErrLockHeld):
			log.Infof("[Bridge] %s is being submitted by another instance", tx.TransactionUUID)
			return tx, ErrStillRunning
		case err != nil:
			log.Warnf("[Bridge] lock unavailable for %s, continuing: %v", tx.TransactionUUID, err)
		default:
			defer release()
		}
	}

	// A previous loop may have finished between the caller's read and now.
	current, err := b.ledger.GetByUUID(ctx, tx.TransactionUUID)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		return current, nil
	}
	tx = current

	req := SubmitRequest{
		TransactionUUID: tx.TransactionUUID,
		FacilityID:      tx.FacilityID,
		Payload:         []byte(tx.RequestPayload),
		Signature:       tx.Signature,
	}
	retries := tx.RetryCount

	for {
		a := b.try(ctx, req)
		b.incr(ctx, "attempts")

		switch a.kind {
		case attemptSucceeded:
			return b.finalize(ctx, tx.TransactionUUID, models.TransactionOutcome{
				Status:                a.status,
				RetryCount:            retries,
				HTTPStatus:            a.httpStatus,
				ExternalTransactionID: a.externalID,
				ResponsePayload:       a.body,
			})

		case attemptPermanent:
			log.Errorf("[Bridge] %s failed permanently: %s", tx.TransactionUUID, a.message)
			return b.finalize(ctx, tx.TransactionUUID, failedOutcome(a.failure(), retries, a))
		}

		retries++
		if retries >= b.cfg.MaxRetries {
			log.Errorf("[Bridge] %s failed after %d attempts: %s", tx.TransactionUUID, retries, a.message)
			exhausted := claimerr.New(claimerr.KindTransientSubmission, "retries exhausted: %s", a.message)
			return b.finalize(ctx, tx.TransactionUUID, failedOutcome(exhausted, retries, a))
		}

		if err := b.ledger.MarkRetrying(ctx, tx.TransactionUUID, retries, a.httpStatus, a.message); err != nil {
			log.Warnf("[Bridge] could not record retry %d for %s: %v", retries, tx.TransactionUUID, err)
		}
		b.incr(ctx, "retries")

		delay := b.backoff(retries)
		log.Warnf("[Bridge] %s attempt %d failed (%s), retrying in %s", tx.TransactionUUID, retries, a.message, delay)
		<-b.clock.After(delay)
	}
}

func failedOutcome(failure *claimerr.Error, retries int, a attempt) models.TransactionOutcome {
	return models.TransactionOutcome{
		Status:          models.TransactionStatusFailed,
		RetryCount:      retries,
		HTTPStatus:      a.httpStatus,
		ErrorMessage:    failure.Message,
		ErrorKind:       string(failure.Kind),
		ResponsePayload: a.body,
	}
}

func (b *Bridge) try(ctx context.Context, req SubmitRequest) attempt {
	actx := ctx
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}
	resp, err := b.exchange.Submit(actx, req)
	return classify(resp, err)
}

// backoff returns BackoffBase^retries seconds, plus up to 25% jitter when
// enabled.
func (b *Bridge) backoff(retries int) time.Duration {
	d := time.Duration(math.Pow(b.cfg.BackoffBase, float64(retries)) * float64(time.Second))
	if b.cfg.Jitter {
		d += time.Duration(rand.Float64() * 0.25 * float64(d))
	}
	return d
}

// finalize writes the terminal outcome once. If the row was already
// terminal the stored record wins.
func (b *Bridge) finalize(ctx context.Context, transactionUUID string, outcome models.TransactionOutcome) (*models.Transaction, error) {
	outcome.ResponseTimestamp = b.clock.Now().UTC()

	var err error
	for i := 0; i < finalizeAttempts; i++ {
		var applied bool
		applied, err = b.ledger.Finalize(ctx, transactionUUID, outcome)
		if err == nil {
			if applied {
				b.incr(ctx, outcome.Status)
				log.Infof("[Bridge] %s -> %s (http %d, retries %d)", transactionUUID, outcome.Status, outcome.HTTPStatus, outcome.RetryCount)
			}
			return b.ledger.GetByUUID(ctx, transactionUUID)
		}
		if !claimerr.IsRetryable(err) {
			break
		}
		<-b.clock.After(time.Second)
	}
	log.Errorf("[Bridge] could not record %s for %s: %v", outcome.Status, transactionUUID, err)
	return nil, err
}

func (b *Bridge) incr(ctx context.Context, event string) {
	if b.counters != nil {
		b.counters.Incr(ctx, event)
	}
}

func validateClaim(c *SignedClaim) error {
	if c.FacilityID == 0 {
		return claimerr.New(claimerr.KindInvalidPayload, "facility_id is required")
	}
	if strings.TrimSpace(c.Signature) == "" {
		return claimerr.New(claimerr.KindInvalidPayload, "signature is required")
	}
	if !json.Valid(c.Payload) {
		return claimerr.New(claimerr.KindInvalidPayload, "payload must be a JSON document")
	}
	if c.TransactionUUID == "" {
		c.TransactionUUID = uuid.NewString()
		return nil
	}
	id, err := uuid.Parse(c.TransactionUUID)
	if err != nil {
		return claimerr.Wrap(claimerr.KindInvalidPayload, err, "transaction_uuid")
	}
	c.TransactionUUID = id.String()
	return nil
}
