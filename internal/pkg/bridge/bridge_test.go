package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/app/repository"
	"github.com/sbsbridge/claimbridge/internal/pkg/cache"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

type scripted struct {
	status int
	body   string
	err    error
}

// scriptedExchange replays responses in order; the last one repeats.
type scriptedExchange struct {
	mu      sync.Mutex
	script  []scripted
	calls   []SubmitRequest
	release chan struct{}
}

func (e *scriptedExchange) Submit(ctx context.Context, req SubmitRequest) (*ExchangeResponse, error) {
	if e.release != nil {
		<-e.release
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	i := len(e.calls)
	e.calls = append(e.calls, req)
	if i >= len(e.script) {
		i = len(e.script) - 1
	}
	s := e.script[i]
	if s.err != nil {
		return nil, s.err
	}
	return &ExchangeResponse{StatusCode: s.status, Body: []byte(s.body)}, nil
}

func (e *scriptedExchange) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// recordingClock fires timers immediately unless gate is set, and records
// every requested delay.
type recordingClock struct {
	mu      sync.Mutex
	now     time.Time
	delays  []time.Duration
	gate    chan struct{}
	waiting chan struct{}
}

func newClock() *recordingClock {
	return &recordingClock{now: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *recordingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
	now, gate, waiting := c.now, c.gate, c.waiting
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if waiting != nil {
		select {
		case waiting <- struct{}{}:
		default:
		}
	}
	if gate == nil {
		ch <- now
		return ch
	}
	go func() {
		<-gate
		ch <- now
	}()
	return ch
}

func (c *recordingClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

const (
	accepted = `{"resourceType":"ClaimResponse","id":"NPH-778812","outcome":"complete"}`
	payload  = `{"resourceType":"Bundle","type":"message","entry":[]}`
)

func newBridge(t *testing.T, ex Exchange, clock Clock, opts ...Option) (*Bridge, *repository.MemoryTransactionRepository) {
	t.Helper()
	ledger := repository.NewMemoryTransactionRepository()
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(ledger, ex, DefaultConfig(), opts...), ledger
}

func signed(id string) SignedClaim {
	return SignedClaim{TransactionUUID: id, FacilityID: 1, Payload: []byte(payload), Signature: "c2ln"}
}

func TestSubmit_RetriesThenAccepted(t *testing.T) {
	ex := &scriptedExchange{script: []scripted{{status: 500}, {status: 500}, {status: 201, body: accepted}}}
	clock := newClock()
	b, _ := newBridge(t, ex, clock)

	tx, err := b.Submit(context.Background(), signed(""))
	require.NoError(t, err)

	assert.Equal(t, models.TransactionStatusSubmittedAccepted, tx.Status)
	assert.Equal(t, 2, tx.RetryCount)
	assert.Equal(t, 201, tx.HTTPStatus)
	require.NotNil(t, tx.ExternalTransactionID)
	assert.Equal(t, "NPH-778812", *tx.ExternalTransactionID)
	assert.Nil(t, tx.ErrorMessage)
	assert.NotNil(t, tx.ResponseTimestamp)
	assert.Equal(t, 3, ex.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, clock.Delays())

	_, err = uuid.Parse(tx.TransactionUUID)
	assert.NoError(t, err)
	for _, call := range ex.calls {
		assert.Equal(t, tx.TransactionUUID, call.TransactionUUID)
		assert.Equal(t, "c2ln", call.Signature)
	}
}

func TestSubmit_TerminalTransactionIsNotResubmitted(t *testing.T) {
	ex := &scriptedExchange{script: []scripted{{status: 200, body: accepted}}}
	b, _ := newBridge(t, ex, newClock())
	id := uuid.NewString()

	first, err := b.Submit(context.Background(), signed(id))
	require.NoError(t, err)

	second, err := b.Submit(context.Background(), signed(id))
	require.NoError(t, err)

	assert.Equal(t, 1, ex.Calls())
	assert.Equal(t, first, second)
}

func TestSubmit_Classification(t *testing.T) {
	tests := []struct {
		name        string
		script      []scripted
		wantStatus  string
		wantRetries int
		wantCalls   int
		wantHTTP    int
		wantErrMsg  string
		wantFailure error
	}{
		{
			name:       "4xx is permanent",
			script:     []scripted{{status: 400, body: `{"issue":"bad signature"}`}},
			wantStatus: models.TransactionStatusFailed, wantCalls: 1, wantHTTP: 400,
			wantErrMsg: "rejected submission with 400", wantFailure: claimerr.ErrPermanentSubmission,
		},
		{
			name:       "malformed 2xx is permanent",
			script:     []scripted{{status: 200, body: `<html>ok</html>`}},
			wantStatus: models.TransactionStatusFailed, wantCalls: 1, wantHTTP: 200,
			wantErrMsg: "malformed exchange response", wantFailure: claimerr.ErrPermanentSubmission,
		},
		{
			name:       "2xx without outcome is permanent",
			script:     []scripted{{status: 200, body: `{"id":"x"}`}},
			wantStatus: models.TransactionStatusFailed, wantCalls: 1, wantHTTP: 200,
			wantErrMsg: "no outcome", wantFailure: claimerr.ErrPermanentSubmission,
		},
		{
			name:       "429 is retried and denial is terminal",
			script:     []scripted{{status: 429}, {status: 200, body: `{"outcome":"error","id":"NPH-2"}`}},
			wantStatus: models.TransactionStatusSubmittedDenied, wantRetries: 1, wantCalls: 2, wantHTTP: 200,
		},
		{
			name:       "network errors are retried",
			script:     []scripted{{err: errors.New("dial tcp: connection refused")}, {status: 201, body: accepted}},
			wantStatus: models.TransactionStatusSubmittedAccepted, wantRetries: 1, wantCalls: 2, wantHTTP: 201,
		},
		{
			name:       "retries exhausted",
			script:     []scripted{{status: 503}},
			wantStatus: models.TransactionStatusFailed, wantRetries: 3, wantCalls: 3, wantHTTP: 503,
			wantErrMsg: "retries exhausted", wantFailure: claimerr.ErrTransientSubmission,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &scriptedExchange{script: tt.script}
			b, _ := newBridge(t, ex, newClock())

			tx, err := b.Submit(context.Background(), signed(""))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, tx.Status)
			assert.Equal(t, tt.wantRetries, tx.RetryCount)
			assert.Equal(t, tt.wantCalls, ex.Calls())
			assert.Equal(t, tt.wantHTTP, tx.HTTPStatus)
			if tt.wantErrMsg != "" {
				require.NotNil(t, tx.ErrorMessage)
				assert.Contains(t, *tx.ErrorMessage, tt.wantErrMsg)
			} else {
				assert.Nil(t, tx.ErrorMessage)
			}
			if tt.wantFailure != nil {
				failure := tx.Failure()
				assert.ErrorIs(t, failure, tt.wantFailure)
				assert.Equal(t, tt.wantFailure == claimerr.ErrTransientSubmission, claimerr.IsRetryable(failure))
				require.NotNil(t, tx.ErrorKind)
				assert.Equal(t, string(claimerr.KindOf(tt.wantFailure)), *tx.ErrorKind)
			} else {
				assert.NoError(t, tx.Failure())
				assert.Nil(t, tx.ErrorKind)
			}
		})
	}
}

func TestSubmit_CallerCancellationStillRecordsOutcome(t *testing.T) {
	ex := &scriptedExchange{script: []scripted{{status: 500}, {status: 201, body: accepted}}}
	clock := newClock()
	clock.gate = make(chan struct{})
	clock.waiting = make(chan struct{}, 1)
	b, _ := newBridge(t, ex, clock)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-clock.waiting
		cancel()
	}()

	tx, err := b.Submit(ctx, signed(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStillRunning)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, tx)
	assert.Equal(t, models.TransactionStatusRetrying, tx.Status)

	close(clock.gate)
	waitCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	require.NoError(t, b.Wait(waitCtx))

	final, err := b.GetTransactionStatus(context.Background(), tx.TransactionUUID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusSubmittedAccepted, final.Status)
	assert.Equal(t, 1, final.RetryCount)
	assert.Equal(t, 2, ex.Calls())
}

func TestWait_NoLoopsStartAfterShutdown(t *testing.T) {
	ex := &scriptedExchange{script: []scripted{{status: 201, body: accepted}}}
	b, ledger := newBridge(t, ex, newClock())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Wait(ctx))

	tx, err := b.Submit(context.Background(), signed(""))
	assert.ErrorIs(t, err, ErrStillRunning)
	require.NotNil(t, tx)
	assert.Equal(t, models.TransactionStatusPending, tx.Status)
	assert.Equal(t, 0, ex.Calls())

	stored, err := ledger.GetByUUID(context.Background(), tx.TransactionUUID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, stored.Status)
	require.NoError(t, b.Wait(ctx))
}

func TestSubmit_ConcurrentCallsShareOneLoop(t *testing.T) {
	ex := &scriptedExchange{script: []scripted{{status: 201, body: accepted}}, release: make(chan struct{})}
	b, _ := newBridge(t, ex, newClock())
	id := uuid.NewString()

	var wg sync.WaitGroup
	results := make([]*models.Transaction, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := b.Submit(context.Background(), signed(id))
			assert.NoError(t, err)
			results[i] = tx
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(ex.release)
	wg.Wait()

	assert.Equal(t, 1, ex.Calls())
	for _, tx := range results {
		require.NotNil(t, tx)
		assert.Equal(t, models.TransactionStatusSubmittedAccepted, tx.Status)
	}
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, cache.ErrLockHeld
}

func TestSubmit_LockHeldElsewhere(t *testing.T) {
	ex := &scriptedExchange{script: []scripted{{status: 201, body: accepted}}}
	b, _ := newBridge(t, ex, newClock(), WithLocker(heldLocker{}))

	tx, err := b.Submit(context.Background(), signed(""))
	assert.ErrorIs(t, err, ErrStillRunning)
	require.NotNil(t, tx)
	assert.Equal(t, models.TransactionStatusPending, tx.Status)
	assert.Zero(t, ex.Calls())
}

func TestSubmit_RedisLockSerializesReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ex := &scriptedExchange{script: []scripted{{status: 201, body: accepted}}}
	b, _ := newBridge(t, ex, newClock(), WithLocker(cache.NewLocker(rdb, "claims:submit:")))

	held := uuid.NewString()
	require.NoError(t, mr.Set("claims:submit:"+held, "other-replica"))
	_, err := b.Submit(context.Background(), signed(held))
	assert.ErrorIs(t, err, ErrStillRunning)
	assert.Zero(t, ex.Calls())

	tx, err := b.Submit(context.Background(), signed(""))
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusSubmittedAccepted, tx.Status)
	assert.False(t, mr.Exists("claims:submit:"+tx.TransactionUUID), "lock is released after the loop")
}

type countingCounters struct {
	mu     sync.Mutex
	events map[string]int
}

func (c *countingCounters) Incr(_ context.Context, event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[event]++
}

func TestSubmit_Counters(t *testing.T) {
	ex := &scriptedExchange{script: []scripted{{status: 502}, {status: 201, body: accepted}}}
	counters := &countingCounters{events: map[string]int{}}
	b, _ := newBridge(t, ex, newClock(), WithCounters(counters))

	_, err := b.Submit(context.Background(), signed(""))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"created": 1, "attempts": 2, "retries": 1, "submitted_accepted": 1}, counters.events)
}

func TestSubmit_RejectsInvalidInput(t *testing.T) {
	b, _ := newBridge(t, &scriptedExchange{script: []scripted{{status: 201, body: accepted}}}, newClock())
	ctx := context.Background()

	bad := signed("not-a-uuid")
	_, err := b.Submit(ctx, bad)
	assert.ErrorIs(t, err, claimerr.ErrInvalidPayload)

	noJSON := signed("")
	noJSON.Payload = []byte("{")
	_, err = b.Submit(ctx, noJSON)
	assert.ErrorIs(t, err, claimerr.ErrInvalidPayload)

	noSig := signed("")
	noSig.Signature = " "
	_, err = b.Submit(ctx, noSig)
	assert.ErrorIs(t, err, claimerr.ErrInvalidPayload)

	id := uuid.NewString()
	_, err = b.Submit(ctx, signed(id))
	require.NoError(t, err)
	other := signed(id)
	other.FacilityID = 2
	_, err = b.Submit(ctx, other)
	assert.ErrorIs(t, err, claimerr.ErrInvalidPayload)
}

func TestGetTransactionStatus_AcceptsAnyUUIDCase(t *testing.T) {
	ex := &scriptedExchange{script: []scripted{{status: 201, body: accepted}}}
	b, _ := newBridge(t, ex, newClock())

	tx, err := b.Submit(context.Background(), signed(strings.ToUpper(uuid.NewString())))
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(tx.TransactionUUID), tx.TransactionUUID)

	for _, id := range []string{tx.TransactionUUID, strings.ToUpper(tx.TransactionUUID)} {
		got, err := b.GetTransactionStatus(context.Background(), id)
		require.NoError(t, err, id)
		assert.Equal(t, tx.TransactionUUID, got.TransactionUUID)
		assert.Equal(t, models.TransactionStatusSubmittedAccepted, got.Status)
	}
}

func TestGetTransactionStatus_NotFound(t *testing.T) {
	b, _ := newBridge(t, &scriptedExchange{}, newClock())

	_, err := b.GetTransactionStatus(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, claimerr.ErrNotFound)
	assert.Equal(t, 404, claimerr.HTTPStatus(err))

	_, err = b.GetTransactionStatus(context.Background(), "garbage")
	assert.ErrorIs(t, err, claimerr.ErrNotFound)
}

func TestGetFacilityTransactions_NewestFirst(t *testing.T) {
	ex := &scriptedExchange{script: []scripted{{status: 201, body: accepted}}}
	clock := newClock()
	b, _ := newBridge(t, ex, clock)

	var ids []string
	for i := 0; i < 3; i++ {
		clock.mu.Lock()
		clock.now = clock.now.Add(time.Minute)
		clock.mu.Unlock()
		tx, err := b.Submit(context.Background(), signed(""))
		require.NoError(t, err)
		ids = append(ids, tx.TransactionUUID)
	}

	list, err := b.GetFacilityTransactions(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].TransactionUUID)
	assert.Equal(t, ids[1], list[1].TransactionUUID)
}

func TestBackoffJitterBounds(t *testing.T) {
	b := New(nil, nil, Config{BackoffBase: 2, Jitter: true})
	for i := 0; i < 20; i++ {
		d := b.backoff(2)
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
	b.cfg.Jitter = false
	assert.Equal(t, 2*time.Second, b.backoff(1))
}
