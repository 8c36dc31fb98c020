package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"

	"github.com/sbsbridge/claimbridge/app/repository"
)

// recoveryParallelism bounds concurrent resumes per sweep.
const recoveryParallelism = 4

// Recovery periodically resumes transactions left pending or retrying by a
// process that stopped mid-submission.
type Recovery struct {
	bridge *Bridge
	ledger repository.TransactionRepository
	cfg    Config

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewRecovery(b *Bridge, ledger repository.TransactionRepository, cfg Config) *Recovery {
	return &Recovery{bridge: b, ledger: ledger, cfg: cfg}
}

// Start starts the sweeper
func (r *Recovery) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running || r.cfg.RecoveryInterval <= 0 {
		return
	}
	r.stopCh = make(chan struct{})
	r.running = true
	r.ticker = time.NewTicker(r.cfg.RecoveryInterval)

	r.wg.Add(1)
	go r.worker()
	log.Infof("[Recovery] Started (interval: %s, stale after: %s)", r.cfg.RecoveryInterval, r.cfg.RecoveryStaleAfter)
}

// Stop stops the sweeper and waits for the running sweep
func (r *Recovery) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.ticker.Stop()
	close(r.stopCh)
	r.running = false
	r.wg.Wait()
	log.Info("[Recovery] Stopped")
}

func (r *Recovery) worker() {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-r.stopCh
		cancel()
	}()

	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				log.Errorf("[Recovery] Sweep failed: %v", err)
			} else if n > 0 {
				log.Infof("[Recovery] Resumed %d stale transactions", n)
			}
		}
	}
}

// Sweep resumes every stale non-terminal transaction and waits for them.
// It returns how many were resumed.
func (r *Recovery) Sweep(ctx context.Context) (int, error) {
	before := r.bridge.clock.Now().UTC().Add(-r.cfg.RecoveryStaleAfter)
	stale, err := r.ledger.ListStale(ctx, before, r.cfg.RecoveryBatchSize)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recoveryParallelism)
	for _, tx := range stale {
		transactionUUID := tx.TransactionUUID
		log.Warnf("[Recovery] Resuming %s (status=%s, retries=%d, last update %s)", transactionUUID, tx.Status, tx.RetryCount, tx.UpdatedAt.Format(time.RFC3339))
		g.Go(func() error {
			if _, err := r.bridge.Resume(gctx, transactionUUID); err != nil {
				log.Warnf("[Recovery] %s not finished: %v", transactionUUID, err)
			}
			return nil
		})
	}
	return len(stale), g.Wait()
}
