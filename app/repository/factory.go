package repository

import (
	"sync"

	"gorm.io/gorm"

	"github.com/sbsbridge/claimbridge/internal/pkg/database"
)

// Factory builds the repository set once per process. All repositories share
// the same connection pool and gate.
type Factory struct {
	db     *gorm.DB
	gate   *database.Gate
	ledger TransactionRepository

	once  sync.Once
	repos *Repositories
}

// FactoryOption adjusts what the factory hands out.
type FactoryOption func(*Factory)

// WithLedger replaces the gorm ledger, e.g. with a MemoryTransactionRepository.
func WithLedger(l TransactionRepository) FactoryOption {
	return func(f *Factory) { f.ledger = l }
}

func NewFactory(db *gorm.DB, gate *database.Gate, opts ...FactoryOption) *Factory {
	f := &Factory{db: db, gate: gate}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Repositories returns the shared set, building it on first use.
func (f *Factory) Repositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db, f.gate)
		if f.ledger != nil {
			f.repos.Transaction = f.ledger
		}
	})
	return f.repos
}
