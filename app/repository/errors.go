package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
	"github.com/sbsbridge/claimbridge/internal/pkg/database"
)

// translate maps driver errors onto the pipeline taxonomy: missing rows
// become NotFoundError and connectivity problems ServiceUnavailableError.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	var typed *claimerr.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return claimerr.Wrap(claimerr.KindNotFound, err, "%s not found", what)
	}
	if isUnavailable(err) {
		return claimerr.Wrap(claimerr.KindServiceUnavailable, err, "database unavailable while loading %s", what)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// guarded runs fn while holding a database gate slot.
func guarded(ctx context.Context, gate *database.Gate, fn func() error) error {
	release, err := gate.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
