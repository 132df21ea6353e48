package services

import (
	"context"
	"fmt"
	"time"

	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/money"
)

const DefaultRateLimitWindow = 7 * 24 * time.Hour

type Decision struct {
	Approved bool
	Reason   string
}

// RateLimiter caps the debit volume of a single account over a trailing
// window. It never writes; callers record rejected attempts themselves.
type RateLimiter struct {
	window time.Duration
}

func NewRateLimiter(window time.Duration) *RateLimiter {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return &RateLimiter{window: window}
}

func (r *RateLimiter) Window() time.Duration {
	return r.window
}

func (r *RateLimiter) WindowStart(now time.Time) time.Time {
	return now.Add(-r.window)
}

// Authorize rejects when recent debits plus the new amount exceed the limit.
func (r *RateLimiter) Authorize(recent, amount, limit money.Amount) Decision {
	if recent+amount > limit {
		return Decision{
			Approved: false,
			Reason: fmt.Sprintf("weekly limit of %s exceeded: %s already debited, %s requested",
				limit, recent, amount),
		}
	}
	return Decision{Approved: true}
}

// Check reads the account's recent debits through tx, which must already
// hold the account lock so the sum cannot move underneath the decision.
func (r *RateLimiter) Check(ctx context.Context, tx TransactionStore, account *models.Account, amount money.Amount, now time.Time) (Decision, error) {
	recent, err := tx.SumRecentDebits(ctx, account.ID, r.WindowStart(now))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to sum recent debits: %w", err)
	}
	return r.Authorize(recent, amount, account.OverdraftLimit), nil
}
