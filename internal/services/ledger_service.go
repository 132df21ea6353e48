package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cbcbank/ledger/internal/audit"
	"github.com/cbcbank/ledger/internal/config"
	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/money"
)

const DefaultReversalWindow = 30 * time.Minute

// LedgerService turns deposit, withdrawal, transfer and reversal intents into
// balance mutations and ledger rows committed in a single unit of work.
type LedgerService struct {
	uow            *unitOfWork
	fees           *money.FeeCalculator
	limiter        *RateLimiter
	events         EventPublisher
	audit          *audit.Logger
	reversalWindow time.Duration
	now            func() time.Time
}

func NewLedgerService(store Store, cfg *config.LedgerConfig, events EventPublisher, auditLogger *audit.Logger) *LedgerService {
	if auditLogger == nil {
		auditLogger = audit.NewLogger()
	}
	return &LedgerService{
		uow:            newUnitOfWork(store, cfg.MaxRetries, auditLogger),
		fees:           money.NewFeeCalculator(cfg.FeeRate),
		limiter:        NewRateLimiter(cfg.RateLimitWindow),
		events:         events,
		audit:          auditLogger,
		reversalWindow: cfg.ReversalWindow,
		now:            time.Now,
	}
}

func (s *LedgerService) Fees() *money.FeeCalculator {
	return s.fees
}

// Deposit credits amount minus its fee. A repeated reference on the same
// account returns the original deposit without touching the balance.
func (s *LedgerService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, reference, description string) (*models.Transaction, error) {
	minor, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, errors.NewValidationError("accountId", "is required")
	}

	replayed := false
	txn, err := run(ctx, s.uow, "deposit", accountID, func(tx LedgerTx) (*models.Transaction, error) {
		replayed = false
		accounts, err := tx.LockAccounts(ctx, accountID)
		if err != nil {
			return nil, err
		}
		account := accounts[accountID]

		if reference != "" {
			existing, err := tx.DepositByReference(ctx, account.ID, reference)
			if err == nil {
				replayed = true
				return existing, nil
			}
			if !errors.IsNotFound(err) {
				return nil, err
			}
		}

		fee := s.fees.Fee(minor)
		balance, err := credit(account, minor-fee)
		if err != nil {
			return nil, err
		}
		if err := tx.UpdateAccountBalance(ctx, account, balance); err != nil {
			return nil, err
		}

		deposit := s.newTransaction(account, models.KindDeposit, models.DirectionCredit, minor, fee, reference, description)
		deposit.Status = models.StatusCompleted
		deposit.BalanceAfter = balance
		if err := tx.InsertTransaction(ctx, deposit); err != nil {
			return nil, err
		}
		return deposit, nil
	})
	if err != nil {
		s.logFailure("deposit", accountID, minor, err)
		return txn, err
	}

	if replayed {
		log.Printf("[LEDGER] Deposit reference %q already applied as %s", reference, txn.ID)
		return txn, nil
	}
	s.afterCommit(ctx, "deposit", txn)
	return txn, nil
}

func (s *LedgerService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, reference, description string) (*models.Transaction, error) {
	minor, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, errors.NewValidationError("accountId", "is required")
	}

	txn, err := run(ctx, s.uow, "withdraw", accountID, func(tx LedgerTx) (*models.Transaction, error) {
		accounts, err := tx.LockAccounts(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return s.applyDebit(ctx, tx, models.KindWithdrawal, accounts[accountID], nil, minor, reference, description)
	})
	return s.finish(ctx, "withdraw", accountID, minor, txn, err)
}

// Transfer debits the source by amount plus fee and credits the destination
// with the full amount. One debit row on the source records both legs.
func (s *LedgerService) Transfer(ctx context.Context, accountID, toAccountNumber string, amount decimal.Decimal, reference, description string) (*models.Transaction, error) {
	minor, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, errors.NewValidationError("accountId", "is required")
	}
	if toAccountNumber == "" {
		return nil, errors.NewValidationError("toAccountNumber", "is required")
	}

	txn, err := run(ctx, s.uow, "transfer", accountID, func(tx LedgerTx) (*models.Transaction, error) {
		destination, err := tx.AccountByNumber(ctx, toAccountNumber)
		if err != nil {
			return nil, err
		}
		if destination.ID == accountID {
			return nil, errors.ErrSameAccount
		}

		accounts, err := tx.LockAccounts(ctx, accountID, destination.ID)
		if err != nil {
			return nil, err
		}
		return s.applyDebit(ctx, tx, models.KindTransfer, accounts[accountID], accounts[destination.ID], minor, reference, description)
	})
	return s.finish(ctx, "transfer", accountID, minor, txn, err)
}

// applyDebit charges amount plus fee to source. Both accounts must already be
// locked by tx. Insufficient funds skips the limiter.
func (s *LedgerService) applyDebit(ctx context.Context, tx LedgerTx, kind models.TransactionKind, source, destination *models.Account, amount money.Amount, reference, description string) (*models.Transaction, error) {
	fee := s.fees.Fee(amount)
	debit := s.newTransaction(source, kind, models.DirectionDebit, amount, fee, reference, description)
	if destination != nil {
		debit.ToAccountNumber = destination.AccountNumber
		debit.CounterpartyUserID = destination.UserID
	}

	if source.Balance < amount+fee {
		return s.recordFailure(ctx, tx, debit, source, errors.ErrInsufficientFunds, shortfall(source.Balance, amount+fee))
	}

	decision, err := s.limiter.Check(ctx, tx, source, amount, debit.CreatedAt)
	if err != nil {
		return nil, err
	}
	if !decision.Approved {
		return s.recordFailure(ctx, tx, debit, source, errors.ErrLimitExceeded, decision.Reason)
	}

	var credited money.Amount
	if destination != nil {
		if credited, err = credit(destination, amount); err != nil {
			return nil, err
		}
	}

	balance := source.Balance - amount - fee
	if err := tx.UpdateAccountBalance(ctx, source, balance); err != nil {
		return nil, err
	}
	if destination != nil {
		if err := tx.UpdateAccountBalance(ctx, destination, credited); err != nil {
			return nil, err
		}
	}

	debit.Status = models.StatusCompleted
	debit.BalanceAfter = balance
	if err := tx.InsertTransaction(ctx, debit); err != nil {
		return nil, err
	}
	return debit, nil
}

// recordFailure persists a failed row with the balance untouched and returns
// it with a rejection the unit of work will still commit.
func (s *LedgerService) recordFailure(ctx context.Context, tx TransactionStore, txn *models.Transaction, account *models.Account, kind error, reason string) (*models.Transaction, error) {
	txn.Status = models.StatusFailed
	txn.FailureReason = reason
	if txn.Description == "" {
		txn.Description = reason
	}
	txn.BalanceAfter = account.Balance
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, errors.NewRejection(kind, reason)
}

// ReverseTransaction undoes a completed withdrawal or transfer inside the
// reversal window. Ineligible attempts are declined and still charged the
// reversal fee.
func (s *LedgerService) ReverseTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	if transactionID == "" {
		return nil, errors.NewValidationError("transactionId", "is required")
	}

	var payerID string
	txn, err := run(ctx, s.uow, "reverse", transactionID, func(tx LedgerTx) (*models.Transaction, error) {
		original, err := tx.LockTransaction(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		if !original.Reversible() {
			return nil, errors.ErrNotReversible
		}
		if original.IsReversed {
			return nil, errors.ErrAlreadyReversed
		}
		payerID = original.AccountID

		ids := []string{original.AccountID}
		var counterpartyID string
		if original.Kind == models.KindTransfer && original.ToAccountNumber != "" {
			counterparty, err := tx.AccountByNumber(ctx, original.ToAccountNumber)
			if err != nil {
				return nil, err
			}
			counterpartyID = counterparty.ID
			ids = append(ids, counterpartyID)
		}

		accounts, err := tx.LockAccounts(ctx, ids...)
		if err != nil {
			return nil, err
		}
		payer := accounts[original.AccountID]
		counterparty := accounts[counterpartyID]

		fee := s.fees.Fee(original.Amount)
		reversal := s.newTransaction(payer, models.KindReversal, models.DirectionCredit, original.Amount, fee,
			original.Reference, fmt.Sprintf("reversal of %s", original.ID))
		reversal.ReversalOf = original.ID
		reversal.ToAccountNumber = original.ToAccountNumber
		reversal.CounterpartyUserID = original.CounterpartyUserID

		if reason := s.reversalDeclineReason(original, counterparty, reversal.CreatedAt); reason != "" {
			return s.declineReversal(ctx, tx, original, reversal, payer, reason)
		}

		balance, err := credit(payer, original.Amount-fee)
		if err != nil {
			return nil, err
		}
		if err := tx.UpdateAccountBalance(ctx, payer, balance); err != nil {
			return nil, err
		}
		if counterparty != nil {
			if err := tx.UpdateAccountBalance(ctx, counterparty, counterparty.Balance-original.Amount); err != nil {
				return nil, err
			}
		}
		if err := tx.MarkReversed(ctx, original.ID, models.ReversalCompleted, reversal.CreatedAt); err != nil {
			return nil, err
		}

		reversal.Status = models.StatusCompleted
		reversal.BalanceAfter = balance
		if err := tx.InsertTransaction(ctx, reversal); err != nil {
			return nil, err
		}
		return reversal, nil
	})
	if err != nil {
		if txn != nil {
			s.audit.LogRejection("reverse", payerID, int64(txn.Amount), txn.FailureReason)
			publish(ctx, s.events, txn)
		}
		return txn, err
	}

	s.afterCommit(ctx, "reverse", txn)
	return txn, nil
}

func (s *LedgerService) reversalDeclineReason(original *models.Transaction, counterparty *models.Account, now time.Time) string {
	switch {
	case original.Status != models.StatusCompleted:
		return fmt.Sprintf("original transaction is %s", original.Status)
	case now.Sub(original.CreatedAt) > s.reversalWindow:
		return fmt.Sprintf("reversal window of %s has elapsed", s.reversalWindow)
	case counterparty != nil && counterparty.Balance < original.Amount:
		return "counterparty has insufficient funds"
	}
	return ""
}

// declineReversal flags the original as reversed-declined and charges the
// payer the reversal fee, capped at the available balance.
func (s *LedgerService) declineReversal(ctx context.Context, tx LedgerTx, original, reversal *models.Transaction, payer *models.Account, reason string) (*models.Transaction, error) {
	if reversal.Fee > payer.Balance {
		reversal.Fee = max(payer.Balance, 0)
	}

	balance := payer.Balance - reversal.Fee
	if reversal.Fee > 0 {
		if err := tx.UpdateAccountBalance(ctx, payer, balance); err != nil {
			return nil, err
		}
	}
	if err := tx.MarkReversed(ctx, original.ID, models.ReversalDeclined, reversal.CreatedAt); err != nil {
		return nil, err
	}

	reversal.Status = models.StatusDeclined
	reversal.FailureReason = reason
	reversal.BalanceAfter = balance
	if err := tx.InsertTransaction(ctx, reversal); err != nil {
		return nil, err
	}
	return reversal, errors.NewRejection(errors.ErrReversalNotEligible, reason)
}

func (s *LedgerService) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	if transactionID == "" {
		return nil, errors.NewValidationError("transactionId", "is required")
	}
	return read(ctx, s.uow, nil, func(tx LedgerTx) (*models.Transaction, error) {
		return tx.TransactionByID(ctx, transactionID)
	})
}

func (s *LedgerService) newTransaction(account *models.Account, kind models.TransactionKind, direction models.Direction, amount, fee money.Amount, reference, description string) *models.Transaction {
	now := s.now().UTC()
	return &models.Transaction{
		ID:            uuid.New().String(),
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		UserID:        account.UserID,
		Amount:        amount,
		Fee:           fee,
		Direction:     direction,
		Kind:          kind,
		Status:        models.StatusPending,
		Reference:     reference,
		Description:   description,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *LedgerService) finish(ctx context.Context, operation, accountID string, amount money.Amount, txn *models.Transaction, err error) (*models.Transaction, error) {
	if err != nil {
		s.logFailure(operation, accountID, amount, err)
		if errors.IsRecorded(err) {
			publish(ctx, s.events, txn)
		}
		return txn, err
	}
	s.afterCommit(ctx, operation, txn)
	return txn, nil
}

func (s *LedgerService) afterCommit(ctx context.Context, operation string, txn *models.Transaction) {
	if txn.Kind == models.KindTransfer {
		s.audit.LogTransfer(txn.ID, txn.AccountNumber, txn.ToAccountNumber, int64(txn.Amount), string(txn.Status))
	} else {
		s.audit.LogTransaction(operation, txn.ID, txn.AccountID, int64(txn.Amount), string(txn.Status))
	}
	publish(ctx, s.events, txn)
}

func (s *LedgerService) logFailure(operation, accountID string, amount money.Amount, err error) {
	switch {
	case errors.IsRecorded(err):
		s.audit.LogRejection(operation, accountID, int64(amount), err.Error())
	case errors.IsNotFound(err), errors.IsInvalidInput(err):
		log.Printf("[LEDGER] %s rejected for %s: %v", operation, accountID, err)
	case errors.Is(err, errors.ErrReconciliationRequired):
		// already audited by the unit of work
	default:
		s.audit.LogError(operation, accountID, err)
	}
}

func shortfall(available, required money.Amount) string {
	return fmt.Sprintf("available %s, required %s", available, required)
}

// credit returns the account balance after adding delta, refusing to wrap.
func credit(account *models.Account, delta money.Amount) (money.Amount, error) {
	balance, err := account.Balance.Add(delta)
	if err != nil {
		return 0, fmt.Errorf("%w: account %s: %v", errors.ErrBalanceRange, account.ID, err)
	}
	return balance, nil
}

// parseAmount converts a major-unit decimal to minor units exactly once.
func parseAmount(amount decimal.Decimal) (money.Amount, error) {
	minor, err := money.FromDecimal(amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrInvalidAmount, err)
	}
	if !minor.IsPositive() {
		return 0, errors.ErrInvalidAmount
	}
	return minor, nil
}
