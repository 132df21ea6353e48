package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/money"
)

// memStore is an in-memory Store. Units of work are serialized and each one
// works on a private copy that replaces the shared state on Commit.
type memStore struct {
	mu    sync.Mutex // held from Begin until Commit or Rollback
	state memState

	// conflicts makes the next N balance updates fail with a conflict.
	conflicts  int
	commitErrs []error
	begins     int
	commits    int
}

type memState struct {
	accounts   map[string]models.Account
	txns       []models.Transaction
	loans      map[string]models.Loan
	payments   map[string][]models.LoanPayment
	statements []models.Statement
	reports    []models.AuditReport
}

func newMemStore(accounts ...models.Account) *memStore {
	s := &memStore{state: memState{
		accounts: make(map[string]models.Account),
		loans:    make(map[string]models.Loan),
		payments: make(map[string][]models.LoanPayment),
	}}
	for _, a := range accounts {
		s.state.accounts[a.ID] = a
	}
	return s
}

func (s memState) clone() memState {
	c := memState{
		accounts:   make(map[string]models.Account, len(s.accounts)),
		txns:       slices.Clone(s.txns),
		loans:      make(map[string]models.Loan, len(s.loans)),
		payments:   make(map[string][]models.LoanPayment, len(s.payments)),
		statements: slices.Clone(s.statements),
		reports:    slices.Clone(s.reports),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = slices.Clone(v)
	}
	return c
}

func (s *memStore) Begin(ctx context.Context, opts *sql.TxOptions) (LedgerTx, error) {
	s.mu.Lock()
	s.begins++
	return &memTx{store: s, state: s.state.clone()}, nil
}

func (s *memStore) account(id string) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.accounts[id]
}

func (s *memStore) transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.txns)
}

func (s *memStore) loan(id string) models.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan := s.state.loans[id]
	loan.Payments = slices.Clone(s.state.payments[id])
	return loan
}

func (s *memStore) addTransaction(txn models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.txns = append(s.state.txns, txn)
}

func (s *memStore) addLoan(loan models.Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.payments[loan.ID] = slices.Clone(loan.Payments)
	loan.Payments = nil
	s.state.loans[loan.ID] = loan
}

type memTx struct {
	store *memStore
	state memState
	done  bool
}

func (t *memTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	defer t.store.mu.Unlock()

	if len(t.store.commitErrs) > 0 {
		err := t.store.commitErrs[0]
		t.store.commitErrs = t.store.commitErrs[1:]
		return err
	}
	t.store.state = t.state
	t.store.commits++
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) LockAccounts(ctx context.Context, ids ...string) (map[string]*models.Account, error) {
	out := make(map[string]*models.Account, len(ids))
	for _, id := range ids {
		account, ok := t.state.accounts[id]
		if !ok {
			return nil, errors.ErrAccountNotFound
		}
		out[id] = &account
	}
	return out, nil
}

func (t *memTx) AccountByID(ctx context.Context, id string) (*models.Account, error) {
	account, ok := t.state.accounts[id]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	return &account, nil
}

func (t *memTx) AccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	for _, account := range t.state.accounts {
		if account.AccountNumber == accountNumber {
			return &account, nil
		}
	}
	return nil, errors.ErrAccountNotFound
}

func (t *memTx) PrimaryAccountForUser(ctx context.Context, userID string) (*models.Account, error) {
	var found *models.Account
	for _, account := range t.state.accounts {
		if account.UserID != userID || account.AccountType == models.AccountTypeLoan {
			continue
		}
		if found == nil || account.CreatedAt.Before(found.CreatedAt) ||
			(account.CreatedAt.Equal(found.CreatedAt) && account.ID < found.ID) {
			a := account
			found = &a
		}
	}
	if found == nil {
		return nil, errors.ErrAccountNotFound
	}
	return found, nil
}

func (t *memTx) UpdateAccountBalance(ctx context.Context, account *models.Account, balance money.Amount) error {
	if t.store.conflicts > 0 {
		t.store.conflicts--
		return fmt.Errorf("%w: account %s changed since it was read", errors.ErrConcurrencyConflict, account.ID)
	}
	stored, ok := t.state.accounts[account.ID]
	if !ok || stored.Version != account.Version {
		return fmt.Errorf("%w: account %s changed since it was read", errors.ErrConcurrencyConflict, account.ID)
	}
	stored.Balance = balance
	stored.Version++
	t.state.accounts[account.ID] = stored

	account.Balance = balance
	account.Version++
	return nil
}

func (t *memTx) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.Kind == models.KindDeposit && txn.Status == models.StatusCompleted && txn.Reference != "" {
		if _, err := t.DepositByReference(ctx, txn.AccountID, txn.Reference); err == nil {
			return fmt.Errorf("%w: duplicate deposit reference", errors.ErrConcurrencyConflict)
		}
	}
	t.state.txns = append(t.state.txns, *txn)
	return nil
}

func (t *memTx) TransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	for _, txn := range t.state.txns {
		if txn.ID == id {
			return &txn, nil
		}
	}
	return nil, errors.ErrTransactionNotFound
}

func (t *memTx) LockTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return t.TransactionByID(ctx, id)
}

func (t *memTx) DepositByReference(ctx context.Context, accountID, reference string) (*models.Transaction, error) {
	for _, txn := range t.state.txns {
		if txn.AccountID == accountID && txn.Reference == reference &&
			txn.Kind == models.KindDeposit && txn.Status == models.StatusCompleted {
			return &txn, nil
		}
	}
	return nil, errors.ErrTransactionNotFound
}

func (t *memTx) MarkReversed(ctx context.Context, id string, status models.ReversalStatus, at time.Time) error {
	for i := range t.state.txns {
		if t.state.txns[i].ID != id {
			continue
		}
		if t.state.txns[i].IsReversed {
			return fmt.Errorf("%w: transaction %s already reversed", errors.ErrConcurrencyConflict, id)
		}
		t.state.txns[i].IsReversed = true
		t.state.txns[i].ReversalStatus = status
		t.state.txns[i].UpdatedAt = at
		return nil
	}
	return errors.ErrTransactionNotFound
}

func (t *memTx) SumRecentDebits(ctx context.Context, accountID string, since time.Time) (money.Amount, error) {
	var total money.Amount
	for _, txn := range t.state.txns {
		if txn.AccountID != accountID || txn.Direction != models.DirectionDebit {
			continue
		}
		switch txn.Kind {
		case models.KindWithdrawal, models.KindTransfer, models.KindLoanPayment:
		default:
			continue
		}
		if txn.Status != models.StatusCompleted || txn.ReversalStatus == models.ReversalCompleted {
			continue
		}
		if txn.CreatedAt.Before(since) {
			continue
		}
		total += txn.Amount
	}
	return total, nil
}

func (t *memTx) TransactionsSince(ctx context.Context, accountNumber string, since time.Time) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, txn := range t.state.txns {
		if txn.AccountNumber != accountNumber && txn.ToAccountNumber != accountNumber {
			continue
		}
		if txn.CreatedAt.Before(since) {
			continue
		}
		out = append(out, txn)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) InsertLoan(ctx context.Context, loan *models.Loan) error {
	stored := *loan
	stored.Payments = nil
	t.state.loans[loan.ID] = stored
	return nil
}

func (t *memTx) LoanByID(ctx context.Context, id string) (*models.Loan, error) {
	loan, ok := t.state.loans[id]
	if !ok {
		return nil, errors.ErrLoanNotFound
	}
	loan.Payments = slices.Clone(t.state.payments[id])
	return &loan, nil
}

func (t *memTx) LockLoan(ctx context.Context, id string) (*models.Loan, error) {
	return t.LoanByID(ctx, id)
}

func (t *memTx) LockLoanForUser(ctx context.Context, userID string) (*models.Loan, error) {
	var found *models.Loan
	for _, loan := range t.state.loans {
		if loan.UserID != userID {
			continue
		}
		switch {
		case found == nil:
		case (loan.Status == models.LoanStatusActive) != (found.Status == models.LoanStatusActive):
			if loan.Status != models.LoanStatusActive {
				continue
			}
		case !loan.CreatedAt.After(found.CreatedAt):
			continue
		}
		l := loan
		found = &l
	}
	if found == nil {
		return nil, errors.ErrLoanNotFound
	}
	return t.LoanByID(ctx, found.ID)
}

func (t *memTx) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	stored, ok := t.state.loans[loan.ID]
	if !ok || stored.Version != loan.Version {
		return fmt.Errorf("%w: loan %s changed since it was read", errors.ErrConcurrencyConflict, loan.ID)
	}
	updated := *loan
	updated.Payments = nil
	updated.Version++
	t.state.loans[loan.ID] = updated
	loan.Version++
	return nil
}

func (t *memTx) InsertLoanPayment(ctx context.Context, payment *models.LoanPayment) error {
	t.state.payments[payment.LoanID] = append(t.state.payments[payment.LoanID], *payment)
	return nil
}

func (t *memTx) InsertStatement(ctx context.Context, statement *models.Statement) error {
	t.state.statements = append(t.state.statements, *statement)
	return nil
}

func (t *memTx) StatementByID(ctx context.Context, id string) (*models.Statement, error) {
	for _, statement := range t.state.statements {
		if statement.ID == id {
			return &statement, nil
		}
	}
	return nil, errors.ErrStatementNotFound
}

func (t *memTx) StatementsByAccount(ctx context.Context, accountNumber string) ([]models.Statement, error) {
	out := []models.Statement{}
	for i := len(t.state.statements) - 1; i >= 0; i-- {
		if t.state.statements[i].AccountNumber == accountNumber {
			out = append(out, t.state.statements[i])
		}
	}
	return out, nil
}

func (t *memTx) InsertAuditReport(ctx context.Context, report *models.AuditReport) error {
	t.state.reports = append(t.state.reports, *report)
	return nil
}

func (t *memTx) LockAuditReport(ctx context.Context, id string) (*models.AuditReport, error) {
	for _, r := range t.state.reports {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, errors.ErrReportNotFound
}

func (t *memTx) MarkAuditReportReviewed(ctx context.Context, id string, at time.Time) error {
	for i := range t.state.reports {
		if t.state.reports[i].ID != id {
			continue
		}
		if t.state.reports[i].Status != models.ReportGenerated {
			return fmt.Errorf("%w: audit report %s changed since it was read", errors.ErrConcurrencyConflict, id)
		}
		t.state.reports[i].Status = models.ReportReviewed
		t.state.reports[i].ReviewedAt = &at
		return nil
	}
	return errors.ErrReportNotFound
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []LedgerEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

// fixedClock is a settable clock for services with a now field.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time {
	return c.t
}

func (c *fixedClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}
