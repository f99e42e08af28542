package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryRepository is a concurrency-safe in-memory ledger useful for unit
// tests. It mirrors the Postgres semantics, including gate evaluation under
// the same mutex as the write.
type MemoryRepository struct {
	mu           sync.RWMutex
	gates        []PostingGate
	accounts     map[string]Account
	transactions map[string]Transaction
	byReference  map[string]string
	byIdemKey    map[string]string
}

// NewMemoryRepository creates an in-memory ledger repository.
func NewMemoryRepository(gates ...PostingGate) *MemoryRepository {
	return &MemoryRepository{
		gates:        gates,
		accounts:     make(map[string]Account),
		transactions: make(map[string]Transaction),
		byReference:  make(map[string]string),
		byIdemKey:    make(map[string]string),
	}
}

// CreateAccount registers a chart-of-accounts entry.
func (r *MemoryRepository) CreateAccount(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[account.Code]; !exists {
		r.accounts[account.Code] = account
	}
	return nil
}

// GetAccount fetches account metadata by code.
func (r *MemoryRepository) GetAccount(_ context.Context, code string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[code]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	return account, nil
}

// Post writes the transaction and its entries under one lock.
func (r *MemoryRepository) Post(ctx context.Context, req PostRequest) (Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn := req.Transaction

	if txn.IdempotencyKey != "" {
		if priorID, exists := r.byIdemKey[txn.IdempotencyKey]; exists {
			prior := r.transactions[priorID]
			if prior.PayloadHash != txn.PayloadHash {
				return Transaction{}, false, fmt.Errorf("%w: key %s", ErrIdempotencyConflict, txn.IdempotencyKey)
			}
			return prior, true, nil
		}
	}

	if err := r.checkGatesLocked(ctx, txn.Tenant, txn.EffectiveDate, req.AllowSoftClosed); err != nil {
		return Transaction{}, false, err
	}
	if err := r.checkAccountsLocked(txn.Entries); err != nil {
		return Transaction{}, false, err
	}

	r.transactions[txn.ID] = txn
	r.byReference[txn.Reference] = txn.ID
	if txn.IdempotencyKey != "" {
		r.byIdemKey[txn.IdempotencyKey] = txn.ID
	}
	return txn, false, nil
}

// Reverse posts the mirrored transaction and links both ways.
func (r *MemoryRepository) Reverse(ctx context.Context, req ReverseRequest) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	original, ok := r.transactions[req.TransactionID]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, req.TransactionID)
	}
	if original.Status != StatusPosted {
		return Transaction{}, fmt.Errorf("%w: status %s", ErrAlreadyReversed, original.Status)
	}

	if err := r.checkGatesLocked(ctx, original.Tenant, req.EffectiveDate, req.AllowSoftClosed); err != nil {
		return Transaction{}, err
	}

	reversal := buildReversal(original, req)
	r.transactions[reversal.ID] = reversal
	r.byReference[reversal.Reference] = reversal.ID

	original.Status = StatusReversed
	original.ReversedByID = reversal.ID
	r.transactions[original.ID] = original

	return reversal, nil
}

// GetTransaction fetches a transaction by id.
func (r *MemoryRepository) GetTransaction(_ context.Context, id string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	txn, ok := r.transactions[id]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	return txn, nil
}

// GetTransactionByReference fetches a transaction by its unique reference.
func (r *MemoryRepository) GetTransactionByReference(_ context.Context, reference string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byReference[reference]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, reference)
	}
	return r.transactions[id], nil
}

// Balance folds over posted entries for the account.
func (r *MemoryRepository) Balance(_ context.Context, accountCode string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[accountCode]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrAccountNotFound, accountCode)
	}

	total := decimal.Zero
	for _, txn := range r.transactions {
		if txn.Status != StatusPosted && txn.Status != StatusReversed {
			continue
		}
		for _, e := range txn.Entries {
			if e.AccountCode != accountCode {
				continue
			}
			if e.Direction == account.NormalBalance {
				total = total.Add(e.Amount)
			} else {
				total = total.Sub(e.Amount)
			}
		}
	}
	return total, nil
}

// TrialBalance folds every account with postings for the tenant.
func (r *MemoryRepository) TrialBalance(_ context.Context, tenant string) ([]AccountBalance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	totals := make(map[string]decimal.Decimal)
	for _, txn := range r.transactions {
		if txn.Tenant != tenant || (txn.Status != StatusPosted && txn.Status != StatusReversed) {
			continue
		}
		for _, e := range txn.Entries {
			account := r.accounts[e.AccountCode]
			delta := e.Amount
			if e.Direction != account.NormalBalance {
				delta = delta.Neg()
			}
			totals[e.AccountCode] = totals[e.AccountCode].Add(delta)
		}
	}

	codes := make([]string, 0, len(totals))
	for code := range totals {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make([]AccountBalance, 0, len(codes))
	for _, code := range codes {
		out = append(out, AccountBalance{
			AccountCode:   code,
			NormalBalance: r.accounts[code].NormalBalance,
			Amount:        totals[code],
		})
	}
	return out, nil
}

// ListPostedReferences returns references of transactions posted for the
// tenant inside [from, to].
func (r *MemoryRepository) ListPostedReferences(_ context.Context, tenant string, from, to time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type dated struct {
		ref string
		at  time.Time
	}
	var found []dated
	for _, txn := range r.transactions {
		if txn.Tenant != tenant || (txn.Status != StatusPosted && txn.Status != StatusReversed) {
			continue
		}
		if txn.EffectiveDate.Before(from) || txn.EffectiveDate.After(to) {
			continue
		}
		found = append(found, dated{ref: txn.Reference, at: txn.EffectiveDate})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })

	refs := make([]string, 0, len(found))
	for _, f := range found {
		refs = append(refs, f.ref)
	}
	return refs, nil
}

func (r *MemoryRepository) checkGatesLocked(ctx context.Context, tenant string, date time.Time, allowSoftClosed bool) error {
	for _, gate := range r.gates {
		err := gate.CheckPosting(ctx, nil, tenant, date)
		if err == nil {
			continue
		}
		if allowSoftClosed && errors.Is(err, ErrOverrideRequired) {
			continue
		}
		return err
	}
	return nil
}

func (r *MemoryRepository) checkAccountsLocked(entries []Entry) error {
	for _, e := range entries {
		account, ok := r.accounts[e.AccountCode]
		if !ok {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, e.AccountCode)
		}
		if account.Status != AccountActive {
			return fmt.Errorf("%w: %s is %s", ErrAccountInactive, e.AccountCode, account.Status)
		}
	}
	return nil
}
