// Package memory provides an in-process Ledger for development and
// tests. It reproduces the record-token contract's semantics:
// sequential token ids starting at zero, owner-only grant and revoke
// enforced by reverting, idempotent access changes, and a configurable
// confirmation latency so timeout paths can be exercised.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/medchain/provenance/pkg/provenance"
)

type txKind int

const (
	txMint txKind = iota
	txGrant
	txRevoke
)

// transaction is a submitted, not-yet-necessarily-applied state change.
// Transactions apply in submission order once their confirmation time
// passes, whether or not anyone is awaiting them; that mirrors a real
// chain, where a timed-out submission can still confirm later.
type transaction struct {
	handle    provenance.TxHandle
	kind      txKind
	caller    provenance.Identity
	owner     provenance.Identity
	grantee   provenance.Identity
	tokenID   provenance.TokenID
	contentRef provenance.ContentID
	confirmAt time.Time
	applied   bool
	receipt   *provenance.Receipt
	err       error
}

type token struct {
	owner      provenance.Identity
	contentRef provenance.ContentID
	createdAt  time.Time
	access     map[provenance.Identity]bool
}

// Ledger is an in-memory implementation of provenance.Ledger
type Ledger struct {
	mu      sync.Mutex
	tokens  []*token
	txs     map[provenance.TxHandle]*transaction
	order   []*transaction
	latency time.Duration
	nextSeq int
}

// Option configures the ledger.
type Option func(*Ledger)

// WithLatency sets the simulated confirmation latency. Zero (the
// default) confirms transactions as soon as they are observed.
func WithLatency(d time.Duration) Option {
	return func(l *Ledger) {
		l.latency = d
	}
}

// New creates a new in-memory ledger
func New(opts ...Option) *Ledger {
	l := &Ledger{
		txs: make(map[provenance.TxHandle]*transaction),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) submit(tx *transaction) provenance.TxHandle {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx.handle = provenance.TxHandle(fmt.Sprintf("tx-%d", l.nextSeq))
	l.nextSeq++
	tx.confirmAt = time.Now().Add(l.latency)
	l.txs[tx.handle] = tx
	l.order = append(l.order, tx)
	return tx.handle
}

func (l *Ledger) SubmitMint(ctx context.Context, owner provenance.Identity, contentRef provenance.ContentID) (provenance.TxHandle, error) {
	if owner == "" {
		return "", fmt.Errorf("owner identity is required")
	}
	if contentRef == "" {
		return "", fmt.Errorf("content ref is required")
	}
	return l.submit(&transaction{kind: txMint, caller: owner, owner: owner, contentRef: contentRef}), nil
}

func (l *Ledger) SubmitGrant(ctx context.Context, caller provenance.Identity, tokenID provenance.TokenID, grantee provenance.Identity) (provenance.TxHandle, error) {
	return l.submit(&transaction{kind: txGrant, caller: caller, tokenID: tokenID, grantee: grantee}), nil
}

func (l *Ledger) SubmitRevoke(ctx context.Context, caller provenance.Identity, tokenID provenance.TokenID, grantee provenance.Identity) (provenance.TxHandle, error) {
	return l.submit(&transaction{kind: txRevoke, caller: caller, tokenID: tokenID, grantee: grantee}), nil
}

func (l *Ledger) AwaitConfirmation(ctx context.Context, handle provenance.TxHandle, timeout time.Duration) (*provenance.Receipt, error) {
	l.mu.Lock()
	tx, ok := l.txs[handle]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("unknown transaction %s", handle)
	}
	confirmAt := tx.confirmAt
	l.mu.Unlock()

	remaining := time.Until(confirmAt)
	if remaining > timeout {
		if err := sleep(ctx, timeout); err != nil {
			return nil, err
		}
		// The transaction stays pending and will still apply once its
		// confirmation time passes.
		return nil, fmt.Errorf("transaction %s: %w", handle, provenance.ErrConfirmationTimeout)
	}
	if err := sleep(ctx, remaining); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyDue(time.Now())

	if tx.err != nil {
		return nil, tx.err
	}
	receipt := *tx.receipt
	return &receipt, nil
}

func (l *Ledger) Token(ctx context.Context, tokenID provenance.TokenID) (*provenance.RecordToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyDue(time.Now())

	t, err := l.lookup(tokenID)
	if err != nil {
		return nil, err
	}
	return &provenance.RecordToken{
		TokenID:    tokenID,
		Owner:      t.owner,
		ContentRef: t.contentRef,
		CreatedAt:  t.createdAt,
	}, nil
}

func (l *Ledger) Owner(ctx context.Context, tokenID provenance.TokenID) (provenance.Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyDue(time.Now())

	t, err := l.lookup(tokenID)
	if err != nil {
		return "", err
	}
	return t.owner, nil
}

func (l *Ledger) HasAccess(ctx context.Context, tokenID provenance.TokenID, grantee provenance.Identity) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyDue(time.Now())

	t, err := l.lookup(tokenID)
	if err != nil {
		return false, err
	}
	return t.access[grantee], nil
}

func (l *Ledger) AccessList(ctx context.Context, tokenID provenance.TokenID) ([]provenance.Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyDue(time.Now())

	t, err := l.lookup(tokenID)
	if err != nil {
		return nil, err
	}
	grantees := make([]provenance.Identity, 0, len(t.access))
	for grantee, active := range t.access {
		if active {
			grantees = append(grantees, grantee)
		}
	}
	sort.Slice(grantees, func(i, j int) bool { return grantees[i] < grantees[j] })
	return grantees, nil
}

// lookup must be called with l.mu held.
func (l *Ledger) lookup(tokenID provenance.TokenID) (*token, error) {
	if tokenID < 0 || int(tokenID) >= len(l.tokens) {
		return nil, provenance.ErrTokenNotFound
	}
	return l.tokens[int(tokenID)], nil
}

// applyDue executes every pending transaction whose confirmation time
// has passed, in submission order. Must be called with l.mu held.
func (l *Ledger) applyDue(now time.Time) {
	for _, tx := range l.order {
		if tx.applied || tx.confirmAt.After(now) {
			continue
		}
		l.apply(tx)
	}
}

func (l *Ledger) apply(tx *transaction) {
	tx.applied = true

	switch tx.kind {
	case txMint:
		id := provenance.TokenID(len(l.tokens))
		l.tokens = append(l.tokens, &token{
			owner:      tx.owner,
			contentRef: tx.contentRef,
			createdAt:  tx.confirmAt,
			access:     make(map[provenance.Identity]bool),
		})
		tx.receipt = &provenance.Receipt{Handle: tx.handle, TokenID: id, ConfirmedAt: tx.confirmAt}

	case txGrant, txRevoke:
		t, err := l.lookup(tx.tokenID)
		if err != nil {
			tx.err = fmt.Errorf("%w: token %d does not exist", provenance.ErrTxReverted, tx.tokenID)
			return
		}
		if t.owner != tx.caller {
			tx.err = fmt.Errorf("%w: %s is not the owner of token %d", provenance.ErrTxReverted, tx.caller, tx.tokenID)
			return
		}
		if tx.kind == txGrant {
			t.access[tx.grantee] = true
		} else {
			delete(t.access, tx.grantee)
		}
		tx.receipt = &provenance.Receipt{Handle: tx.handle, TokenID: tx.tokenID, ConfirmedAt: tx.confirmAt}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
