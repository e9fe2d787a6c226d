package provenance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultConfirmTimeout bounds how long the engine waits for ledger
// finality before declaring the outcome unknown.
const DefaultConfirmTimeout = 30 * time.Second

// engine implements the Engine interface
type engine struct {
	store          ContentStore
	ledger         Ledger
	index          IndexRepository
	locks          *lockTable
	confirmTimeout time.Duration
	logger         *slog.Logger
}

// Option represents a functional option for configuring the engine
type Option func(*engine)

// WithContentStore sets the content-addressed blob store.
func WithContentStore(store ContentStore) Option {
	return func(e *engine) {
		e.store = store
	}
}

// WithLedger sets the ledger adapter.
func WithLedger(ledger Ledger) Option {
	return func(e *engine) {
		e.ledger = ledger
	}
}

// WithIndex sets the index repository.
func WithIndex(index IndexRepository) Option {
	return func(e *engine) {
		e.index = index
	}
}

// WithConfirmTimeout sets the bound on confirmation waits.
func WithConfirmTimeout(d time.Duration) Option {
	return func(e *engine) {
		e.confirmTimeout = d
	}
}

// WithLogger sets the structured logger used for warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *engine) {
		e.logger = logger
	}
}

// New creates a new engine instance with the given options
func New(options ...Option) (Engine, error) {
	e := &engine{
		locks:          newLockTable(),
		confirmTimeout: DefaultConfirmTimeout,
		logger:         slog.Default(),
	}

	for _, option := range options {
		option(e)
	}

	if e.ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if e.index == nil {
		return nil, fmt.Errorf("index repository is required")
	}
	if e.store == nil {
		return nil, fmt.Errorf("content store is required")
	}

	return e, nil
}

func (e *engine) UploadContent(ctx context.Context, r io.Reader) (ContentID, error) {
	// No retries here: puts are idempotent by content hash, so retry
	// policy belongs to the caller or the store's transport.
	id, err := e.store.Put(ctx, r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return id, nil
}

func (e *engine) DownloadContent(ctx context.Context, id ContentID) (io.ReadCloser, error) {
	rc, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrContentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return rc, nil
}

func (e *engine) RegisterRecord(ctx context.Context, req RegisterRecordRequest) (*MedicalRecordEntry, error) {
	identity := NormalizeIdentity(string(req.Identity))

	user, err := e.index.GetOrCreateUser(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserResolutionFailed, err)
	}

	now := time.Now().UTC()
	entry := &MedicalRecordEntry{
		ID:          uuid.New(),
		UserID:      user.ID,
		ContentRef:  req.ContentRef,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.index.CreateRecord(ctx, entry); err != nil {
		return nil, &IndexError{Op: "register", Err: err}
	}

	return entry, nil
}

func (e *engine) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	owner := NormalizeIdentity(string(req.Owner))

	handle, err := e.ledger.SubmitMint(ctx, owner, req.ContentRef)
	if err != nil {
		return nil, &MintError{ContentRef: req.ContentRef, Op: "submit", Err: fmt.Errorf("%w: %v", ErrMintRejected, err)}
	}

	receipt, err := e.ledger.AwaitConfirmation(ctx, handle, e.confirmTimeout)
	if err != nil {
		if errors.Is(err, ErrConfirmationTimeout) {
			// Unknown outcome, not failure. The transaction may still
			// confirm; resubmitting would risk a double mint, so the
			// caller must reconcile instead.
			return nil, &MintError{ContentRef: req.ContentRef, Op: "confirm", Err: ErrMintTimeout}
		}
		return nil, &MintError{ContentRef: req.ContentRef, Op: "confirm", Err: fmt.Errorf("%w: %v", ErrMintRejected, err)}
	}

	token := RecordToken{
		TokenID:    receipt.TokenID,
		Owner:      owner,
		ContentRef: req.ContentRef,
		CreatedAt:  receipt.ConfirmedAt,
	}

	unlock := e.locks.lock(receipt.TokenID)
	defer unlock()

	// From here the token exists on-ledger. Index failures downgrade to
	// the MintedButUnindexed outcome rather than erroring: the caller
	// still gets the confirmed token id, and Reconcile heals the gap.
	user, err := e.index.GetOrCreateUser(ctx, owner)
	if err != nil {
		e.logger.Warn("mint confirmed but user resolution failed; index needs reconcile",
			"token_id", token.TokenID, "owner", owner, "err", err)
		return &MintResult{Token: token, Unindexed: true}, nil
	}

	entry, err := e.index.AttachToken(ctx, user.ID, req.ContentRef, receipt.TokenID)
	if err != nil {
		e.logger.Warn("mint confirmed but index upsert failed; index needs reconcile",
			"token_id", token.TokenID, "owner", owner, "err", err)
		return &MintResult{Token: token, Unindexed: true}, nil
	}

	return &MintResult{Token: token, Entry: entry}, nil
}

func (e *engine) GrantAccess(ctx context.Context, req GrantAccessRequest) error {
	return e.changeAccess(ctx, "grant", req.Owner, req.TokenID, req.Grantee)
}

func (e *engine) RevokeAccess(ctx context.Context, req RevokeAccessRequest) error {
	return e.changeAccess(ctx, "revoke", req.Owner, req.TokenID, req.Grantee)
}

// changeAccess runs the shared grant/revoke pipeline: advisory owner
// check against the ledger (never the index), submit, await, mirror.
func (e *engine) changeAccess(ctx context.Context, op string, owner Identity, tokenID TokenID, grantee Identity) error {
	caller := NormalizeIdentity(string(owner))
	target := NormalizeIdentity(string(grantee))

	// Fail-fast check. Racy by nature: ownership can change between
	// this read and the submission, so the contract's own revert is the
	// authoritative enforcement.
	current, err := e.ledger.Owner(ctx, tokenID)
	if err != nil {
		return &TokenError{TokenID: tokenID, Op: op, Err: err}
	}
	if current != caller {
		return &TokenError{TokenID: tokenID, Op: op, Err: ErrNotOwner}
	}

	unlock := e.locks.lock(tokenID)
	defer unlock()

	var handle TxHandle
	if op == "grant" {
		handle, err = e.ledger.SubmitGrant(ctx, caller, tokenID, target)
	} else {
		handle, err = e.ledger.SubmitRevoke(ctx, caller, tokenID, target)
	}
	if err != nil {
		return &TokenError{TokenID: tokenID, Op: op, Err: err}
	}

	if _, err := e.ledger.AwaitConfirmation(ctx, handle, e.confirmTimeout); err != nil {
		if errors.Is(err, ErrTxReverted) {
			// The contract reverts access changes only when the caller
			// lost ownership between check and execution.
			return &TokenError{TokenID: tokenID, Op: op, Err: ErrNotOwner}
		}
		return &TokenError{TokenID: tokenID, Op: op, Err: err}
	}

	grant := &AccessGrant{
		TokenID:   tokenID,
		Grantee:   target,
		Active:    op == "grant",
		UpdatedAt: time.Now().UTC(),
	}
	if err := e.index.UpsertGrant(ctx, grant); err != nil {
		// Ledger write confirmed; the stale mirror is recoverable via
		// Reconcile, so warn instead of failing the call.
		e.logger.Warn("access change confirmed but grant mirror update failed; index needs reconcile",
			"op", op, "token_id", tokenID, "grantee", target, "err", err)
	}

	return nil
}

func (e *engine) ListRecordsFor(ctx context.Context, identity Identity) ([]*MedicalRecordEntry, error) {
	user, err := e.index.GetUserByIdentity(ctx, NormalizeIdentity(string(identity)))
	if err != nil {
		return nil, err
	}
	return e.index.ListRecordsByUser(ctx, user.ID)
}

func (e *engine) ListRecordsSharedWith(ctx context.Context, identity Identity) ([]*MedicalRecordEntry, error) {
	return e.index.ListRecordsSharedWith(ctx, NormalizeIdentity(string(identity)))
}

func (e *engine) Reconcile(ctx context.Context, tokenID TokenID) (*MedicalRecordEntry, error) {
	unlock := e.locks.lock(tokenID)
	defer unlock()

	// Idempotent projector: ledger state only moves forward, so
	// overwriting the index with whatever the ledger holds now is safe
	// to run concurrently with live grant/revoke traffic.
	token, err := e.ledger.Token(ctx, tokenID)
	if err != nil {
		return nil, &TokenError{TokenID: tokenID, Op: "reconcile", Err: err}
	}

	user, err := e.index.GetOrCreateUser(ctx, token.Owner)
	if err != nil {
		return nil, &TokenError{TokenID: tokenID, Op: "reconcile", Err: fmt.Errorf("%w: %v", ErrUserResolutionFailed, err)}
	}

	entry, err := e.index.AttachToken(ctx, user.ID, token.ContentRef, tokenID)
	if err != nil {
		return nil, &TokenError{TokenID: tokenID, Op: "reconcile", Err: err}
	}

	grantees, err := e.ledger.AccessList(ctx, tokenID)
	if err != nil {
		return nil, &TokenError{TokenID: tokenID, Op: "reconcile", Err: err}
	}
	if err := e.index.ReplaceGrants(ctx, tokenID, grantees); err != nil {
		return nil, &TokenError{TokenID: tokenID, Op: "reconcile", Err: err}
	}

	e.logger.Info("reconciled token from ledger",
		"token_id", tokenID, "owner", token.Owner, "grants", len(grantees))

	return entry, nil
}
