package provenance

import (
	"errors"
	"fmt"
)

// Error taxonomy. Ledger and authorization failures surface verbatim to
// the caller; index failures after a confirmed ledger write are
// downgraded to warnings carried on the result, never returned as
// errors and never silently dropped.
var (
	// ErrStorageUnavailable indicates the content store could not accept
	// the write. Safe for the caller to retry: puts are idempotent by
	// content hash.
	ErrStorageUnavailable = errors.New("content store unavailable")

	// ErrContentNotFound indicates no blob exists for the content id.
	ErrContentNotFound = errors.New("content not found")

	// ErrUserResolutionFailed indicates an identity could not be mapped
	// to (or lazily created as) a user row. Retryable.
	ErrUserResolutionFailed = errors.New("user resolution failed")

	// ErrRecordNotFound indicates no index entry matched the query.
	ErrRecordNotFound = errors.New("record not found")

	// ErrTokenNotFound indicates the ledger holds no token with the
	// given id.
	ErrTokenNotFound = errors.New("token not found")

	// ErrMintRejected indicates the ledger refused or reverted the mint
	// transaction. Terminal: token ids are sequential and a resubmit
	// risks double-minting, so the engine never retries.
	ErrMintRejected = errors.New("mint rejected by ledger")

	// ErrMintTimeout indicates finality was not observed within the
	// bounded wait. The outcome is unknown, not failed: the transaction
	// may still confirm, so the caller must reconcile rather than
	// resubmit.
	ErrMintTimeout = errors.New("mint confirmation not observed within timeout")

	// ErrNotOwner indicates the caller does not currently own the token.
	// The engine's pre-submission check is advisory; the ledger contract
	// enforces the same rule authoritatively by reverting.
	ErrNotOwner = errors.New("caller is not the token owner")

	// ErrTxReverted indicates a submitted transaction executed and was
	// rolled back by the contract.
	ErrTxReverted = errors.New("transaction reverted")

	// ErrConfirmationTimeout indicates a confirmation wait expired with
	// the transaction outcome unknown.
	ErrConfirmationTimeout = errors.New("confirmation not observed within timeout")
)

// MintError wraps a failure in the mint pipeline with the content ref
// being minted.
type MintError struct {
	ContentRef ContentID
	Op         string
	Err        error
}

func (e *MintError) Error() string {
	return fmt.Sprintf("mint operation %s failed for content %s: %v", e.Op, e.ContentRef, e.Err)
}

func (e *MintError) Unwrap() error {
	return e.Err
}

// TokenError wraps a failure in a per-token operation (grant, revoke,
// reconcile).
type TokenError struct {
	TokenID TokenID
	Op      string
	Err     error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token operation %s failed for token %d: %v", e.Op, e.TokenID, e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// IndexError wraps a failure in the index layer.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index operation %s failed: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
