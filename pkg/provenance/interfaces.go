package provenance

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// ContentStore is content-addressed blob storage. Put derives the id
// from the bytes themselves, so writes are idempotent and safely
// retryable.
type ContentStore interface {
	// Put stores the blob and returns its content-derived id.
	Put(ctx context.Context, r io.Reader) (ContentID, error)

	// Get returns the blob for the given id, or ErrContentNotFound.
	Get(ctx context.Context, id ContentID) (io.ReadCloser, error)
}

// TxHandle identifies a submitted but not necessarily confirmed ledger
// transaction.
type TxHandle string

// Receipt is the ledger's proof that a transaction reached finality.
// TokenID is meaningful only for mint transactions.
type Receipt struct {
	Handle      TxHandle  `json:"handle"`
	TokenID     TokenID   `json:"token_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Ledger is the adapter over the append-only smart-contract state
// machine holding ownership and access facts. Submit calls are
// fire-and-forget: the engine, not the adapter, decides how long to
// wait for confirmation and what a timeout means.
//
// The contract itself re-checks ownership on grant and revoke and
// reverts when the caller is not the current owner; any engine-side
// check is a latency optimization, never a security boundary.
type Ledger interface {
	SubmitMint(ctx context.Context, owner Identity, contentRef ContentID) (TxHandle, error)
	SubmitGrant(ctx context.Context, caller Identity, tokenID TokenID, grantee Identity) (TxHandle, error)
	SubmitRevoke(ctx context.Context, caller Identity, tokenID TokenID, grantee Identity) (TxHandle, error)

	// AwaitConfirmation blocks until the transaction reaches finality,
	// the timeout elapses, or ctx is done. A timeout means the outcome
	// is unknown (ErrConfirmationTimeout); a contract rollback surfaces
	// as an error wrapping ErrTxReverted.
	AwaitConfirmation(ctx context.Context, handle TxHandle, timeout time.Duration) (*Receipt, error)

	// Token returns the authoritative record for a minted token.
	Token(ctx context.Context, tokenID TokenID) (*RecordToken, error)

	// Owner returns the current owner of the token.
	Owner(ctx context.Context, tokenID TokenID) (Identity, error)

	// HasAccess reports whether the grantee holds an active grant.
	HasAccess(ctx context.Context, tokenID TokenID, grantee Identity) (bool, error)

	// AccessList returns all identities holding an active grant.
	AccessList(ctx context.Context, tokenID TokenID) ([]Identity, error)
}

// IndexRepository persists the mutable, non-authoritative mirror of
// ledger facts plus query-only metadata (descriptions) that has no
// ledger equivalent.
type IndexRepository interface {
	// User operations. Identity is the natural key; GetOrCreateUser is
	// the lazy-creation path used on first contact with an identity.
	GetOrCreateUser(ctx context.Context, identity Identity) (*User, error)
	GetUserByIdentity(ctx context.Context, identity Identity) (*User, error)

	// Record operations.
	CreateRecord(ctx context.Context, entry *MedicalRecordEntry) error
	GetRecord(ctx context.Context, id uuid.UUID) (*MedicalRecordEntry, error)
	GetRecordByToken(ctx context.Context, tokenID TokenID) (*MedicalRecordEntry, error)
	ListRecordsByUser(ctx context.Context, userID uuid.UUID) ([]*MedicalRecordEntry, error)

	// AttachToken upserts the entry for a confirmed mint: a row already
	// carrying tokenID is overwritten with the given owner and content
	// ref; otherwise a pending row matching (userID, contentRef) is
	// promoted; otherwise a new row is inserted. Returns the resulting
	// entry.
	AttachToken(ctx context.Context, userID uuid.UUID, contentRef ContentID, tokenID TokenID) (*MedicalRecordEntry, error)

	// Grant mirror operations.
	UpsertGrant(ctx context.Context, grant *AccessGrant) error
	ListGrants(ctx context.Context, tokenID TokenID) ([]*AccessGrant, error)

	// ReplaceGrants overwrites the mirrored access list for a token with
	// ledger truth. Used by reconciliation; last-writer-from-ledger wins.
	ReplaceGrants(ctx context.Context, tokenID TokenID, grantees []Identity) error

	// ListRecordsSharedWith returns minted records whose tokens carry an
	// active grant for the identity.
	ListRecordsSharedWith(ctx context.Context, grantee Identity) ([]*MedicalRecordEntry, error)
}
