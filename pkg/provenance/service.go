package provenance

import (
	"context"
	"io"
)

// Engine is the record provenance and access-control orchestrator. All
// state-changing authorization decisions read ownership from the
// ledger; listing reads stay on the index hot path and may lag ledger
// truth.
type Engine interface {
	// UploadContent stores a blob and returns its content-derived id.
	UploadContent(ctx context.Context, r io.Reader) (ContentID, error)

	// DownloadContent returns the blob for a content id.
	DownloadContent(ctx context.Context, id ContentID) (io.ReadCloser, error)

	// RegisterRecord writes an index-only pending entry (no token yet).
	RegisterRecord(ctx context.Context, req RegisterRecordRequest) (*MedicalRecordEntry, error)

	// Mint creates the on-chain token for a content ref and indexes it.
	Mint(ctx context.Context, req MintRequest) (*MintResult, error)

	// GrantAccess adds a grantee to a token's access list.
	GrantAccess(ctx context.Context, req GrantAccessRequest) error

	// RevokeAccess removes a grantee from a token's access list.
	RevokeAccess(ctx context.Context, req RevokeAccessRequest) error

	// ListRecordsFor returns the identity's own records, index-only.
	ListRecordsFor(ctx context.Context, identity Identity) ([]*MedicalRecordEntry, error)

	// ListRecordsSharedWith returns records granted to the identity.
	ListRecordsSharedWith(ctx context.Context, identity Identity) ([]*MedicalRecordEntry, error)

	// Reconcile overwrites the token's index rows with ledger truth.
	Reconcile(ctx context.Context, tokenID TokenID) (*MedicalRecordEntry, error)
}
