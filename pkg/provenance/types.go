package provenance

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity is an externally verified wallet address. It uniquely
// identifies a user; verification itself happens upstream in the auth
// gateway and the engine trusts the value it is handed.
type Identity string

// NormalizeIdentity lowercases a wallet address so that identities
// compare equal regardless of checksum casing.
func NormalizeIdentity(s string) Identity {
	return Identity(strings.ToLower(strings.TrimSpace(s)))
}

// ContentID is a hash-derived, content-addressed identifier for an
// immutable blob held by the content store.
type ContentID string

// TokenID is the ledger-assigned, sequential identifier of a minted
// record token.
type TokenID int64

// User is the index-side row for an identity. Created lazily on first
// use; never deleted.
type User struct {
	ID        uuid.UUID `json:"id"`
	Identity  Identity  `json:"identity"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordToken is the ledger-native entity representing one minted
// medical record. Tokens are never burned; ownership changes only via
// an explicit transfer, which access grants never cause.
type RecordToken struct {
	TokenID    TokenID   `json:"token_id"`
	Owner      Identity  `json:"owner"`
	ContentRef ContentID `json:"content_ref"`
	CreatedAt  time.Time `json:"created_at"`
}

// AccessGrant mirrors one ledger grant into the index. The Active flag
// on the ledger is authoritative; this copy reconciles toward it.
type AccessGrant struct {
	TokenID   TokenID   `json:"token_id"`
	Grantee   Identity  `json:"grantee"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MedicalRecordEntry is the index-only mirror of a record, used for
// queries the ledger cannot answer efficiently. TokenID is nil while
// the record exists off-chain only (registered but not yet minted).
type MedicalRecordEntry struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	ContentRef  ContentID `json:"content_ref"`
	Description string    `json:"description,omitempty"`
	TokenID     *TokenID  `json:"token_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Minted reports whether the entry is backed by an on-chain token.
func (e *MedicalRecordEntry) Minted() bool {
	return e.TokenID != nil
}
