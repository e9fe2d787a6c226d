package provenance

// Request/result DTOs

// RegisterRecordRequest contains parameters for registering an
// off-chain record entry.
type RegisterRecordRequest struct {
	Identity    Identity
	ContentRef  ContentID
	Description string
}

// MintRequest contains parameters for minting a record token.
type MintRequest struct {
	Owner      Identity
	ContentRef ContentID
}

// MintResult is the outcome of a confirmed mint. Unindexed is the
// saga-style partial-success flag: the token exists on-ledger but the
// index upsert failed, and a Reconcile call must close the gap. Entry
// is nil in that case.
type MintResult struct {
	Token     RecordToken         `json:"token"`
	Entry     *MedicalRecordEntry `json:"entry,omitempty"`
	Unindexed bool                `json:"unindexed,omitempty"`
}

// GrantAccessRequest contains parameters for granting token access.
type GrantAccessRequest struct {
	Owner   Identity
	TokenID TokenID
	Grantee Identity
}

// RevokeAccessRequest contains parameters for revoking token access.
type RevokeAccessRequest struct {
	Owner   Identity
	TokenID TokenID
	Grantee Identity
}
