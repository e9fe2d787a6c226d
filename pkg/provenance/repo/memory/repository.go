// Package memory provides an in-memory IndexRepository for development
// and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medchain/provenance/pkg/provenance"
)

// Repository implements provenance.IndexRepository using in-memory storage
type Repository struct {
	mu             sync.RWMutex
	users          map[provenance.Identity]*provenance.User
	records        map[uuid.UUID]*provenance.MedicalRecordEntry
	recordsByToken map[provenance.TokenID]uuid.UUID
	grants         map[provenance.TokenID]map[provenance.Identity]*provenance.AccessGrant
}

// New creates a new in-memory index repository
func New() *Repository {
	return &Repository{
		users:          make(map[provenance.Identity]*provenance.User),
		records:        make(map[uuid.UUID]*provenance.MedicalRecordEntry),
		recordsByToken: make(map[provenance.TokenID]uuid.UUID),
		grants:         make(map[provenance.TokenID]map[provenance.Identity]*provenance.AccessGrant),
	}
}

// User operations

func (r *Repository) GetOrCreateUser(ctx context.Context, identity provenance.Identity) (*provenance.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, exists := r.users[identity]; exists {
		userCopy := *user
		return &userCopy, nil
	}

	user := &provenance.User{
		ID:        uuid.New(),
		Identity:  identity,
		CreatedAt: time.Now().UTC(),
	}
	r.users[identity] = user

	userCopy := *user
	return &userCopy, nil
}

func (r *Repository) GetUserByIdentity(ctx context.Context, identity provenance.Identity) (*provenance.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[identity]
	if !exists {
		return nil, provenance.ErrUserResolutionFailed
	}
	userCopy := *user
	return &userCopy, nil
}

// Record operations

func (r *Repository) CreateRecord(ctx context.Context, entry *provenance.MedicalRecordEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entryCopy := *entry
	r.records[entry.ID] = &entryCopy
	if entry.TokenID != nil {
		r.recordsByToken[*entry.TokenID] = entry.ID
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, id uuid.UUID) (*provenance.MedicalRecordEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.records[id]
	if !exists {
		return nil, provenance.ErrRecordNotFound
	}
	entryCopy := *entry
	return &entryCopy, nil
}

func (r *Repository) GetRecordByToken(ctx context.Context, tokenID provenance.TokenID) (*provenance.MedicalRecordEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.recordsByToken[tokenID]
	if !exists {
		return nil, provenance.ErrRecordNotFound
	}
	entryCopy := *r.records[id]
	return &entryCopy, nil
}

func (r *Repository) ListRecordsByUser(ctx context.Context, userID uuid.UUID) ([]*provenance.MedicalRecordEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*provenance.MedicalRecordEntry
	for _, entry := range r.records {
		if entry.UserID == userID {
			entryCopy := *entry
			result = append(result, &entryCopy)
		}
	}

	// Sort by created_at descending
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (r *Repository) AttachToken(ctx context.Context, userID uuid.UUID, contentRef provenance.ContentID, tokenID provenance.TokenID) (*provenance.MedicalRecordEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	// A row already carrying this token is overwritten with ledger truth.
	if id, exists := r.recordsByToken[tokenID]; exists {
		entry := r.records[id]
		entry.UserID = userID
		entry.ContentRef = contentRef
		entry.UpdatedAt = now
		entryCopy := *entry
		return &entryCopy, nil
	}

	// Otherwise promote the oldest matching pending row.
	var pending *provenance.MedicalRecordEntry
	for _, entry := range r.records {
		if entry.UserID == userID && entry.ContentRef == contentRef && entry.TokenID == nil {
			if pending == nil || entry.CreatedAt.Before(pending.CreatedAt) {
				pending = entry
			}
		}
	}
	if pending != nil {
		id := tokenID
		pending.TokenID = &id
		pending.UpdatedAt = now
		r.recordsByToken[tokenID] = pending.ID
		entryCopy := *pending
		return &entryCopy, nil
	}

	// Mint without prior registration is legal; insert a fresh row.
	id := tokenID
	entry := &provenance.MedicalRecordEntry{
		ID:         uuid.New(),
		UserID:     userID,
		ContentRef: contentRef,
		TokenID:    &id,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.records[entry.ID] = entry
	r.recordsByToken[tokenID] = entry.ID

	entryCopy := *entry
	return &entryCopy, nil
}

// Grant mirror operations

func (r *Repository) UpsertGrant(ctx context.Context, grant *provenance.AccessGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byGrantee, exists := r.grants[grant.TokenID]
	if !exists {
		byGrantee = make(map[provenance.Identity]*provenance.AccessGrant)
		r.grants[grant.TokenID] = byGrantee
	}

	grantCopy := *grant
	byGrantee[grant.Grantee] = &grantCopy
	return nil
}

func (r *Repository) ListGrants(ctx context.Context, tokenID provenance.TokenID) ([]*provenance.AccessGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*provenance.AccessGrant
	for _, grant := range r.grants[tokenID] {
		if grant.Active {
			grantCopy := *grant
			result = append(result, &grantCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Grantee < result[j].Grantee
	})

	return result, nil
}

func (r *Repository) ReplaceGrants(ctx context.Context, tokenID provenance.TokenID, grantees []provenance.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	byGrantee := make(map[provenance.Identity]*provenance.AccessGrant, len(grantees))
	for _, grantee := range grantees {
		byGrantee[grantee] = &provenance.AccessGrant{
			TokenID:   tokenID,
			Grantee:   grantee,
			Active:    true,
			UpdatedAt: now,
		}
	}
	r.grants[tokenID] = byGrantee
	return nil
}

func (r *Repository) ListRecordsSharedWith(ctx context.Context, grantee provenance.Identity) ([]*provenance.MedicalRecordEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*provenance.MedicalRecordEntry
	for tokenID, byGrantee := range r.grants {
		grant, exists := byGrantee[grantee]
		if !exists || !grant.Active {
			continue
		}
		recordID, exists := r.recordsByToken[tokenID]
		if !exists {
			continue
		}
		entryCopy := *r.records[recordID]
		result = append(result, &entryCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}
