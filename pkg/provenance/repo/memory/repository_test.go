package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medchain/provenance/pkg/provenance"
)

func TestGetOrCreateUser(t *testing.T) {
	repo := New()
	ctx := context.Background()

	user, err := repo.GetOrCreateUser(ctx, "0xaaa")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, provenance.Identity("0xaaa"), user.Identity)
	assert.NotEqual(t, uuid.Nil, user.ID)

	t.Run("second call returns the same user", func(t *testing.T) {
		again, err := repo.GetOrCreateUser(ctx, "0xaaa")
		require.NoError(t, err)
		assert.Equal(t, user.ID, again.ID)
	})

	t.Run("lookup by identity", func(t *testing.T) {
		found, err := repo.GetUserByIdentity(ctx, "0xaaa")
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)
	})

	t.Run("unknown identity", func(t *testing.T) {
		_, err := repo.GetUserByIdentity(ctx, "0xzzz")
		assert.ErrorIs(t, err, provenance.ErrUserResolutionFailed)
	})
}

func TestCreateAndGetRecord(t *testing.T) {
	repo := New()
	ctx := context.Background()

	user, err := repo.GetOrCreateUser(ctx, "0xaaa")
	require.NoError(t, err)

	entry := &provenance.MedicalRecordEntry{
		ID:          uuid.New(),
		UserID:      user.ID,
		ContentRef:  "QmABC",
		Description: "mri scan",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.CreateRecord(ctx, entry))

	found, err := repo.GetRecord(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "mri scan", found.Description)
	assert.Nil(t, found.TokenID)

	t.Run("missing record", func(t *testing.T) {
		_, err := repo.GetRecord(ctx, uuid.New())
		assert.ErrorIs(t, err, provenance.ErrRecordNotFound)
	})

	t.Run("missing token mapping", func(t *testing.T) {
		_, err := repo.GetRecordByToken(ctx, 0)
		assert.ErrorIs(t, err, provenance.ErrRecordNotFound)
	})
}

func TestAttachToken(t *testing.T) {
	ctx := context.Background()

	t.Run("promotes the oldest pending row", func(t *testing.T) {
		repo := New()
		user, err := repo.GetOrCreateUser(ctx, "0xaaa")
		require.NoError(t, err)

		older := &provenance.MedicalRecordEntry{
			ID:         uuid.New(),
			UserID:     user.ID,
			ContentRef: "QmABC",
			CreatedAt:  time.Now().UTC().Add(-time.Hour),
		}
		newer := &provenance.MedicalRecordEntry{
			ID:         uuid.New(),
			UserID:     user.ID,
			ContentRef: "QmABC",
			CreatedAt:  time.Now().UTC(),
		}
		require.NoError(t, repo.CreateRecord(ctx, older))
		require.NoError(t, repo.CreateRecord(ctx, newer))

		entry, err := repo.AttachToken(ctx, user.ID, "QmABC", 7)
		require.NoError(t, err)
		assert.Equal(t, older.ID, entry.ID)
		require.NotNil(t, entry.TokenID)
		assert.Equal(t, provenance.TokenID(7), *entry.TokenID)

		unchanged, err := repo.GetRecord(ctx, newer.ID)
		require.NoError(t, err)
		assert.Nil(t, unchanged.TokenID)
	})

	t.Run("overwrites a row already carrying the token", func(t *testing.T) {
		repo := New()
		user, err := repo.GetOrCreateUser(ctx, "0xaaa")
		require.NoError(t, err)
		other, err := repo.GetOrCreateUser(ctx, "0xbbb")
		require.NoError(t, err)

		first, err := repo.AttachToken(ctx, user.ID, "QmABC", 7)
		require.NoError(t, err)

		// Reconciliation may discover a different owner or ref for the
		// same token; ledger truth wins.
		second, err := repo.AttachToken(ctx, other.ID, "QmDEF", 7)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, other.ID, second.UserID)
		assert.Equal(t, provenance.ContentID("QmDEF"), second.ContentRef)
	})

	t.Run("inserts a fresh row when nothing matches", func(t *testing.T) {
		repo := New()
		user, err := repo.GetOrCreateUser(ctx, "0xaaa")
		require.NoError(t, err)

		entry, err := repo.AttachToken(ctx, user.ID, "QmABC", 7)
		require.NoError(t, err)
		require.NotNil(t, entry.TokenID)
		assert.Equal(t, provenance.TokenID(7), *entry.TokenID)

		found, err := repo.GetRecordByToken(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, found.ID)
	})
}

func TestListRecordsByUser(t *testing.T) {
	repo := New()
	ctx := context.Background()

	user, err := repo.GetOrCreateUser(ctx, "0xaaa")
	require.NoError(t, err)
	other, err := repo.GetOrCreateUser(ctx, "0xbbb")
	require.NoError(t, err)

	now := time.Now().UTC()
	for i, ref := range []provenance.ContentID{"QmA", "QmB"} {
		require.NoError(t, repo.CreateRecord(ctx, &provenance.MedicalRecordEntry{
			ID:         uuid.New(),
			UserID:     user.ID,
			ContentRef: ref,
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.CreateRecord(ctx, &provenance.MedicalRecordEntry{
		ID:         uuid.New(),
		UserID:     other.ID,
		ContentRef: "QmC",
		CreatedAt:  now,
	}))

	records, err := repo.ListRecordsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, provenance.ContentID("QmB"), records[0].ContentRef, "newest first")
}

func TestGrantMirror(t *testing.T) {
	repo := New()
	ctx := context.Background()

	grant := &provenance.AccessGrant{TokenID: 7, Grantee: "0xddd", Active: true, UpdatedAt: time.Now().UTC()}
	require.NoError(t, repo.UpsertGrant(ctx, grant))

	grants, err := repo.ListGrants(ctx, 7)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, provenance.Identity("0xddd"), grants[0].Grantee)

	t.Run("inactive grants are hidden", func(t *testing.T) {
		grant.Active = false
		require.NoError(t, repo.UpsertGrant(ctx, grant))

		grants, err := repo.ListGrants(ctx, 7)
		require.NoError(t, err)
		assert.Empty(t, grants)
	})

	t.Run("replace overwrites the whole mirror", func(t *testing.T) {
		require.NoError(t, repo.ReplaceGrants(ctx, 7, []provenance.Identity{"0xeee", "0xccc"}))

		grants, err := repo.ListGrants(ctx, 7)
		require.NoError(t, err)
		require.Len(t, grants, 2)
		assert.Equal(t, provenance.Identity("0xccc"), grants[0].Grantee, "sorted by grantee")
		assert.Equal(t, provenance.Identity("0xeee"), grants[1].Grantee)
	})

	t.Run("replace with empty list clears the mirror", func(t *testing.T) {
		require.NoError(t, repo.ReplaceGrants(ctx, 7, nil))

		grants, err := repo.ListGrants(ctx, 7)
		require.NoError(t, err)
		assert.Empty(t, grants)
	})
}

func TestListRecordsSharedWith(t *testing.T) {
	repo := New()
	ctx := context.Background()

	owner, err := repo.GetOrCreateUser(ctx, "0xaaa")
	require.NoError(t, err)

	entry, err := repo.AttachToken(ctx, owner.ID, "QmABC", 7)
	require.NoError(t, err)

	shared, err := repo.ListRecordsSharedWith(ctx, "0xddd")
	require.NoError(t, err)
	assert.Empty(t, shared)

	require.NoError(t, repo.UpsertGrant(ctx, &provenance.AccessGrant{
		TokenID: 7, Grantee: "0xddd", Active: true, UpdatedAt: time.Now().UTC(),
	}))

	shared, err = repo.ListRecordsSharedWith(ctx, "0xddd")
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, entry.ID, shared[0].ID)

	t.Run("grant on an unindexed token is skipped", func(t *testing.T) {
		require.NoError(t, repo.UpsertGrant(ctx, &provenance.AccessGrant{
			TokenID: 99, Grantee: "0xddd", Active: true, UpdatedAt: time.Now().UTC(),
		}))

		shared, err := repo.ListRecordsSharedWith(ctx, "0xddd")
		require.NoError(t, err)
		assert.Len(t, shared, 1)
	})
}
