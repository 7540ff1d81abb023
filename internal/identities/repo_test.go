package identities

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/db/dbtest"
)

func TestRepositoryCreateEnforcesUniqueEmail(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	identity, err := repo.Create(ctx, CreateIdentityDTO{Email: "Ana@Acme.com"})
	require.NoError(t, err)
	assert.Equal(t, "ana@acme.com", identity.Email)
	assert.Nil(t, identity.PasswordHash)

	_, err = repo.Create(ctx, CreateIdentityDTO{Email: "ana@acme.com"})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestRepositoryMergeMetadata(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	identity, err := repo.Create(ctx, CreateIdentityDTO{
		Email:    "ana@acme.com",
		Metadata: map[string]any{"first_name": "Ana", "role": "EMP"},
	})
	require.NoError(t, err)

	merged, err := repo.MergeMetadata(ctx, identity.ID, map[string]any{
		"role":             "BU",
		"organization_id":  "org-1",
		"sapira_role_type": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "BU", merged.MetadataString("role"))

	reloaded, err := repo.FindByEmail(ctx, "ana@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Ana", reloaded.MetadataString("first_name"))
	assert.Equal(t, "org-1", reloaded.MetadataString("organization_id"))
	assert.Equal(t, "BU", reloaded.MetadataString("role"))
	_, present := reloaded.Metadata["sapira_role_type"]
	assert.False(t, present)
}

func TestRepositoryTimestamps(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	identity, err := repo.Create(ctx, CreateIdentityDTO{Email: "ana@acme.com"})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.MarkInvited(ctx, identity.ID, now))
	require.NoError(t, repo.UpdateLastSignIn(ctx, identity.ID, now))
	require.NoError(t, repo.ConfirmEmail(ctx, identity.ID, now))

	reloaded, err := repo.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.InvitedAt)
	require.NotNil(t, reloaded.LastSignInAt)
	require.NotNil(t, reloaded.EmailConfirmedAt)
	assert.True(t, reloaded.InvitedAt.Equal(now))
}

func TestRepositorySetPassword(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	identity, err := repo.Create(ctx, CreateIdentityDTO{Email: "ana@acme.com"})
	require.NoError(t, err)
	require.Nil(t, identity.EmailConfirmedAt)

	require.NoError(t, repo.SetPassword(ctx, identity.ID, "hash-1"))
	reloaded, err := repo.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.PasswordHash)
	assert.Equal(t, "hash-1", *reloaded.PasswordHash)
	require.NotNil(t, reloaded.EmailConfirmedAt)
	confirmed := *reloaded.EmailConfirmedAt

	require.NoError(t, repo.SetPassword(ctx, identity.ID, "hash-2"))
	reloaded, err = repo.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", *reloaded.PasswordHash)
	assert.True(t, confirmed.Equal(*reloaded.EmailConfirmedAt))
}
