package memberships

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/db/dbtest"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

func seed(t *testing.T, conn *gorm.DB) (*models.User, *models.Organization) {
	t.Helper()
	org := &models.Organization{Name: "Acme", Slug: "acme-" + uuid.NewString()[:8]}
	require.NoError(t, conn.Create(org).Error)
	user := &models.User{ID: uuid.New(), Email: uuid.NewString() + "@acme.com"}
	require.NoError(t, conn.Create(user).Error)
	return user, org
}

func TestRepositoryUpsertConvergesOnOneRow(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	user, org := seed(t, conn)

	first, err := repo.Upsert(ctx, UpsertParams{UserID: user.ID, OrganizationID: org.ID, Role: enums.RoleEMP})
	require.NoError(t, err)
	assert.True(t, first.Active)

	initiative := uuid.New()
	fde := enums.SapiraRoleFDE
	second, err := repo.Upsert(ctx, UpsertParams{
		UserID:         user.ID,
		OrganizationID: org.ID,
		Role:           enums.RoleSAP,
		SapiraRoleType: &fde,
		InitiativeID:   &initiative,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, enums.RoleSAP, second.Role)
	require.NotNil(t, second.SapiraRoleType)
	assert.Equal(t, fde, *second.SapiraRoleType)
	require.NotNil(t, second.InitiativeID)
	assert.Equal(t, initiative, *second.InitiativeID)

	var count int64
	require.NoError(t, conn.Model(&models.UserOrganization{}).Where("auth_user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryUpsertReactivatesSuspendedMembership(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	user, org := seed(t, conn)

	m, err := repo.Upsert(ctx, UpsertParams{UserID: user.ID, OrganizationID: org.ID, Role: enums.RoleCEO})
	require.NoError(t, err)
	require.NoError(t, conn.Model(m).Update("active", false).Error)

	_, err = repo.FindActive(ctx, user.ID, org.ID)
	assert.True(t, db.IsNotFound(err))
	admin, err := repo.IsOrgAdmin(ctx, user.ID, org.ID)
	require.NoError(t, err)
	assert.False(t, admin)

	_, err = repo.Upsert(ctx, UpsertParams{UserID: user.ID, OrganizationID: org.ID, Role: enums.RoleCEO})
	require.NoError(t, err)
	admin, err = repo.IsOrgAdmin(ctx, user.ID, org.ID)
	require.NoError(t, err)
	assert.True(t, admin)
}

func TestRepositoryUpsertConcurrentCallers(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	user, org := seed(t, conn)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Upsert(ctx, UpsertParams{UserID: user.ID, OrganizationID: org.ID, Role: enums.RoleEMP})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, conn.Model(&models.UserOrganization{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryRejectsInvalidRole(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	_, err := repo.Upsert(context.Background(), UpsertParams{UserID: uuid.New(), OrganizationID: uuid.New(), Role: "OWNER"})
	assert.Error(t, err)
}

func TestRepositoryListings(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	user, org := seed(t, conn)

	_, err := repo.Upsert(ctx, UpsertParams{UserID: user.ID, OrganizationID: org.ID, Role: enums.RoleEMP})
	require.NoError(t, err)

	orgs, err := repo.ListUserOrganizations(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, org.Slug, orgs[0].OrganizationSlug)
	assert.Equal(t, enums.RoleEMP, orgs[0].Role)

	members, err := repo.ListOrganizationUsers(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, user.Email, members[0].Email)
	assert.True(t, members[0].Active)

	member, err := repo.HasActiveMembership(ctx, user.ID, org.ID)
	require.NoError(t, err)
	assert.True(t, member)
}
