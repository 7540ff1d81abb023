package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/internal/identities"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

var fastPasswordConfig = config.PasswordConfig{
	MinLength:        6,
	ArgonMemoryKB:    64,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type testOrg struct {
	org        *models.Organization
	initiative *models.Initiative
}

func seedOrg(t *testing.T, conn *gorm.DB, slug string, selfRegistration bool, domains ...string) testOrg {
	t.Helper()
	org := &models.Organization{Name: slug, Slug: slug, AllowSelfRegistration: selfRegistration}
	if err := conn.Create(org).Error; err != nil {
		t.Fatalf("create organization: %v", err)
	}
	if !selfRegistration {
		if err := conn.Model(org).Update("allow_self_registration", false).Error; err != nil {
			t.Fatalf("disable self registration: %v", err)
		}
	}
	for _, d := range domains {
		if err := conn.Create(&models.OrganizationDomain{OrganizationID: org.ID, Domain: d}).Error; err != nil {
			t.Fatalf("create domain: %v", err)
		}
	}
	initiative := &models.Initiative{OrganizationID: org.ID, Name: "Retail", Slug: "retail", Active: true}
	if err := conn.Create(initiative).Error; err != nil {
		t.Fatalf("create initiative: %v", err)
	}
	return testOrg{org: org, initiative: initiative}
}

func seedIdentity(t *testing.T, conn *gorm.DB, email string, metadata map[string]any) *models.AuthIdentity {
	t.Helper()
	identity, err := identities.NewRepository(conn).Create(context.Background(), identities.CreateIdentityDTO{
		Email:    email,
		Metadata: metadata,
	})
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return identity
}

func seedMember(t *testing.T, conn *gorm.DB, email string, orgID uuid.UUID, role string) *models.AuthIdentity {
	t.Helper()
	identity := seedIdentity(t, conn, email, nil)
	if err := conn.Create(&models.User{ID: identity.ID, Email: identity.Email}).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	membership := &models.UserOrganization{
		AuthUserID:     identity.ID,
		OrganizationID: orgID,
		Role:           enums.Role(role),
		Active:         true,
	}
	if err := conn.Create(membership).Error; err != nil {
		t.Fatalf("create membership: %v", err)
	}
	return identity
}

func strPtr(v string) *string {
	return &v
}
