// Package identities stores the credential records behind user profiles.
package identities

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sapira-ai/pharo-backend/pkg/db/models"
)

// CreateIdentityDTO holds the data needed to create an identity.
type CreateIdentityDTO struct {
	Email            string
	PasswordHash     *string
	EmailConfirmedAt *time.Time
	InvitedAt        *time.Time
	Metadata         map[string]any
}

// Repository persists auth identities.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository bound to the provided database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new identity.
func (r *Repository) Create(ctx context.Context, dto CreateIdentityDTO) (*models.AuthIdentity, error) {
	identity := &models.AuthIdentity{
		Email:            strings.ToLower(strings.TrimSpace(dto.Email)),
		PasswordHash:     dto.PasswordHash,
		EmailConfirmedAt: dto.EmailConfirmedAt,
		InvitedAt:        dto.InvitedAt,
		Metadata:         datatypes.JSONMap(dto.Metadata),
	}
	if err := r.db.WithContext(ctx).Create(identity).Error; err != nil {
		return nil, err
	}
	return identity, nil
}

// FindByEmail loads an identity by e-mail.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.AuthIdentity, error) {
	var identity models.AuthIdentity
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&identity).Error
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// FindByID loads an identity by primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.AuthIdentity, error) {
	var identity models.AuthIdentity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&identity).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

// MergeMetadata overlays values onto the identity metadata. Nil values remove
// the key. The row is locked for the duration of the read-modify-write.
func (r *Repository) MergeMetadata(ctx context.Context, id uuid.UUID, values map[string]any) (*models.AuthIdentity, error) {
	var out *models.AuthIdentity
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var identity models.AuthIdentity
		query := tx.Where("id = ?", id)
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := query.First(&identity).Error; err != nil {
			return err
		}
		merged := datatypes.JSONMap{}
		for k, v := range identity.Metadata {
			merged[k] = v
		}
		for k, v := range values {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		if err := tx.Model(&identity).Update("metadata", merged).Error; err != nil {
			return err
		}
		identity.Metadata = merged
		out = &identity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkInvited stamps invited_at.
func (r *Repository) MarkInvited(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.AuthIdentity{}).
		Where("id = ?", id).
		Update("invited_at", at).Error
}

// UpdateLastSignIn stamps last_sign_in_at.
func (r *Repository) UpdateLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.AuthIdentity{}).
		Where("id = ?", id).
		Update("last_sign_in_at", at).Error
}

// ConfirmEmail stamps email_confirmed_at when it is not yet set.
func (r *Repository) ConfirmEmail(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.AuthIdentity{}).
		Where("id = ? AND email_confirmed_at IS NULL", id).
		Update("email_confirmed_at", at).Error
}

// SetPassword replaces the password hash and confirms the e-mail, since the
// caller proved ownership through the e-mailed link.
func (r *Repository) SetPassword(ctx context.Context, id uuid.UUID, hash string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.AuthIdentity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_hash":      hash,
			"email_confirmed_at": gorm.Expr("COALESCE(email_confirmed_at, ?)", now),
			"updated_at":         now,
		}).Error
}
