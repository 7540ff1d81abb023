package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/api/responses"
	"github.com/sapira-ai/pharo-backend/internal/auth"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

// OrganizationParam is the chi URL parameter naming the target organization.
const OrganizationParam = "organizationId"

type MembershipChecker interface {
	HasActiveMembership(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
	UserHasRole(ctx context.Context, userID, orgID uuid.UUID, roles ...enums.Role) (bool, error)
}

// RequireOrgMember allows callers holding an active membership in the
// organization named by the route.
func RequireOrgMember(checker MembershipChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return requireMembership(checker, logg, "not a member of this organization", func(ctx context.Context, uid, oid uuid.UUID) (bool, error) {
		return checker.HasActiveMembership(ctx, uid, oid)
	})
}

// RequireOrgRoles allows callers whose active membership has one of the roles.
func RequireOrgRoles(checker MembershipChecker, logg *logger.Logger, allowed ...enums.Role) func(http.Handler) http.Handler {
	return requireMembership(checker, logg, auth.NotOrgAdminMessage, func(ctx context.Context, uid, oid uuid.UUID) (bool, error) {
		if len(allowed) == 0 {
			return false, nil
		}
		return checker.UserHasRole(ctx, uid, oid, allowed...)
	})
}

// RequireOrgAdmin restricts the route to SAP and CEO members.
func RequireOrgAdmin(checker MembershipChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return RequireOrgRoles(checker, logg, enums.RoleSAP, enums.RoleCEO)
}

func requireMembership(checker MembershipChecker, logg *logger.Logger, deniedMessage string, check func(context.Context, uuid.UUID, uuid.UUID) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if checker == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership checker unavailable"))
				return
			}

			userID := UserIDFromContext(ctx)
			if userID == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
				return
			}
			uid, err := uuid.Parse(userID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id"))
				return
			}

			oid, err := uuid.Parse(chi.URLParam(r, OrganizationParam))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid organization id"))
				return
			}

			ok, err := check(ctx, uid, oid)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership"))
				return
			}
			if !ok {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, deniedMessage))
				return
			}

			if logg != nil {
				ctx = logg.WithOrganizationID(ctx, oid.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
