package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/api/controllers"
	"github.com/sapira-ai/pharo-backend/api/middleware"
	"github.com/sapira-ai/pharo-backend/internal/auth"
	"github.com/sapira-ai/pharo-backend/internal/integrations"
	"github.com/sapira-ai/pharo-backend/internal/invitations"
	"github.com/sapira-ai/pharo-backend/internal/issues"
	"github.com/sapira-ai/pharo-backend/internal/memberships"
	"github.com/sapira-ai/pharo-backend/internal/organizations"
	"github.com/sapira-ai/pharo-backend/pkg/auth/session"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
	"github.com/sapira-ai/pharo-backend/pkg/metrics"
	pkgredis "github.com/sapira-ai/pharo-backend/pkg/redis"
)

type membershipDirectory interface {
	middleware.MembershipChecker
	ListOrganizationUsers(ctx context.Context, orgID uuid.UUID) ([]memberships.OrganizationUserDTO, error)
}

type invitationDirectory interface {
	ListPending(ctx context.Context, orgID uuid.UUID, now time.Time) ([]models.Invitation, error)
}

type redisStore interface {
	middleware.RateLimitStore
	pkgredis.IdempotencyStore
}

// Dependencies carries everything the HTTP surface is built from. Nil
// infrastructure entries disable the features that need them.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Sessions session.AccessSessionChecker
	Redis    redisStore

	Ready       map[string]controllers.Pinger
	HTTPMetrics *metrics.HTTPMetrics
	MetricsView http.Handler

	Auth          auth.Service
	Register      auth.RegisterService
	Invites       auth.InviteService
	Acceptor      *auth.Acceptor
	Organizations organizations.Service
	Memberships   membershipDirectory
	Invitations   invitationDirectory
	Issues        issues.Service
	Integrations  integrations.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)
	if deps.HTTPMetrics != nil {
		r.Use(middleware.Metrics(deps.HTTPMetrics))
	}
	r.Use(middleware.CORS(cfg.App.CORSOrigins))

	var (
		rateStore   middleware.RateLimitStore
		idempotency pkgredis.IdempotencyStore
	)
	if deps.Redis != nil {
		rateStore = deps.Redis
		idempotency = deps.Redis
	}
	loginLimit := middleware.AuthRateLimit(middleware.LoginRateLimitPolicy(cfg.AuthRateLimit), rateStore, logg)
	registerLimit := middleware.AuthRateLimit(middleware.RegisterRateLimitPolicy(cfg.AuthRateLimit), rateStore, logg)
	resolveLimit := middleware.AuthRateLimit(middleware.ResolveRateLimitPolicy(cfg.AuthRateLimit), rateStore, logg)
	requireAuth := middleware.Auth(cfg.JWT, cfg.Cookies, deps.Sessions, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})
	if deps.MetricsView != nil {
		r.Get("/metrics", controllers.Metrics(deps.MetricsView))
	}

	r.Get("/auth/callback", controllers.AuthCallback(deps.Auth, deps.Acceptor, cfg, logg))

	r.Route("/api/public/v1/organizations", func(r chi.Router) {
		r.With(resolveLimit).Post("/resolve", controllers.ResolveOrganization(deps.Organizations, logg))
		r.Get("/{slug}", controllers.PublicOrganization(deps.Organizations, logg))
		r.Get("/{slug}/domains", controllers.PublicOrganizationDomains(deps.Organizations, logg))
		r.Get("/{slug}/initiatives", controllers.PublicOrganizationInitiatives(deps.Organizations, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(loginLimit).Post("/login", controllers.AuthLogin(deps.Auth, cfg, logg))
		r.With(registerLimit, middleware.Idempotency(idempotency, logg)).Post("/register", controllers.AuthRegister(deps.Register, logg))
		r.Post("/refresh", controllers.AuthRefresh(deps.Auth, cfg, logg))
		r.Post("/signout", controllers.AuthSignout(deps.Auth, cfg, logg))
		r.With(requireAuth).Post("/complete-invitation", controllers.AuthCompleteInvitation(deps.Acceptor, cfg, logg))
	})

	r.Route("/api/v1/integrations", func(r chi.Router) {
		r.Post("/teams/conversations", controllers.TeamsConversation(deps.Integrations, cfg.Teams, logg))
		r.Post("/slack/conversations", controllers.SlackConversation(deps.Integrations, cfg.Slack, logg))
	})

	r.Route("/api/v1/organizations/{"+middleware.OrganizationParam+"}", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(middleware.Idempotency(idempotency, logg))

		r.With(middleware.RequireOrgMember(deps.Memberships, logg)).Get("/issues", controllers.ListIssues(deps.Issues, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOrgAdmin(deps.Memberships, logg))
			r.Post("/invitations", controllers.InviteUser(deps.Invites, logg))
			r.Post("/initiatives", controllers.CreateInitiative(deps.Organizations, logg))
			r.Get("/users", controllers.OrganizationUsers(deps.Memberships, deps.Invitations, logg))
			r.Post("/issues/{issueId}/triage", controllers.TriageIssue(deps.Issues, logg))
		})
	})

	return r
}

var (
	_ membershipDirectory = (*memberships.Repository)(nil)
	_ invitationDirectory = (*invitations.Repository)(nil)
)
