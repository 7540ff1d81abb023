package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sapira-ai/pharo-backend/api"
	"github.com/sapira-ai/pharo-backend/api/controllers"
	"github.com/sapira-ai/pharo-backend/api/routes"
	"github.com/sapira-ai/pharo-backend/internal/auth"
	"github.com/sapira-ai/pharo-backend/internal/identities"
	"github.com/sapira-ai/pharo-backend/internal/integrations"
	"github.com/sapira-ai/pharo-backend/internal/invitations"
	"github.com/sapira-ai/pharo-backend/internal/issues"
	"github.com/sapira-ai/pharo-backend/internal/memberships"
	"github.com/sapira-ai/pharo-backend/internal/organizations"
	"github.com/sapira-ai/pharo-backend/internal/users"
	"github.com/sapira-ai/pharo-backend/pkg/auth/authcode"
	"github.com/sapira-ai/pharo-backend/pkg/auth/session"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
	"github.com/sapira-ai/pharo-backend/pkg/mailer"
	"github.com/sapira-ai/pharo-backend/pkg/metrics"
	"github.com/sapira-ai/pharo-backend/pkg/migrate"
	"github.com/sapira-ai/pharo-backend/pkg/redis"
	"github.com/sapira-ai/pharo-backend/pkg/storage/gcs"
)

func fatal(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(logg, "failed to load config", err)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fatal(logg, "failed to bootstrap database", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.AutoApply(ctx, cfg, logg, dbClient); err != nil {
		fatal(logg, "failed to apply migrations on boot", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		fatal(logg, "failed to bootstrap redis", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		fatal(logg, "failed to create session manager", err)
	}
	authCodes, err := authcode.NewStore(redisClient)
	if err != nil {
		fatal(logg, "failed to create auth code store", err)
	}

	ready := map[string]controllers.Pinger{"db": dbClient, "redis": redisClient}
	var logos organizations.LogoSigner
	if cfg.GCS.Enabled() {
		gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			fatal(logg, "failed to bootstrap gcs", err)
		}
		logos = gcsClient
		ready["gcs"] = gcsClient
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	flows := metrics.NewFlowMetrics(registry)

	gormDB := dbClient.DB()
	identityRepo := identities.NewRepository(gormDB)
	userRepo := users.NewRepository(gormDB)
	membershipRepo := memberships.NewRepository(gormDB)
	orgRepo := organizations.NewRepository(gormDB)
	invitationRepo := invitations.NewRepository(gormDB)
	issueRepo := issues.NewRepository(gormDB)

	authService, err := auth.NewService(auth.ServiceParams{
		IdentityRepo:    identityRepo,
		UserRepo:        userRepo,
		MembershipsRepo: membershipRepo,
		SessionManager:  sessionManager,
		AuthCodes:       authCodes,
		JWTConfig:       cfg.JWT,
		InternalDomain:  cfg.App.InternalDomain(),
		Logger:          logg,
		Metrics:         flows,
	})
	if err != nil {
		fatal(logg, "failed to create auth service", err)
	}

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner:       dbClient,
		Organizations:  orgRepo,
		PasswordConfig: cfg.Password,
		Metrics:        flows,
	})
	if err != nil {
		fatal(logg, "failed to create register service", err)
	}

	inviteService, err := auth.NewInviteService(auth.InviteServiceParams{
		Memberships:   membershipRepo,
		Organizations: orgRepo,
		Identities:    identityRepo,
		Invitations:   invitationRepo,
		AuthCodes:     authCodes,
		Mailer:        mailer.NewFromConfig(cfg.Sendgrid, logg),
		BaseURL:       cfg.App.BaseURL,
		TTL:           cfg.Invitations.TTL,
		Logger:        logg,
		Metrics:       flows,
	})
	if err != nil {
		fatal(logg, "failed to create invite service", err)
	}

	acceptor, err := auth.NewAcceptor(auth.AcceptorParams{
		Identities:     identityRepo,
		Users:          userRepo,
		Memberships:    membershipRepo,
		Invitations:    invitationRepo,
		Organizations:  orgRepo,
		InternalDomain: cfg.App.InternalDomain(),
		PasswordConfig: cfg.Password,
		Logger:         logg,
		Metrics:        flows,
	})
	if err != nil {
		fatal(logg, "failed to create invitation acceptor", err)
	}

	orgService, err := organizations.NewService(organizations.ServiceParams{
		Repo:           orgRepo,
		Users:          userRepo,
		Logos:          logos,
		InternalDomain: cfg.App.InternalDomain(),
		LogoURLExpiry:  cfg.GCS.LogoURLExpiry,
		Logger:         logg,
		Metrics:        flows,
	})
	if err != nil {
		fatal(logg, "failed to create organization service", err)
	}

	issueService, err := issues.NewService(issues.ServiceParams{
		Repo:    issueRepo,
		Logger:  logg,
		Metrics: flows,
	})
	if err != nil {
		fatal(logg, "failed to create issue service", err)
	}

	integrationService, err := integrations.NewService(integrations.ServiceParams{
		Organizations: orgRepo,
		Issues:        issueRepo,
		Logger:        logg,
		Metrics:       flows,
	})
	if err != nil {
		fatal(logg, "failed to create integration service", err)
	}

	deps := routes.Dependencies{
		Config:        cfg,
		Logger:        logg,
		Sessions:      sessionManager,
		Redis:         redisClient,
		Ready:         ready,
		Auth:          authService,
		Register:      registerService,
		Invites:       inviteService,
		Acceptor:      acceptor,
		Organizations: orgService,
		Memberships:   membershipRepo,
		Invitations:   invitationRepo,
		Issues:        issueService,
		Integrations:  integrationService,
	}
	if cfg.Metrics.Enabled {
		deps.HTTPMetrics = metrics.NewHTTPMetrics(registry)
		deps.MetricsView = metrics.Handler(registry)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(runCtx, "starting api server")

	if err := api.Serve(runCtx, api.NewServer(addr, routes.NewRouter(deps)), logg); err != nil {
		fatal(logg, "api server stopped unexpectedly", err)
	}
}
