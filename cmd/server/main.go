package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dsodesk/internal/audit"
	"dsodesk/internal/config"
	"dsodesk/internal/db"
	"dsodesk/internal/db/migrate"
	dsocache "dsodesk/internal/dso/cache"
	dsoservice "dsodesk/internal/dso/service"
	"dsodesk/internal/events"
	healthhandler "dsodesk/internal/health/handler"
	invitationservice "dsodesk/internal/invitation/service"
	"dsodesk/internal/logger"
	membershipservice "dsodesk/internal/membership/service"
	orgservice "dsodesk/internal/organization/service"
	"dsodesk/internal/platform/rbac"
	"dsodesk/internal/policy/engine"
	"dsodesk/internal/security"
	"dsodesk/internal/server"
	"dsodesk/internal/server/httpapi"
	"dsodesk/internal/server/middleware"
	"dsodesk/internal/store"
	telemetryotel "dsodesk/internal/telemetry/otel"
)

const (
	serviceName     = "dsodesk"
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("config", zap.Error(err))
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		zap.L().Fatal("logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTelEndpoint, serviceName, cfg.OTelInsecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	repos := st.Repos()

	var dsos rbac.DSOResolver = repos.DSOs
	if ttl := cfg.DSOCacheLifetime(); ttl > 0 {
		resolver, err := dsocache.New(repos.DSOs, cfg.DSOCacheMaxItems, ttl)
		if err != nil {
			return err
		}
		defer resolver.Close()
		dsos = resolver
	}
	evaluator := rbac.NewEvaluator(repos.Memberships, dsos)

	policy, err := engine.NewOPAAuthorizer(ctx, cfg.PolicyFile)
	if err != nil {
		return err
	}
	sessions, err := sessionVerifier(cfg, log)
	if err != nil {
		return err
	}
	secret := cfg.InvitationTokenSecret
	if secret == "" {
		log.Warn("INVITATION_TOKEN_SECRET is empty; invitation digests are unkeyed")
	}

	var publishers events.Multi
	if kp := events.NewKafkaPublisher(cfg.KafkaBrokersList(), cfg.EventsKafkaTopic); kp != nil {
		publishers = append(publishers, kp)
	}
	if providers.Exporting() {
		publishers = append(publishers, events.NewOTelPublisher(providers.LoggerProvider))
	}
	var publisher events.Publisher = events.Nop{}
	if len(publishers) > 0 {
		publisher = publishers
	}

	auditLogger := audit.NewLogger(repos.AuditLogs, middleware.ClientIPFrom)
	svc := httpapi.Services{
		Organizations: orgservice.NewService(st, evaluator, policy, auditLogger, publisher),
		Memberships:   membershipservice.NewService(st, evaluator, policy, auditLogger, publisher),
		DSOs:          dsoservice.NewService(st, evaluator, policy, auditLogger, publisher),
		Invitations: invitationservice.NewService(st, evaluator, policy, security.NewInvitationTokens(secret),
			auditLogger, publisher, invitationservice.Config{TTL: cfg.InvitationLifetime()}),
	}

	health := healthhandler.NewServer(st, policy)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(svc, sessions, health, log, httpapi.Options{HideTenantExistence: cfg.HideTenantExistence}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return logger.WithLogger(context.Background(), log) },
	}
	grpcSrv := server.NewGRPCServer(health, log)
	server.RegisterServices(grpcSrv, health)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		return err
	})
	serveErr := g.Wait()

	// In-flight async publishes hold their own timeout; let them land before closing the sinks.
	time.Sleep(events.ShutdownDrainDuration)
	if err := publisher.Close(); err != nil {
		log.Warn("close event publishers", zap.Error(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("otel shutdown", zap.Error(err))
	}
	log.Info("stopped")
	return serveErr
}

// openStore returns the Postgres store when DATABASE_URL is set, migrating it first, and the in-process store otherwise.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL is empty; using the in-process store, data is lost on exit")
		return store.NewMemory(), nil
	}
	if err := migrate.Run(cfg.DatabaseURL, migrate.Up, 0); err != nil {
		return nil, err
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return store.NewPostgres(conn), nil
}

// sessionVerifier verifies identity-provider session tokens with JWT_PUBLIC_KEY. Outside production a
// missing key falls back to JWT_PRIVATE_KEY, then to a throwaway key that no external token will match.
func sessionVerifier(cfg *config.Config, log *zap.Logger) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey != "" {
		signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			return nil, err
		}
		if cfg.JWTPublicKey == "" {
			return security.NewTokenProvider(signer, nil, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
		}
		pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
	}
	if cfg.JWTPublicKey != "" {
		pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		return security.NewTokenProvider(nil, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
	}
	log.Warn("no JWT key configured; using a throwaway key, every bearer token will be rejected")
	return security.NewTestTokenProvider()
}
