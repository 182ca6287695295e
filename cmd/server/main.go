// Command ips-server starts the dashboard authentication HTTP server.
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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/and161185/ips-auth/internal/backend"
	"github.com/and161185/ips-auth/internal/config"
	pkgcrypto "github.com/and161185/ips-auth/internal/crypto"
	grpcserver "github.com/and161185/ips-auth/internal/server/grpc"
	httpserver "github.com/and161185/ips-auth/internal/server/http"
	"github.com/and161185/ips-auth/internal/service"
	"github.com/and161185/ips-auth/internal/telemetry"
	"github.com/and161185/ips-auth/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

// main loads configuration, selects the credential store, seeds demo accounts and serves HTTP.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		// логгер ещё не создан
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr()),
		zap.String("env", cfg.AppEnv),
	)
	if cfg.UsingDevSecret {
		logger.Warn("JWT_SECRET not set, signing tokens with the development secret; never do this in production")
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:    "ips-auth",
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
	}, logger)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	var health *grpcserver.Health
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			logger.Fatal("grpc health listen", zap.Error(err))
		}
		health = grpcserver.NewHealth(logger)
		go func() {
			if err := health.Serve(lis); err != nil {
				logger.Error("grpc health server", zap.Error(err))
			}
		}()
	}

	// Credential store, selected once
	be, err := backend.Open(ctx, backend.Options{
		DSN:            cfg.DatabaseDSN(),
		FilePath:       cfg.File,
		ConnectTimeout: cfg.DB.ConnectTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("credential store", zap.Error(err))
	}
	defer be.Close()

	tokens, err := token.New([]byte(cfg.Secret))
	if err != nil {
		logger.Fatal("token service", zap.Error(err))
	}
	authSvc := service.NewAuthService(be.Users, pkgcrypto.NewHasher(cfg.Cost), tokens, logger)

	if cfg.Seed {
		n, err := authSvc.Seed(ctx, service.DemoAccounts)
		if err != nil {
			logger.Fatal("seed demo accounts", zap.Error(err))
		}
		if n > 0 {
			logger.Info("demo accounts created", zap.Int("count", n))
		}
	}

	api := httpserver.New(authSvc, logger, httpserver.Options{
		CookieName:     cfg.Cookie.Name,
		CookieSecure:   cfg.Cookie.Secure,
		AllowedOrigins: cfg.Origins,
		Backend:        string(be.Kind),
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           otelhttp.NewHandler(api.Routes(), "ips-auth"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("backend", string(be.Kind)))
		errCh <- srv.ListenAndServe()
	}()
	if health != nil {
		health.SetServing(true)
	}

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if health != nil {
		health.Stop(sctx)
	}
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if cfg.Production() {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}
