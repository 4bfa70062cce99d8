// Package cli implements the odyssey-iam subcommands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-iam/internal/app"
	"github.com/odyssey-erp/odyssey-iam/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-iam/internal/audit/http"
	"github.com/odyssey-erp/odyssey-iam/internal/auth"
	"github.com/odyssey-erp/odyssey-iam/internal/observability"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/roles"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	"github.com/odyssey-erp/odyssey-iam/internal/users"
)

const usage = `usage: odyssey-iam <command> [flags]

commands:
  serve            run the HTTP API (default)
  migrate          apply embedded schema migrations
  seed [-file f]   upsert the default roles, permissions and bootstrap user
`

// Run dispatches args to a subcommand and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve", "migrate", "seed":
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	seedFile := fs.String("file", "", "seed catalogue YAML (defaults to the embedded catalogue)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	switch cmd {
	case "migrate":
		version, err := db.Migrate(ctx, pool)
		if err != nil {
			logger.Error("migrate", slog.Any("error", err))
			return 1
		}
		logger.Info("schema up to date", slog.Uint64("version", uint64(version)))
		return 0
	case "seed":
		hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
		if err != nil {
			logger.Error("password hasher", slog.Any("error", err))
			return 1
		}
		redisClient, permCache := openCache(ctx, cfg, logger)
		if redisClient != nil {
			defer closeRedis(redisClient, logger)
		}
		var inv Invalidator
		if permCache.Enabled() {
			inv = permCache
		}
		return SeedCommand(ctx, pool, hasher, inv, SeedOptions{File: *seedFile, Stdout: stdout, Stderr: stderr})
	default:
		if err := serve(ctx, cfg, logger, pool); err != nil {
			logger.Error("serve", slog.Any("error", err))
			return 1
		}
		return 0
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger, pool *pgxpool.Pool) error {
	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return err
	}

	redisClient, permCache := openCache(ctx, cfg, logger)
	if redisClient != nil {
		defer closeRedis(redisClient, logger)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	rbacRepo := rbac.NewRepository(pool)
	resolver := rbac.NewCachedResolver(rbac.NewResolver(rbacRepo), permCache, logger, metrics)
	guard := rbac.NewGuard(tokens, resolver, logger, metrics)
	var invalidator rbac.Invalidator
	if permCache.Enabled() {
		invalidator = permCache
	}
	rbacService := rbac.NewService(rbacRepo, invalidator, auditLogger, logger)

	authService := auth.NewService(auth.NewRepository(pool), hasher, tokens)
	usersService := users.NewService(users.NewRepository(pool), hasher, auditLogger, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Guard:              guard,
		AuthHandler:        auth.NewHandler(logger, authService, guard),
		RolesHandler:       roles.NewHandler(logger, rbacService, guard),
		UsersHandler:       users.NewHandler(logger, usersService, guard),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, guard),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), guard),
		Metrics:            metrics,
		DB:                 pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Bool("permission_cache", permCache.Enabled()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openCache connects Redis when the permission cache is configured. Failure
// to connect disables the cache rather than aborting startup.
func openCache(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*redis.Client, *rbac.Cache) {
	if !cfg.PermissionCacheEnabled() {
		return nil, nil
	}
	client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, permission cache disabled", slog.Any("error", err))
		return nil, nil
	}
	return client, rbac.NewCache(client, cfg.PermissionCacheTTL)
}

func closeRedis(client *redis.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}
}
