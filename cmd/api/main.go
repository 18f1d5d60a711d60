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

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
	"consorcia.org/internal/config"
	"consorcia.org/internal/httpapi"
	"consorcia.org/internal/obs"
	"consorcia.org/internal/property"
	"consorcia.org/internal/ratelimit"
	"consorcia.org/internal/store/memory"
	"consorcia.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is what both store implementations offer the API.
type backend interface {
	authz.Store
	authz.MatrixSource
	property.Store
	auth.UserDirectory
}

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		log.WithError(err).Fatal("log level")
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, probe, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer closeStore()

	tokens, err := auth.NewTokenIssuer(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer), auth.WithTokenTTL(cfg.Auth.TokenTTL))
	if err != nil {
		log.WithError(err).Fatal("token issuer")
	}
	authSvc, err := auth.NewService(store, tokens)
	if err != nil {
		log.WithError(err).Fatal("auth service")
	}
	userSvc, err := auth.NewUserService(store)
	if err != nil {
		log.WithError(err).Fatal("user service")
	}
	propSvc, err := property.NewService(store)
	if err != nil {
		log.WithError(err).Fatal("property service")
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimited() {
		limiter, err = newLimiter(cfg.Rate)
		if err != nil {
			log.WithError(err).Fatal("rate limiter")
		}
	}

	api, err := httpapi.New(httpapi.Deps{
		Auth:     authSvc,
		Users:    userSvc,
		Store:    store,
		Modules:  authz.NewCachedMatrix(store, cfg.Modules.CacheSize, cfg.Modules.CacheTTL),
		Property: propSvc,
		Limiter:  limiter,
		Ready:    probe,
		Version:  version,
	})
	if err != nil {
		log.WithError(err).Fatal("build api")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	grpcSrv, health := httpapi.NewServer(httpapi.NewGRPCServer(api.Engine(), api.Filters()), probe, cfg.GRPCToken)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).WithField("version", version).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		log.WithField("addr", cfg.GRPCAddr).Info("grpc listening")
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		httpapi.WatchHealth(gctx, health, probe, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped")
		return
	}
	log.Info("stopped")
}

// openStore picks PostgreSQL when a DSN is configured and the in-memory store
// otherwise, then makes sure the bootstrap admin exists.
func openStore(ctx context.Context, cfg config.Config) (backend, httpapi.ReadyProbe, func(), error) {
	if cfg.InMemory() {
		mem := memory.New()
		obs.Logger().Warn("no database configured; using the in-memory store")
		if err := bootstrapMemory(mem, cfg.Auth); err != nil {
			return nil, httpapi.ReadyProbe{}, nil, err
		}
		return mem, httpapi.ReadyProbe{}, func() {}, nil
	}

	db, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: pg.DefaultPool.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, httpapi.ReadyProbe{}, nil, err
	}
	closeDB := func() { _ = db.Close() }
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		obs.Logger().WithError(err).Warn("database not reachable yet")
	} else if err := bootstrapPG(pingCtx, db, cfg.Auth); err != nil {
		closeDB()
		return nil, httpapi.ReadyProbe{}, nil, err
	}
	return db, httpapi.ReadyProbe{DB: db.DB()}, closeDB, nil
}

func adminUser(a config.Auth) (auth.User, bool, error) {
	if a.AdminEmail == "" || a.AdminPassword == "" {
		return auth.User{}, false, nil
	}
	hash, err := auth.HashPassword(a.AdminPassword)
	if err != nil {
		return auth.User{}, false, err
	}
	return auth.User{
		Username:     "admin",
		Email:        a.AdminEmail,
		PasswordHash: hash,
		Role:         auth.RoleGlobalAdmin,
		Active:       true,
		Approved:     true,
	}, true, nil
}

func bootstrapMemory(mem *memory.Store, a config.Auth) error {
	u, ok, err := adminUser(a)
	if err != nil || !ok {
		return err
	}
	created := mem.AddUser(u)
	obs.Logger().WithField("user_id", created.ID).Info("bootstrap admin created")
	return nil
}

func bootstrapPG(ctx context.Context, db *pg.Store, a config.Auth) error {
	u, ok, err := adminUser(a)
	if err != nil || !ok {
		return err
	}
	_, err = db.UserByEmail(ctx, u.Email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return err
	}
	created, err := db.CreateUser(ctx, u)
	if err != nil {
		return err
	}
	obs.Logger().WithField("user_id", created.ID).Info("bootstrap admin created")
	return nil
}

func newLimiter(r config.Rate) (ratelimit.Limiter, error) {
	if r.RedisURL == "" {
		return ratelimit.NewLocal(r.PerSecond, r.Burst), nil
	}
	opts, err := redis.ParseURL(r.RedisURL)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewRedis(redis.NewClient(opts), "consorcia:rl:", r.PerSecond, r.Burst), nil
}
