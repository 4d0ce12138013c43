package purchasekit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"google.golang.org/grpc"

	"github.com/magabrotheeeer/purchasekit/internal/catalog"
	"github.com/magabrotheeeer/purchasekit/internal/config"
	"github.com/magabrotheeeer/purchasekit/internal/grpc/server"
	"github.com/magabrotheeeer/purchasekit/internal/http/handlers/admin/transactions"
	"github.com/magabrotheeeer/purchasekit/internal/kit"
	"github.com/magabrotheeeer/purchasekit/internal/lib/jwt"
	"github.com/magabrotheeeer/purchasekit/internal/lib/sl"
	"github.com/magabrotheeeer/purchasekit/internal/metrics"
	"github.com/magabrotheeeer/purchasekit/internal/migrations"
	"github.com/magabrotheeeer/purchasekit/internal/reconciler"
	"github.com/magabrotheeeer/purchasekit/internal/services/admin"
	"github.com/magabrotheeeer/purchasekit/internal/sharedstorage"
	"github.com/magabrotheeeer/purchasekit/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App — собранный сервис.
type App struct {
	server     *http.Server
	grpcServer *grpc.Server
	listener   net.Listener
	health     *server.HealthServer
	kit        *kit.Kit
	logger     *slog.Logger
	closers    []func() error
}

// New собирает зависимости по конфигу. Ресурсы, открытые до ошибки, закрываются.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *App, err error) {
	const op = "purchasekit.New"
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.close()
			err = fmt.Errorf("%s: %w", op, err)
		}
	}()

	cat, err := catalog.New(cfg.Kit.Tiers, cfg.Kit.TipTiers, cfg.Kit.Features)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	var storage sharedstorage.Storage = sharedstorage.NewMemory()
	if cfg.RedisConnection.Enabled {
		rdb, err := sharedstorage.InitRedis(ctx, cfg.RedisConnection)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		storage = rdb
	}

	var (
		journal reconciler.Journal
		ledger  transactions.Service
		db      *repository.Storage
	)
	if cfg.StorageConnectionString != "" {
		db, err = repository.New(cfg.StorageConnectionString)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		version, err := migrations.Run(db.DB, cfg.MigrationsPath)
		if err != nil {
			return nil, err
		}
		logger.Info("migrations applied", slog.Uint64("version", uint64(version)))
		if err = repository.CheckDatabaseReady(ctx, db); err != nil {
			return nil, err
		}
		journal = db
		ledger = db
	}

	plat, err := a.buildStore(ctx, cfg, db, logger)
	if err != nil {
		return nil, err
	}

	k, err := kit.New(kit.Deps{
		Log:      logger,
		Catalog:  cat,
		Store:    plat.store,
		Verifier: plat.verifier,
		Storage:  storage,
		Legacy:   buildLegacy(cfg.Kit, plat.verifier, logger),
		Journal:  journal,
		Metrics:  m,
	}, kit.Options{
		IsAppExtension:    cfg.Kit.IsAppExtension,
		PurchasedOverride: cfg.Kit.PurchasedOverride,
		ResetDelay:        cfg.Kit.ResetDelay,
		SharedStorageKey:  cfg.Kit.SharedStorageKey,
		TermsURL:          cfg.Kit.TermsURL,
		PrivacyURL:        cfg.Kit.PrivacyURL,
	})
	if err != nil {
		return nil, err
	}
	a.kit = k

	publisher := plat.publisher
	if publisher == nil {
		publisher = k
	}

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	router := chi.NewRouter()
	RegisterRoutes(router, logger, RouteDeps{
		Kit:       k,
		Verifier:  plat.verifier,
		Publisher: publisher,
		Auth:      admin.NewAuthService(cfg.Admin.Username, cfg.Admin.PasswordHash, jwtMaker),
		Tokens:    jwtMaker,
		Ledger:    ledger,
		Metrics:   m.Handler(),
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	})

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	a.listener, err = net.Listen("tcp", cfg.AddressGRPC)
	if err != nil {
		return nil, err
	}
	a.grpcServer = grpc.NewServer()
	a.health = server.NewHealthServer(logger)
	a.health.Register(a.grpcServer)

	return a, nil
}

// Kit возвращает контроллер покупок.
func (a *App) Kit() *kit.Kit {
	return a.kit
}

// Run запускает контроллер и серверы и блокируется до отмены ctx или ошибки сервера.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.kit.Start(runCtx)
	go a.health.Watch(runCtx, a.kit)
	go a.logDiagnostics(runCtx)

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("gRPC health service listening on", slog.String("address", a.listener.Addr().String()))
		if err := a.grpcServer.Serve(a.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
		a.logger.Error("server stopped with error", sl.Err(runErr))
	case <-ctx.Done():
	}

	a.health.Shutdown()
	timeoutCtx, cancelTimeout := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelTimeout()
	a.logger.Info("shutting down HTTP server gracefully")
	if err := a.server.Shutdown(timeoutCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	a.grpcServer.GracefulStop()
	a.close()
	return runErr
}

func (a *App) logDiagnostics(ctx context.Context) {
	for {
		select {
		case d := <-a.kit.Diagnostics():
			a.logger.Warn("purchase diagnostic",
				slog.String("source", d.Source),
				slog.Time("at", d.Time),
				sl.Err(d.Err),
			)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) close() {
	if a.kit != nil {
		a.kit.Close()
	}
	if a.listener != nil && a.grpcServer == nil {
		_ = a.listener.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", sl.Err(err))
		}
	}
	a.closers = nil
}
