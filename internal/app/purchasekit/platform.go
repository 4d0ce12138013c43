package purchasekit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/magabrotheeeer/purchasekit/internal/config"
	"github.com/magabrotheeeer/purchasekit/internal/legacy"
	librabbitmq "github.com/magabrotheeeer/purchasekit/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/purchasekit/internal/rabbitmq"
	"github.com/magabrotheeeer/purchasekit/internal/storage/repository"
	"github.com/magabrotheeeer/purchasekit/internal/store"
	"github.com/magabrotheeeer/purchasekit/internal/store/appstore"
	"github.com/magabrotheeeer/purchasekit/internal/store/memstore"
	"github.com/magabrotheeeer/purchasekit/internal/verify"
)

// platform — выбранная платформа покупок и связанные с ней проверка подписи и публикация уведомлений.
type platform struct {
	store     store.Store
	verifier  *verify.JWSVerifier
	publisher store.Publisher // nil: уведомления применяются контроллером напрямую
}

func (a *App) buildStore(ctx context.Context, cfg *config.Config, db *repository.Storage, logger *slog.Logger) (platform, error) {
	switch cfg.Store.Mode {
	case config.StoreModeSandbox:
		if cfg.RabbitMQ.Enabled {
			logger.Warn("rabbitmq feed is used only in appstore mode, sandbox delivers updates in memory")
		}
		ms, err := memstore.New(memstore.Options{
			BundleID: cfg.Store.BundleID,
			Products: cfg.Store.Products,
		}, logger)
		if err != nil {
			return platform{}, err
		}
		return platform{store: ms, verifier: ms.Verifier(), publisher: ms}, nil
	case config.StoreModeAppStore:
		return a.buildAppStore(ctx, cfg, db, logger)
	default:
		return platform{}, fmt.Errorf("unknown store mode %q", cfg.Store.Mode)
	}
}

func (a *App) buildAppStore(ctx context.Context, cfg *config.Config, db *repository.Storage, logger *slog.Logger) (platform, error) {
	rootPEM, err := os.ReadFile(cfg.Store.RootCertPath)
	if err != nil {
		return platform{}, fmt.Errorf("read root certificate: %w", err)
	}
	verifier, err := verify.NewJWSVerifier(rootPEM, cfg.Store.BundleID)
	if err != nil {
		return platform{}, err
	}
	key, err := privateKey(cfg.Store.AppStore)
	if err != nil {
		return platform{}, err
	}

	opts := appstore.Options{
		Products: cfg.Store.Products,
		Verifier: verifier,
	}
	if db != nil {
		opts.Index = db
	}

	p := platform{verifier: verifier}
	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			return platform{}, err
		}
		a.closers = append(a.closers, conn.Close)

		consumeCh, err := rabbitmq.SetupChannel(conn, rabbitmq.TransactionTopology())
		if err != nil {
			return platform{}, err
		}
		publishCh, err := rabbitmq.SetupChannel(conn, rabbitmq.TransactionTopology())
		if err != nil {
			return platform{}, err
		}
		opts.Feed = rabbitmq.NewTransactionFeed(consumeCh, rabbitmq.UpdatesQueue, verifier, logger)
		p.publisher = librabbitmq.NewPublisher(publishCh, rabbitmq.TransactionsExchange, rabbitmq.UpdatesRoutingKey)
	}

	baseURL := cfg.Store.AppStore.BaseURL
	if baseURL == "" {
		baseURL = appstore.ProductionURL
		if strings.EqualFold(cfg.Store.AppStore.Environment, "sandbox") {
			baseURL = appstore.SandboxURL
		}
	}
	client, err := appstore.NewClient(appstore.Config{
		BaseURL:    baseURL,
		IssuerID:   cfg.Store.AppStore.IssuerID,
		KeyID:      cfg.Store.AppStore.KeyID,
		BundleID:   cfg.Store.BundleID,
		PrivateKey: key,
		Timeout:    cfg.Store.AppStore.Timeout,
	}, opts, logger)
	if err != nil {
		return platform{}, err
	}
	p.store = client
	return p, nil
}

func privateKey(cfg config.AppStore) ([]byte, error) {
	if cfg.PrivateKey != "" {
		return []byte(cfg.PrivateKey), nil
	}
	if cfg.PrivateKeyPath == "" {
		return nil, errors.New("app store private key is not configured")
	}
	key, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return key, nil
}

func buildLegacy(cfg config.Kit, verifier *verify.JWSVerifier, logger *slog.Logger) *legacy.Classifier {
	var reader legacy.Reader
	if cfg.ReceiptPath != "" {
		switch cfg.ReceiptFormat {
		case config.ReceiptFormatAppTransaction:
			reader = legacy.AppTransactionFile{Path: cfg.ReceiptPath, Verifier: verifier}
		default:
			reader = legacy.JSONReceipt{Path: cfg.ReceiptPath}
		}
	}
	return legacy.NewClassifier(logger, reader, cfg.LegacyThreshold)
}
