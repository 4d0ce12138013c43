// Package appstore — адаптер порта платформы покупок к App Store Server API.
//
// Покупки выполняются на устройстве, поэтому Purchase не поддерживается. Последняя транзакция
// продукта запрашивается из истории покупок по идентификатору исходной транзакции из журнала,
// обновления приходят из внешней ленты (уведомления App Store через брокер).
package appstore

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/purchasekit/internal/models"
	"github.com/magabrotheeeer/purchasekit/internal/store"
)

const tokenTTL = 5 * time.Minute

// Verifier проверяет подписанные транзакции из ответов API.
type Verifier interface {
	Verify(signed string) store.VerificationResult
}

// TransactionIndex находит идентификатор исходной транзакции продукта. Пустая строка — покупок не было.
type TransactionIndex interface {
	OriginalTransactionID(ctx context.Context, productID string) (string, error)
}

// Feed — внешний источник обновлений транзакций.
type Feed interface {
	Updates(ctx context.Context) (<-chan store.VerificationResult, error)
}

// Config — учётные данные App Store Connect.
type Config struct {
	BaseURL    string
	IssuerID   string
	KeyID      string
	BundleID   string
	PrivateKey []byte // PEM, PKCS#8 или SEC 1
	Timeout    time.Duration
}

// Options — зависимости клиента.
type Options struct {
	Products   []models.Product
	Verifier   Verifier
	Index      TransactionIndex
	Feed       Feed
	HTTPClient *http.Client
}

// Client реализует store.Store поверх App Store Server API.
type Client struct {
	cfg        Config
	key        *ecdsa.PrivateKey
	products   map[string]models.Product
	verifier   Verifier
	index      TransactionIndex
	feed       Feed
	httpClient *http.Client
	log        *slog.Logger
	now        func() time.Time
}

// NewClient создаёт клиент App Store Server API.
func NewClient(cfg Config, opts Options, log *slog.Logger) (*Client, error) {
	const op = "appstore.NewClient"
	if cfg.IssuerID == "" || cfg.KeyID == "" || cfg.BundleID == "" {
		return nil, fmt.Errorf("%s: issuer id, key id and bundle id are required", op)
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("%s: verifier is required", op)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%s: parse private key: %w", op, err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ProductionURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	products := make(map[string]models.Product, len(opts.Products))
	for _, p := range opts.Products {
		products[p.ID] = p
	}

	return &Client{
		cfg:        cfg,
		key:        key,
		products:   products,
		verifier:   opts.Verifier,
		index:      opts.Index,
		feed:       opts.Feed,
		httpClient: httpClient,
		log:        log,
		now:        time.Now,
	}, nil
}

// Products возвращает настроенные описания продуктов в порядке запроса.
func (c *Client) Products(ctx context.Context, ids []string) ([]models.Product, error) {
	const op = "appstore.Products"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			res = append(res, p)
		}
	}
	return res, nil
}

// Purchase не поддерживается: покупку запускает устройство.
func (c *Client) Purchase(_ context.Context, productID string) (store.PurchaseResult, error) {
	return store.PurchaseResult{}, fmt.Errorf("appstore.Purchase: %s: %w", productID, store.ErrPurchaseUnsupported)
}

// LatestTransaction запрашивает последнюю транзакцию продукта из истории покупок.
func (c *Client) LatestTransaction(ctx context.Context, productID string) (*store.VerificationResult, error) {
	const op = "appstore.LatestTransaction"
	log := c.log.With(slog.String("op", op), slog.String("product_id", productID))

	if c.index == nil {
		return nil, nil
	}
	originalID, err := c.index.OriginalTransactionID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if originalID == "" {
		log.Debug("no known transaction for product")
		return nil, nil
	}

	query := url.Values{}
	query.Set("productId", productID)
	query.Set("sort", "DESCENDING")
	var history HistoryResponse
	if err := c.get(ctx, "/inApps/v1/history/"+url.PathEscape(originalID), query, &history); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(history.SignedTransactions) == 0 {
		return nil, nil
	}

	res := c.verifier.Verify(history.SignedTransactions[0])
	return &res, nil
}

// Updates возвращает ленту обновлений. Без ленты канал только закрывается при отмене ctx.
func (c *Client) Updates(ctx context.Context) (<-chan store.VerificationResult, error) {
	if c.feed != nil {
		return c.feed.Updates(ctx)
	}
	ch := make(chan store.VerificationResult)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// Finish ничего не делает: серверные транзакции не требуют подтверждения.
func (c *Client) Finish(_ context.Context, tx models.Transaction) error {
	c.log.Debug("transaction finished", slog.String("transaction_id", tx.ID))
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	token, err := c.token()
	if err != nil {
		return err
	}

	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	return json.Unmarshal(body, out)
}

// token подписывает ES256 токен доступа к API.
func (c *Client) token() (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"iss": c.cfg.IssuerID,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
		"aud": audience,
		"bid": c.cfg.BundleID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = c.cfg.KeyID

	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign api token: %w", err)
	}
	return signed, nil
}
