// Package memstore — песочница платформы покупок в памяти процесса.
//
// Store хранит настроенные продукты, подписывает транзакции настоящим JWS с собственной
// цепочкой сертификатов и рассылает обновления подписчикам. Используется в режиме sandbox
// и в тестах вместо настоящего магазина.
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/purchasekit/internal/lib/period"
	"github.com/magabrotheeeer/purchasekit/internal/lib/sl"
	"github.com/magabrotheeeer/purchasekit/internal/models"
	"github.com/magabrotheeeer/purchasekit/internal/store"
	"github.com/magabrotheeeer/purchasekit/internal/verify"
)

const environmentSandbox = "Sandbox"

// Options — настройки песочницы.
type Options struct {
	BundleID string
	Products []models.Product
}

type subscriber struct {
	ch   chan store.VerificationResult
	done <-chan struct{}
}

// Store — платформа покупок в памяти. Безопасна для конкурентного использования.
type Store struct {
	bundleID string
	signer   *Signer
	verifier *verify.JWSVerifier
	log      *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	products    map[string]models.Product
	latest      map[string]store.VerificationResult
	finished    map[string]bool
	nextOutcome store.Outcome

	subsMu sync.RWMutex
	subs   map[*subscriber]struct{}
}

// New создаёт песочницу с новой цепочкой сертификатов.
func New(opts Options, log *slog.Logger) (*Store, error) {
	const op = "memstore.New"
	signer, err := NewSigner()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	verifier, err := verify.NewJWSVerifier(signer.RootPEM(), opts.BundleID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	products := make(map[string]models.Product, len(opts.Products))
	for _, p := range opts.Products {
		products[p.ID] = p
	}

	return &Store{
		bundleID: opts.BundleID,
		signer:   signer,
		verifier: verifier,
		log:      log,
		now:      time.Now,
		products: products,
		latest:   make(map[string]store.VerificationResult),
		finished: make(map[string]bool),
		subs:     make(map[*subscriber]struct{}),
	}, nil
}

// Signer возвращает подписывающего песочницы.
func (s *Store) Signer() *Signer {
	return s.signer
}

// Verifier возвращает проверяющего, доверяющего цепочке песочницы.
func (s *Store) Verifier() *verify.JWSVerifier {
	return s.verifier
}

// Products возвращает известные продукты в порядке запроса. Неизвестные идентификаторы пропускаются.
func (s *Store) Products(ctx context.Context, ids []string) ([]models.Product, error) {
	const op = "memstore.Products"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			res = append(res, p)
		}
	}
	return res, nil
}

// SetNextOutcome задаёт исход следующей покупки. Действует один раз.
func (s *Store) SetNextOutcome(o store.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOutcome = o
}

// Purchase имитирует покупку: подписывает новую транзакцию и возвращает её результат проверки.
func (s *Store) Purchase(ctx context.Context, productID string) (store.PurchaseResult, error) {
	const op = "memstore.Purchase"
	if err := ctx.Err(); err != nil {
		return store.PurchaseResult{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	product, ok := s.products[productID]
	outcome := s.nextOutcome
	s.nextOutcome = ""
	s.mu.Unlock()

	if !ok {
		return store.PurchaseResult{}, fmt.Errorf("%s: %w: %s", op, store.ErrUnknownProduct, productID)
	}
	if outcome == store.OutcomeUserCancelled || outcome == store.OutcomePending {
		return store.PurchaseResult{Outcome: outcome}, nil
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	id := uuid.NewString()
	tx := models.Transaction{
		ID:           id,
		OriginalID:   id,
		ProductID:    productID,
		BundleID:     s.bundleID,
		PurchaseDate: now,
		Environment:  environmentSandbox,
	}
	if product.SubscriptionPeriod != "" {
		expires, err := period.Add(now, product.SubscriptionPeriod)
		if err != nil {
			return store.PurchaseResult{}, fmt.Errorf("%s: %w", op, err)
		}
		tx.ExpirationDate = &expires
	}

	result, err := s.sign(tx)
	if err != nil {
		return store.PurchaseResult{}, fmt.Errorf("%s: %w", op, err)
	}
	s.remember(result)
	s.log.Debug("sandbox purchase completed", slog.String("product_id", productID), slog.String("transaction_id", id))

	return store.PurchaseResult{Outcome: store.OutcomeSuccess, Verification: result}, nil
}

// LatestTransaction возвращает последнюю транзакцию продукта или nil.
func (s *Store) LatestTransaction(ctx context.Context, productID string) (*store.VerificationResult, error) {
	const op = "memstore.LatestTransaction"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.latest[productID]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

// Updates подписывает на поток обновлений. Канал закрывается после отмены ctx.
func (s *Store) Updates(ctx context.Context) (<-chan store.VerificationResult, error) {
	sub := &subscriber{
		ch:   make(chan store.VerificationResult, 16),
		done: ctx.Done(),
	}

	s.subsMu.Lock()
	s.subs[sub] = struct{}{}
	s.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subsMu.Lock()
		delete(s.subs, sub)
		close(sub.ch)
		s.subsMu.Unlock()
	}()

	return sub.ch, nil
}

// Finish отмечает транзакцию обработанной.
func (s *Store) Finish(_ context.Context, tx models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[tx.ID] = true
	return nil
}

// IsFinished сообщает, подтверждена ли обработка транзакции.
func (s *Store) IsFinished(transactionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished[transactionID]
}

// Deliver подписывает транзакцию и рассылает её подписчикам, как внешнее событие платформы
// (покупка на другом устройстве, продление, возврат).
func (s *Store) Deliver(ctx context.Context, tx models.Transaction) (store.VerificationResult, error) {
	const op = "memstore.Deliver"
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.OriginalID == "" {
		tx.OriginalID = tx.ID
	}
	if tx.BundleID == "" {
		tx.BundleID = s.bundleID
	}
	if tx.PurchaseDate.IsZero() {
		tx.PurchaseDate = s.now().UTC().Truncate(time.Millisecond)
	}
	if tx.Environment == "" {
		tx.Environment = environmentSandbox
	}

	result, err := s.sign(tx)
	if err != nil {
		return store.VerificationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	s.remember(result)
	s.broadcast(ctx, result)
	return result, nil
}

// Revoke доставляет отзыв последней транзакции продукта.
func (s *Store) Revoke(ctx context.Context, productID string) (store.VerificationResult, error) {
	const op = "memstore.Revoke"
	s.mu.Lock()
	prev, ok := s.latest[productID]
	s.mu.Unlock()

	revokedAt := s.now().UTC().Truncate(time.Millisecond)
	tx := models.Transaction{ProductID: productID, RevocationDate: &revokedAt}
	if ok {
		tx.OriginalID = prev.Transaction.OriginalID
		tx.PurchaseDate = prev.Transaction.PurchaseDate
	}

	res, err := s.Deliver(ctx, tx)
	if err != nil {
		return store.VerificationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// Expire переподписывает последнюю транзакцию продукта с истёкшим сроком действия.
// Подписчикам ничего не рассылается: истечение видит только стартовая проверка.
func (s *Store) Expire(productID string) error {
	const op = "memstore.Expire"
	s.mu.Lock()
	prev, ok := s.latest[productID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w: %s", op, store.ErrUnknownProduct, productID)
	}

	tx := prev.Transaction
	expired := s.now().UTC().Add(-time.Second).Truncate(time.Millisecond)
	tx.ExpirationDate = &expired

	result, err := s.sign(tx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.remember(result)
	return nil
}

// DeliverSigned проверяет уже подписанную транзакцию и рассылает результат подписчикам.
// Непроверенные транзакции тоже рассылаются: отклонить их — задача сверки.
func (s *Store) DeliverSigned(ctx context.Context, signed string) store.VerificationResult {
	result := s.verifier.Verify(signed)
	if result.Verified() {
		s.remember(result)
	} else {
		s.log.Warn("delivering unverified transaction", sl.Err(result.Err))
	}
	s.broadcast(ctx, result)
	return result
}

// PublishTransaction реализует store.Publisher для режима песочницы.
func (s *Store) PublishTransaction(ctx context.Context, signed string) error {
	s.DeliverSigned(ctx, signed)
	return nil
}

func (s *Store) sign(tx models.Transaction) (store.VerificationResult, error) {
	signed, err := s.signer.Sign(verify.TransactionClaims(tx))
	if err != nil {
		return store.VerificationResult{}, err
	}
	return s.verifier.Verify(signed), nil
}

func (s *Store) remember(result store.VerificationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[result.Transaction.ProductID] = result
}

func (s *Store) broadcast(ctx context.Context, result store.VerificationResult) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for sub := range s.subs {
		select {
		case sub.ch <- result:
		case <-sub.done:
		case <-ctx.Done():
			return
		}
	}
}

// ProductIDs возвращает идентификаторы настроенных продуктов в отсортированном виде.
func (s *Store) ProductIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
