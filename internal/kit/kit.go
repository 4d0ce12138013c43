// Package kit связывает каталог тарифов, кэш продуктов, сверку купленных тарифов,
// автомат покупки, проектор состояния и классификатор устаревших пользователей
// в один контроллер покупок.
//
// Контроллер создаётся явно и передаётся потребителям через конструкторы или context.Context.
// Глобального экземпляра нет: FromContext возвращает ErrNotConfigured, если контроллер не передан.
package kit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/purchasekit/internal/catalog"
	"github.com/magabrotheeeer/purchasekit/internal/legacy"
	"github.com/magabrotheeeer/purchasekit/internal/lib/sl"
	"github.com/magabrotheeeer/purchasekit/internal/models"
	"github.com/magabrotheeeer/purchasekit/internal/productcache"
	"github.com/magabrotheeeer/purchasekit/internal/projector"
	"github.com/magabrotheeeer/purchasekit/internal/purchase"
	"github.com/magabrotheeeer/purchasekit/internal/reconciler"
	"github.com/magabrotheeeer/purchasekit/internal/sharedstorage"
	"github.com/magabrotheeeer/purchasekit/internal/store"
	"github.com/magabrotheeeer/purchasekit/internal/verify"
)

// ErrNotConfigured — контроллер не передан в контекст.
var ErrNotConfigured = errors.New("purchase kit is not configured")

const diagnosticsBuffer = 64

// Исходы покупки для метрик.
const (
	OutcomeSuccess            = "success"
	OutcomeUserCancelled      = "user_cancelled"
	OutcomePending            = "pending"
	OutcomeVerificationFailed = "verification_failed"
	OutcomeError              = "error"
)

// Metrics — счётчики, которые обновляет контроллер.
type Metrics interface {
	TransactionApplied(action string)
	VerificationFailed(source string)
	ErrorSwallowed(source string)
	PurchaseAttempt(outcome string)
	SetPurchasedTiers(n int)
	ObserveLoad(d time.Duration)
}

// TransactionVerifier проверяет подписанные транзакции из уведомлений.
type TransactionVerifier interface {
	Verify(signed string) store.VerificationResult
}

// Diagnostic — ошибка, которую контроллер записал в лог и не показал интерфейсу.
type Diagnostic struct {
	Source string
	Err    error
	Time   time.Time
}

// Deps — зависимости контроллера.
type Deps struct {
	Log      *slog.Logger
	Catalog  *catalog.Catalog
	Store    store.Store
	Verifier TransactionVerifier
	Storage  sharedstorage.Storage
	Legacy   *legacy.Classifier
	Journal  reconciler.Journal
	Metrics  Metrics
}

// Options — настройки поведения.
type Options struct {
	IsAppExtension    bool
	PurchasedOverride *bool
	ResetDelay        time.Duration
	SharedStorageKey  string
	TermsURL          string
	PrivacyURL        string

	OnPurchase          func(tx models.Transaction)
	OnTransactionUpdate func(purchased []string)
}

// Links — ссылки на условия использования и политику конфиденциальности.
type Links struct {
	TermsURL   string `json:"terms_url,omitempty"`
	PrivacyURL string `json:"privacy_url,omitempty"`
}

// FeatureStatus — функция приложения и её доступность при текущем состоянии покупки.
type FeatureStatus struct {
	models.Feature
	Unlocked bool `json:"unlocked"`
}

// Snapshot — согласованный срез состояния для наблюдателей.
type Snapshot struct {
	Loaded        bool                 `json:"loaded"`
	PurchaseState models.PurchaseState `json:"purchase_state"`
	ActiveTier    *models.Tier         `json:"active_tier,omitempty"`
	Purchased     []string             `json:"purchased"`
	Transaction   purchase.State       `json:"transaction"`
	IsLegacyUser  bool                 `json:"is_legacy_user"`
}

// Controller — возможности контроллера покупок, доступные потребителям.
type Controller interface {
	HasLoaded() bool
	PurchaseState(ctx context.Context) models.PurchaseState
	ActiveTier() *models.Tier
	Products() []models.Product
	Tiers(ctx context.Context) []models.Tier
	TipTiers() []models.TipTier
	Features(ctx context.Context) []FeatureStatus
	IsLegacyUser(ctx context.Context) bool
	TransactionState() purchase.State
	Snapshot(ctx context.Context) Snapshot
	Links() Links
	Purchase(ctx context.Context, tierID string) (*models.Transaction, error)
	PurchaseTip(ctx context.Context, tipID string) (*models.Transaction, error)
	SetOverride(override *bool)
	HandleSignedTransaction(ctx context.Context, signed string) error
	Subscribe() (<-chan Snapshot, func())
}

var _ Controller = (*Kit)(nil)

// Kit — контроллер покупок.
type Kit struct {
	log       *slog.Logger
	catalog   *catalog.Catalog
	store     store.Store
	verifier  TransactionVerifier
	products  *productcache.Cache
	reconcile *reconciler.Reconciler
	flow      *purchase.Flow
	projector *projector.Projector
	legacy    *legacy.Classifier
	metrics   Metrics
	opts      Options

	loaded      atomic.Bool
	loadedCh    chan struct{}
	diagnostics chan Diagnostic

	publishMu sync.Mutex
	subsMu    sync.Mutex
	subs      map[int]chan Snapshot
	nextSub   int

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New собирает контроллер. Start запускает загрузку и слушатель обновлений.
func New(deps Deps, opts Options) (*Kit, error) {
	const op = "kit.New"
	if deps.Catalog == nil {
		return nil, fmt.Errorf("%s: catalog is required", op)
	}
	if deps.Store == nil && !opts.IsAppExtension {
		return nil, fmt.Errorf("%s: store is required outside app extensions", op)
	}
	if deps.Storage == nil {
		deps.Storage = sharedstorage.NewMemory()
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	k := &Kit{
		log:         deps.Log,
		catalog:     deps.Catalog,
		store:       deps.Store,
		verifier:    deps.Verifier,
		products:    productcache.New(),
		legacy:      deps.Legacy,
		metrics:     deps.Metrics,
		opts:        opts,
		loadedCh:    make(chan struct{}),
		diagnostics: make(chan Diagnostic, diagnosticsBuffer),
		subs:        make(map[int]chan Snapshot),
	}
	k.flow = purchase.New(opts.ResetDelay, func(purchase.State) { k.publish(context.Background()) })
	k.projector = projector.New(deps.Log, deps.Storage, opts.SharedStorageKey, opts.IsAppExtension, opts.PurchasedOverride)
	if deps.Store != nil {
		k.reconcile = reconciler.New(deps.Log, deps.Catalog, deps.Store, reconciler.Options{
			Journal:  deps.Journal,
			OnUpdate: k.onUpdate,
			OnError: func(source reconciler.Source, err error) {
				k.report(string(source), err)
			},
		})
	}
	return k, nil
}

// Start запускает слушатель обновлений транзакций и параллельно загружает продукты
// и проверяет существующие транзакции. Повторные вызовы ничего не делают.
// Слушатель работает до Close.
func (k *Kit) Start(ctx context.Context) {
	k.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		k.cancel = cancel

		if k.opts.IsAppExtension {
			k.markLoaded()
			return
		}

		k.wg.Add(2)
		go func() {
			defer k.wg.Done()
			if err := k.reconcile.ListenForTransactions(runCtx); err != nil {
				k.log.Error("transaction listener stopped", sl.Err(err))
				k.report("listener", err)
			}
		}()
		go func() {
			defer k.wg.Done()
			k.load(runCtx)
		}()
	})
}

func (k *Kit) load(ctx context.Context) {
	const op = "kit.load"
	log := k.log.With(slog.String("op", op))
	start := time.Now()

	var g errgroup.Group
	g.Go(func() error {
		if err := k.products.Load(ctx, k.store, k.catalog.ProductIDs()); err != nil {
			k.report("products", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		return k.reconcile.VerifyExistingTransactions(ctx)
	})
	if err := g.Wait(); err != nil {
		log.Warn("loaded with errors", sl.Err(err))
	}

	if k.metrics != nil {
		k.metrics.ObserveLoad(time.Since(start))
	}
	k.markLoaded()
	log.Info("purchases loaded",
		slog.Int("products", k.products.Len()),
		slog.Any("purchased", k.reconcile.Purchased()),
		slog.Duration("took", time.Since(start)),
	)
}

func (k *Kit) markLoaded() {
	if k.loaded.CompareAndSwap(false, true) {
		close(k.loadedCh)
		k.publish(context.Background())
	}
}

// Close останавливает слушатель, сверку и таймер автомата покупки.
func (k *Kit) Close() {
	k.closeOnce.Do(func() {
		if k.cancel != nil {
			k.cancel()
		}
		k.wg.Wait()
		k.flow.Stop()
		if k.reconcile != nil {
			k.reconcile.Close()
		}

		k.subsMu.Lock()
		for id, ch := range k.subs {
			close(ch)
			delete(k.subs, id)
		}
		k.subsMu.Unlock()
	})
}

// HasLoaded сообщает, завершились ли загрузка продуктов и стартовая проверка.
func (k *Kit) HasLoaded() bool {
	return k.loaded.Load()
}

// Loaded закрывается, когда HasLoaded становится true.
func (k *Kit) Loaded() <-chan struct{} {
	return k.loadedCh
}

// Diagnostics возвращает канал проглоченных ошибок. При переполнении новые ошибки отбрасываются.
func (k *Kit) Diagnostics() <-chan Diagnostic {
	return k.diagnostics
}

// PurchaseState возвращает pending, not_purchased или purchased.
func (k *Kit) PurchaseState(ctx context.Context) models.PurchaseState {
	return k.projector.State(ctx, projector.Inputs{
		Loaded:        k.HasLoaded(),
		HasActiveTier: k.ActiveTier() != nil,
	})
}

// ActiveTier возвращает купленный тариф с наибольшим рангом или nil.
func (k *Kit) ActiveTier() *models.Tier {
	if k.reconcile == nil {
		return nil
	}
	purchased := k.reconcile.Purchased()
	if len(purchased) == 0 {
		return nil
	}
	tiers := k.catalog.Tiers()
	for i := len(tiers) - 1; i >= 0; i-- {
		for _, id := range purchased {
			if tiers[i].ID == id {
				tier := tiers[i]
				return &tier
			}
		}
	}
	return nil
}

// Purchased возвращает идентификаторы купленных тарифов.
func (k *Kit) Purchased() []string {
	if k.reconcile == nil {
		return []string{}
	}
	return k.reconcile.Purchased()
}

// Products возвращает загруженные продукты в порядке каталога.
func (k *Kit) Products() []models.Product {
	return k.products.Products(k.catalog.ProductIDs())
}

// Tiers возвращает видимые тарифы. Устаревший пожизненный тариф виден только устаревшим пользователям.
func (k *Kit) Tiers(ctx context.Context) []models.Tier {
	return k.catalog.VisibleTiers(k.IsLegacyUser(ctx))
}

// TipTiers возвращает варианты чаевых.
func (k *Kit) TipTiers() []models.TipTier {
	return k.catalog.TipTiers()
}

// Features возвращает функции приложения с признаком доступности.
func (k *Kit) Features(ctx context.Context) []FeatureStatus {
	state := k.PurchaseState(ctx)
	features := k.catalog.Features()
	res := make([]FeatureStatus, 0, len(features))
	for _, f := range features {
		res = append(res, FeatureStatus{Feature: f, Unlocked: f.Unlocked(state)})
	}
	return res
}

// IsLegacyUser сообщает, установил ли пользователь приложение до порога.
func (k *Kit) IsLegacyUser(ctx context.Context) bool {
	if k.legacy == nil {
		return false
	}
	return k.legacy.IsLegacyUser(ctx)
}

// TransactionState возвращает состояние автомата покупки.
func (k *Kit) TransactionState() purchase.State {
	return k.flow.State()
}

// Links возвращает ссылки на условия и политику конфиденциальности.
func (k *Kit) Links() Links {
	return Links{TermsURL: k.opts.TermsURL, PrivacyURL: k.opts.PrivacyURL}
}

// SetOverride задаёт ручное переопределение состояния покупки. nil снимает его.
func (k *Kit) SetOverride(override *bool) {
	k.projector.SetOverride(override)
	k.publish(context.Background())
}

// Override возвращает текущее переопределение.
func (k *Kit) Override() *bool {
	return k.projector.Override()
}

// Snapshot собирает состояние для наблюдателей и API.
func (k *Kit) Snapshot(ctx context.Context) Snapshot {
	return Snapshot{
		Loaded:        k.HasLoaded(),
		PurchaseState: k.PurchaseState(ctx),
		ActiveTier:    k.ActiveTier(),
		Purchased:     k.Purchased(),
		Transaction:   k.TransactionState(),
		IsLegacyUser:  k.IsLegacyUser(ctx),
	}
}

// Subscribe возвращает канал снимков состояния. В канале хранится только последний снимок.
// Возвращённая функция отменяет подписку.
func (k *Kit) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	k.subsMu.Lock()
	id := k.nextSub
	k.nextSub++
	k.subs[id] = ch
	k.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			k.subsMu.Lock()
			defer k.subsMu.Unlock()
			if _, ok := k.subs[id]; ok {
				delete(k.subs, id)
				close(ch)
			}
		})
	}
}

// publish рассылает снимок подписчикам. Снимки собираются и отправляются по очереди,
// поэтому последним подписчик получает самый свежий.
func (k *Kit) publish(ctx context.Context) {
	k.publishMu.Lock()
	defer k.publishMu.Unlock()

	k.subsMu.Lock()
	empty := len(k.subs) == 0
	k.subsMu.Unlock()
	if empty {
		return
	}

	snap := k.Snapshot(ctx)

	k.subsMu.Lock()
	defer k.subsMu.Unlock()
	for _, ch := range k.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Purchase покупает тариф. Возвращает nil без ошибки, если покупка отменена, отложена,
// не прошла проверку или магазин вернул ошибку: такие случаи видны только в Diagnostics.
func (k *Kit) Purchase(ctx context.Context, tierID string) (*models.Transaction, error) {
	const op = "kit.Purchase"
	tier, ok := k.catalog.Tier(tierID)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", op, catalog.ErrUnknownTier, tierID)
	}
	return k.purchase(ctx, op, tier.ID, tier.Kind)
}

// PurchaseTip покупает чаевые. Набор купленных тарифов не меняется.
func (k *Kit) PurchaseTip(ctx context.Context, tipID string) (*models.Transaction, error) {
	const op = "kit.PurchaseTip"
	tip, ok := k.catalog.Tip(tipID)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", op, catalog.ErrUnknownTip, tipID)
	}
	return k.purchase(ctx, op, tip.ID, "")
}

func (k *Kit) purchase(ctx context.Context, op, productID string, kind models.TierKind) (*models.Transaction, error) {
	log := k.log.With(slog.String("op", op), slog.String("product_id", productID))

	if k.opts.IsAppExtension || k.store == nil {
		return nil, fmt.Errorf("%s: %w", op, store.ErrPurchaseUnsupported)
	}
	if err := k.flow.Begin(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err := k.store.Purchase(ctx, productID)
	if err != nil {
		k.abort(log)
		if errors.Is(err, store.ErrPurchaseUnsupported) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Error("purchase failed", sl.Err(err))
		k.report("purchase", err)
		k.attempt(OutcomeError)
		return nil, nil
	}

	switch res.Outcome {
	case store.OutcomeUserCancelled:
		log.Info("purchase cancelled by user")
		k.abort(log)
		k.attempt(OutcomeUserCancelled)
		return nil, nil
	case store.OutcomePending:
		log.Info("purchase pending")
		k.abort(log)
		k.attempt(OutcomePending)
		return nil, nil
	}

	tx, err := verify.Checked(res.Verification)
	if err != nil {
		log.Warn("purchase failed verification", sl.Err(err))
		k.abort(log)
		k.report("purchase", err)
		k.attempt(OutcomeVerificationFailed)
		return nil, nil
	}

	if _, err := k.reconcile.UpdatePurchasedTiers(ctx, tx); err != nil {
		log.Error("failed to apply purchase", sl.Err(err))
		k.abort(log)
		k.report("purchase", err)
		k.attempt(OutcomeError)
		return nil, nil
	}
	if err := k.store.Finish(ctx, tx); err != nil {
		log.Warn("failed to finish transaction", sl.Err(err))
		k.report(string(reconciler.SourceFinish), err)
	}
	if err := k.flow.Complete(productID, kind); err != nil {
		log.Warn("unexpected transaction state", sl.Err(err))
	}
	if k.opts.OnPurchase != nil {
		k.opts.OnPurchase(tx)
	}
	k.attempt(OutcomeSuccess)
	log.Info("purchase completed", slog.String("transaction_id", tx.ID))

	return &tx, nil
}

// HandleSignedTransaction проверяет транзакцию из внешнего уведомления, применяет её
// (истёкшая подписка снимает тариф) и подтверждает в магазине.
// Используется, когда уведомления не проходят через брокер.
func (k *Kit) HandleSignedTransaction(ctx context.Context, signed string) error {
	const op = "kit.HandleSignedTransaction"
	if k.verifier == nil || k.reconcile == nil {
		return fmt.Errorf("%s: %w", op, store.ErrPurchaseUnsupported)
	}

	tx, err := verify.Checked(k.verifier.Verify(signed))
	if err != nil {
		k.report("webhook", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := k.reconcile.Apply(ctx, tx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := k.store.Finish(ctx, tx); err != nil {
		k.log.Warn("failed to finish transaction", slog.String("op", op), slog.String("transaction_id", tx.ID), sl.Err(err))
		k.report(string(reconciler.SourceFinish), err)
	}
	return nil
}

// PublishTransaction позволяет использовать контроллер как store.Publisher.
func (k *Kit) PublishTransaction(ctx context.Context, signed string) error {
	return k.HandleSignedTransaction(ctx, signed)
}

func (k *Kit) abort(log *slog.Logger) {
	if err := k.flow.Abort(); err != nil {
		log.Warn("unexpected transaction state", sl.Err(err))
	}
}

func (k *Kit) attempt(outcome string) {
	if k.metrics != nil {
		k.metrics.PurchaseAttempt(outcome)
	}
}

func (k *Kit) onUpdate(upd reconciler.Update) {
	if k.metrics != nil {
		k.metrics.TransactionApplied(string(upd.Action))
		k.metrics.SetPurchasedTiers(len(upd.Purchased))
	}
	if k.opts.OnTransactionUpdate != nil {
		k.opts.OnTransactionUpdate(upd.Purchased)
	}
	k.publish(context.Background())
}

// report отправляет проглоченную ошибку в Diagnostics. Ошибки проверки подписи
// дополнительно учитываются отдельно от сетевых и прочих.
func (k *Kit) report(source string, err error) {
	if k.metrics != nil {
		k.metrics.ErrorSwallowed(source)
		if errors.Is(err, store.ErrFailedStoreVerification) {
			k.metrics.VerificationFailed(source)
		}
	}
	select {
	case k.diagnostics <- Diagnostic{Source: source, Err: err, Time: time.Now()}:
	default:
	}
}

type ctxKey struct{}

// NewContext возвращает контекст с контроллером.
func NewContext(ctx context.Context, k *Kit) context.Context {
	return context.WithValue(ctx, ctxKey{}, k)
}

// FromContext извлекает контроллер из контекста.
func FromContext(ctx context.Context) (*Kit, error) {
	k, ok := ctx.Value(ctxKey{}).(*Kit)
	if !ok || k == nil {
		return nil, ErrNotConfigured
	}
	return k, nil
}
