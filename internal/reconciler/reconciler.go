// Package reconciler поддерживает набор купленных тарифов в согласии с транзакциями магазина.
//
// Набором владеет одна горутина (актор). Все чтения и изменения выполняются командами,
// которые передаются ей через канал, поэтому набор никогда не изменяется конкурентно:
// стартовая проверка и слушатель обновлений сериализуются одним исполнителем.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/magabrotheeeer/purchasekit/internal/catalog"
	"github.com/magabrotheeeer/purchasekit/internal/lib/sl"
	"github.com/magabrotheeeer/purchasekit/internal/models"
	"github.com/magabrotheeeer/purchasekit/internal/store"
	"github.com/magabrotheeeer/purchasekit/internal/verify"
)

// ErrClosed возвращается командами после Close.
var ErrClosed = errors.New("reconciler is closed")

// Action — что сверка сделала с набором тарифов.
type Action string

const (
	ActionInsert Action = "insert"
	ActionRemove Action = "remove"
	// ActionIgnore — транзакция не относится ни к одному тарифу (например, чаевые).
	ActionIgnore Action = "ignore"
)

// Source — откуда пришла ошибка сверки.
type Source string

const (
	SourceSweep    Source = "sweep"
	SourceListener Source = "listener"
	SourceFinish   Source = "finish"
	SourceJournal  Source = "journal"
)

// Update — сведения об одном применённом изменении.
type Update struct {
	Transaction models.Transaction
	Action      Action
	Purchased   []string
}

// Journal сохраняет применённые транзакции.
type Journal interface {
	RecordTransaction(ctx context.Context, tx models.Transaction, action string) error
}

// Options — необязательные зависимости сверки.
type Options struct {
	Journal  Journal
	OnUpdate func(Update)
	// OnError получает ошибки, которые сверка записывает в лог и пропускает.
	OnError func(source Source, err error)
	Now     func() time.Time
}

type tierSet map[string]struct{}

// Reconciler — единственный владелец набора купленных тарифов.
type Reconciler struct {
	log     *slog.Logger
	catalog *catalog.Catalog
	source  store.TransactionSource
	opts    Options

	cmds      chan func(tierSet)
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New создаёт сверку и запускает горутину-владельца набора.
func New(log *slog.Logger, c *catalog.Catalog, source store.TransactionSource, opts Options) *Reconciler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Reconciler{
		log:     log,
		catalog: c,
		source:  source,
		opts:    opts,
		cmds:    make(chan func(tierSet)),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Reconciler) loop() {
	defer close(r.stopped)
	set := make(tierSet)
	for {
		select {
		case cmd := <-r.cmds:
			cmd(set)
		case <-r.quit:
			return
		}
	}
}

// do выполняет команду в горутине-владельце и ждёт её завершения.
func (r *Reconciler) do(cmd func(tierSet)) error {
	done := make(chan struct{})
	wrapped := func(set tierSet) {
		defer close(done)
		cmd(set)
	}
	select {
	case r.cmds <- wrapped:
	case <-r.quit:
		return ErrClosed
	}
	<-done
	return nil
}

// Close останавливает горутину-владельца. Повторный вызов безопасен.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		close(r.quit)
	})
	<-r.stopped
}

// Purchased возвращает отсортированный список купленных тарифов.
func (r *Reconciler) Purchased() []string {
	var res []string
	_ = r.do(func(set tierSet) {
		res = set.sorted()
	})
	return res
}

// Contains сообщает, куплен ли тариф.
func (r *Reconciler) Contains(tierID string) bool {
	var ok bool
	_ = r.do(func(set tierSet) {
		_, ok = set[tierID]
	})
	return ok
}

// UpdatePurchasedTiers применяет транзакцию к набору: без даты отзыва добавляет тариф,
// соответствующий продукту, с датой отзыва удаляет все такие тарифы. Операция идемпотентна.
func (r *Reconciler) UpdatePurchasedTiers(ctx context.Context, tx models.Transaction) (Update, error) {
	return r.apply(ctx, "reconciler.UpdatePurchasedTiers", tx, tx.IsRevoked())
}

// Apply применяет транзакцию, доставленную слушателем или уведомлением. Истёкшая подписка
// снимает тарифы продукта так же, как отзыв; остальные транзакции идут в UpdatePurchasedTiers.
func (r *Reconciler) Apply(ctx context.Context, tx models.Transaction) (Update, error) {
	if tx.IsRevoked() || !tx.IsExpired(r.opts.Now()) {
		return r.UpdatePurchasedTiers(ctx, tx)
	}
	return r.apply(ctx, "reconciler.Apply", tx, true)
}

func (r *Reconciler) apply(ctx context.Context, op string, tx models.Transaction, remove bool) (Update, error) {
	upd := Update{Transaction: tx, Action: ActionIgnore}

	err := r.do(func(set tierSet) {
		if !remove {
			if tier, ok := r.catalog.TierForProduct(tx.ProductID); ok {
				set[tier.ID] = struct{}{}
				upd.Action = ActionInsert
			}
		} else {
			for _, tier := range r.catalog.Tiers() {
				if tier.Matches(tx.ProductID) {
					delete(set, tier.ID)
					upd.Action = ActionRemove
				}
			}
		}
		upd.Purchased = set.sorted()
	})
	if err != nil {
		return Update{}, fmt.Errorf("%s: %w", op, err)
	}

	r.log.Debug("purchased tiers updated",
		slog.String("op", op),
		slog.String("product_id", tx.ProductID),
		slog.String("action", string(upd.Action)),
		slog.Any("purchased", upd.Purchased),
	)

	if r.opts.Journal != nil && upd.Action != ActionIgnore {
		if err := r.opts.Journal.RecordTransaction(ctx, tx, string(upd.Action)); err != nil {
			r.report(SourceJournal, fmt.Errorf("%s: %w", op, err))
		}
	}
	if r.opts.OnUpdate != nil {
		r.opts.OnUpdate(upd)
	}
	return upd, nil
}

// VerifyExistingTransactions запрашивает последнюю транзакцию для каждого известного продукта
// тарифа и добавляет тариф, если транзакция проверена, не отозвана и не истекла.
// Ошибка по одному продукту не прерывает проверку остальных; все ошибки возвращаются вместе.
func (r *Reconciler) VerifyExistingTransactions(ctx context.Context) error {
	const op = "reconciler.VerifyExistingTransactions"
	log := r.log.With(slog.String("op", op))

	var errs []error
	for _, tier := range r.catalog.Tiers() {
		ids := append([]string{tier.ID}, tier.AlternateIDs...)
		for _, productID := range ids {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			result, err := r.source.LatestTransaction(ctx, productID)
			if err != nil {
				err = fmt.Errorf("%s: %s: %w", op, productID, err)
				log.Warn("failed to get latest transaction", slog.String("product_id", productID), sl.Err(err))
				r.report(SourceSweep, err)
				errs = append(errs, err)
				continue
			}
			if result == nil {
				continue
			}

			tx, err := verify.Checked(*result)
			if err != nil {
				err = fmt.Errorf("%s: %s: %w", op, productID, err)
				log.Warn("transaction failed verification", slog.String("product_id", productID), sl.Err(err))
				r.report(SourceSweep, err)
				errs = append(errs, err)
				continue
			}
			if !tx.IsActive(r.opts.Now()) {
				log.Debug("skipping inactive transaction", slog.String("product_id", productID))
				continue
			}

			if _, err := r.UpdatePurchasedTiers(ctx, tx); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	return errors.Join(errs...)
}

// ListenForTransactions обрабатывает поток обновлений, пока не отменён ctx или поток не закрыт.
// Каждая транзакция проверяется, применяется к набору, подтверждается в магазине и только
// после этого подтверждается источнику доставки. Непроверенные транзакции не подтверждаются
// в магазине и отклоняются без повторной доставки.
func (r *Reconciler) ListenForTransactions(ctx context.Context) error {
	const op = "reconciler.ListenForTransactions"
	log := r.log.With(slog.String("op", op))

	updates, err := r.source.Updates(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("listening for transaction updates")

	for {
		select {
		case <-ctx.Done():
			return nil
		case result, ok := <-updates:
			if !ok {
				log.Info("transaction updates closed")
				return nil
			}
			r.handle(ctx, log, result)
		}
	}
}

func (r *Reconciler) handle(ctx context.Context, log *slog.Logger, result store.VerificationResult) {
	tx, err := verify.Checked(result)
	if err != nil {
		log.Warn("transaction failed verification", slog.String("transaction_id", result.Transaction.ID), sl.Err(err))
		r.report(SourceListener, err)
		settle(log, result.Reject(false))
		return
	}

	if _, err := r.Apply(ctx, tx); err != nil {
		log.Error("failed to apply transaction", sl.Err(err))
		r.report(SourceListener, err)
		settle(log, result.Reject(true))
		return
	}

	if err := r.source.Finish(ctx, tx); err != nil {
		log.Warn("failed to finish transaction", slog.String("transaction_id", tx.ID), sl.Err(err))
		r.report(SourceFinish, err)
		settle(log, result.Reject(true))
		return
	}
	settle(log, result.Ack())
}

func settle(log *slog.Logger, err error) {
	if err != nil {
		log.Warn("failed to settle delivery", sl.Err(err))
	}
}

func (r *Reconciler) report(source Source, err error) {
	if r.opts.OnError != nil {
		r.opts.OnError(source, err)
	}
}

func (s tierSet) sorted() []string {
	res := make([]string, 0, len(s))
	for id := range s {
		res = append(res, id)
	}
	slices.Sort(res)
	return res
}
