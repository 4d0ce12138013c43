// Package projector выводит трёхзначное состояние покупки из набора купленных тарифов,
// ручного переопределения и общего хранилища расширений.
package projector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/magabrotheeeer/purchasekit/internal/lib/sl"
	"github.com/magabrotheeeer/purchasekit/internal/models"
	"github.com/magabrotheeeer/purchasekit/internal/sharedstorage"
)

// Inputs — состояние основного приложения, нужное для вычисления.
type Inputs struct {
	Loaded        bool
	HasActiveTier bool
}

// Projector вычисляет PurchaseState при каждом чтении.
type Projector struct {
	log         *slog.Logger
	storage     sharedstorage.Storage
	key         string
	isExtension bool

	mu       sync.RWMutex
	override *bool
}

// New создаёт проектор. Пустой key заменяется на sharedstorage.PurchasedKey.
func New(log *slog.Logger, storage sharedstorage.Storage, key string, isExtension bool, override *bool) *Projector {
	if key == "" {
		key = sharedstorage.PurchasedKey
	}
	p := &Projector{
		log:         log,
		storage:     storage,
		key:         key,
		isExtension: isExtension,
	}
	p.SetOverride(override)
	return p
}

// SetOverride задаёт или снимает (nil) ручное переопределение.
func (p *Projector) SetOverride(override *bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if override == nil {
		p.override = nil
		return
	}
	v := *override
	p.override = &v
}

// Override возвращает текущее переопределение или nil.
func (p *Projector) Override() *bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.override == nil {
		return nil
	}
	v := *p.override
	return &v
}

// IsExtension сообщает, работает ли проектор в контексте расширения.
func (p *Projector) IsExtension() bool {
	return p.isExtension
}

// State возвращает состояние покупки. Порядок: переопределение, затем общее хранилище для
// расширений, затем pending до загрузки. После загрузки флаг покупки записывается в общее хранилище.
func (p *Projector) State(ctx context.Context, in Inputs) models.PurchaseState {
	const op = "projector.State"
	log := p.log.With(slog.String("op", op))

	if o := p.Override(); o != nil {
		return models.PurchaseStateFromBool(*o)
	}

	if p.isExtension {
		v, found, err := p.storage.GetBool(ctx, p.key)
		if err != nil {
			log.Warn("failed to read shared purchase flag", sl.Err(err))
			return models.PurchaseStateNotPurchased
		}
		if !found {
			return models.PurchaseStateNotPurchased
		}
		return models.PurchaseStateFromBool(v)
	}

	if !in.Loaded {
		return models.PurchaseStatePending
	}

	if err := p.storage.SetBool(ctx, p.key, in.HasActiveTier); err != nil {
		log.Warn("failed to write shared purchase flag", sl.Err(err))
	}
	return models.PurchaseStateFromBool(in.HasActiveTier)
}
