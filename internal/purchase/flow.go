// Package purchase реализует конечный автомат покупки, который управляет кратковременной
// обратной связью интерфейса: pending -> purchasing -> {purchased | pending}.
// Из purchased автомат сам возвращается в pending через фиксированную задержку.
package purchase

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/magabrotheeeer/purchasekit/internal/models"
)

// DefaultResetDelay — задержка возврата из purchased в pending.
const DefaultResetDelay = 1500 * time.Millisecond

var (
	// ErrPurchaseInProgress — покупка уже идёт или ещё показывается результат предыдущей.
	ErrPurchaseInProgress = errors.New("purchase already in progress")
	// ErrInvalidTransition — переход не разрешён таблицей переходов.
	ErrInvalidTransition = errors.New("invalid transaction state transition")
)

// Phase — фаза автомата.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhasePurchasing Phase = "purchasing"
	PhasePurchased  Phase = "purchased"
)

var transitions = map[Phase]map[Phase]struct{}{
	PhasePending:    {PhasePurchasing: {}},
	PhasePurchasing: {PhasePurchased: {}, PhasePending: {}},
	PhasePurchased:  {PhasePending: {}},
}

// CanTransition сообщает, разрешён ли переход.
func CanTransition(from, to Phase) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// State — состояние транзакции для интерфейса. Kind и ProductID заполнены только в purchased.
type State struct {
	Phase     Phase           `json:"phase"`
	Kind      models.TierKind `json:"kind,omitempty"`
	ProductID string          `json:"product_id,omitempty"`
}

// Flow — автомат покупки. Безопасен для конкурентного использования.
type Flow struct {
	mu         sync.Mutex
	state      State
	resetDelay time.Duration
	timer      *time.Timer
	generation uint64
	onChange   func(State)
}

// New создаёт автомат в состоянии pending. resetDelay <= 0 заменяется на DefaultResetDelay.
// onChange вызывается после каждого перехода вне блокировки.
func New(resetDelay time.Duration, onChange func(State)) *Flow {
	if resetDelay <= 0 {
		resetDelay = DefaultResetDelay
	}
	return &Flow{
		state:      State{Phase: PhasePending},
		resetDelay: resetDelay,
		onChange:   onChange,
	}
}

// State возвращает текущее состояние.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Begin переводит автомат в purchasing.
func (f *Flow) Begin() error {
	const op = "purchase.Begin"
	f.mu.Lock()
	if f.state.Phase != PhasePending {
		f.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrPurchaseInProgress)
	}
	s := f.moveLocked(State{Phase: PhasePurchasing})
	f.mu.Unlock()

	f.notify(s)
	return nil
}

// Complete фиксирует подтверждённую покупку и планирует возврат в pending.
// Для чаевых kind пустой.
func (f *Flow) Complete(productID string, kind models.TierKind) error {
	const op = "purchase.Complete"
	f.mu.Lock()
	if !CanTransition(f.state.Phase, PhasePurchased) {
		f.mu.Unlock()
		return fmt.Errorf("%s: %w: %s -> %s", op, ErrInvalidTransition, f.state.Phase, PhasePurchased)
	}
	s := f.moveLocked(State{Phase: PhasePurchased, Kind: kind, ProductID: productID})
	gen := f.generation
	f.timer = time.AfterFunc(f.resetDelay, func() { f.reset(gen) })
	f.mu.Unlock()

	f.notify(s)
	return nil
}

// Abort возвращает автомат из purchasing в pending: отмена, отложенная покупка или ошибка.
func (f *Flow) Abort() error {
	const op = "purchase.Abort"
	f.mu.Lock()
	if f.state.Phase != PhasePurchasing {
		f.mu.Unlock()
		return fmt.Errorf("%s: %w: %s -> %s", op, ErrInvalidTransition, f.state.Phase, PhasePending)
	}
	s := f.moveLocked(State{Phase: PhasePending})
	f.mu.Unlock()

	f.notify(s)
	return nil
}

// Stop отменяет запланированный возврат в pending.
func (f *Flow) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.generation++
}

func (f *Flow) reset(gen uint64) {
	f.mu.Lock()
	if gen != f.generation || f.state.Phase != PhasePurchased {
		f.mu.Unlock()
		return
	}
	s := f.moveLocked(State{Phase: PhasePending})
	f.timer = nil
	f.mu.Unlock()

	f.notify(s)
}

func (f *Flow) moveLocked(next State) State {
	f.state = next
	f.generation++
	return next
}

func (f *Flow) notify(s State) {
	if f.onChange != nil {
		f.onChange(s)
	}
}
