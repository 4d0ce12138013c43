// Package sharedstorage — общее хранилище ключ-значение, через которое основное приложение
// передаёт флаг покупки расширениям. Расширения не обращаются к магазину напрямую.
package sharedstorage

import (
	"context"
	"sync"
)

// PurchasedKey — ключ флага покупки по умолчанию.
const PurchasedKey = "purchasekit.purchased"

// Storage — хранилище булевых флагов.
type Storage interface {
	// GetBool возвращает значение и признак наличия ключа.
	GetBool(ctx context.Context, key string) (value bool, found bool, err error)
	SetBool(ctx context.Context, key string, value bool) error
}

// Memory — хранилище в памяти процесса для режима без redis и для тестов.
type Memory struct {
	mu     sync.RWMutex
	values map[string]bool
}

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]bool)}
}

// GetBool читает флаг из памяти.
func (m *Memory) GetBool(_ context.Context, key string) (bool, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// SetBool сохраняет флаг в памяти.
func (m *Memory) SetBool(_ context.Context, key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
