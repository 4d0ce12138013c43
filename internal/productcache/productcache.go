// Package productcache хранит описания продуктов, полученные из магазина при старте.
// Кэш заполняется один раз за время жизни процесса и не обновляется.
package productcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/magabrotheeeer/purchasekit/internal/models"
	"github.com/magabrotheeeer/purchasekit/internal/store"
)

// Cache — кэш продуктов по идентификатору.
type Cache struct {
	mu       sync.RWMutex
	once     sync.Once
	loaded   bool
	products map[string]models.Product
}

// New создаёт пустой кэш.
func New() *Cache {
	return &Cache{products: make(map[string]models.Product)}
}

// Load запрашивает продукты у магазина. Повторные вызовы ничего не делают,
// даже если первый завершился ошибкой: в этом случае кэш остаётся пустым.
func (c *Cache) Load(ctx context.Context, source store.ProductSource, ids []string) error {
	const op = "productcache.Load"
	var err error
	c.once.Do(func() {
		var products []models.Product
		products, err = source.Products(ctx, ids)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.loaded = true
		if err != nil {
			return
		}
		for _, p := range products {
			c.products[p.ID] = p
		}
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Loaded сообщает, был ли выполнен запрос к магазину.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Product возвращает продукт по идентификатору.
func (c *Cache) Product(id string) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

// Products возвращает продукты в заданном порядке, пропуская отсутствующие.
func (c *Cache) Products(order []string) []models.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]models.Product, 0, len(order))
	for _, id := range order {
		if p, ok := c.products[id]; ok {
			res = append(res, p)
		}
	}
	return res
}

// Len возвращает число закэшированных продуктов.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}
