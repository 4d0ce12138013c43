// Package catalog хранит неизменяемый каталог тарифов, чаевых и описаний функций,
// объявленных приложением при конфигурации.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/magabrotheeeer/purchasekit/internal/models"
)

var (
	// ErrEmptyCatalog — в конфигурации нет ни одного тарифа.
	ErrEmptyCatalog = errors.New("catalog has no tiers")
	// ErrDuplicateID — идентификатор продукта встречается дважды.
	ErrDuplicateID = errors.New("duplicate product id")
	// ErrUnknownTier — тариф с таким идентификатором не объявлен.
	ErrUnknownTier = errors.New("unknown tier")
	// ErrUnknownTip — чаевые с таким идентификатором не объявлены.
	ErrUnknownTip = errors.New("unknown tip")
)

// Catalog — каталог тарифов. Безопасен для конкурентного чтения.
type Catalog struct {
	tiers    []models.Tier
	tips     []models.TipTier
	features []models.Feature
	products map[string]int // идентификатор продукта -> индекс тарифа
	tipIndex map[string]int
}

// New проверяет конфигурацию и строит каталог. Тарифы сортируются по виду, затем по идентификатору.
func New(tiers []models.Tier, tips []models.TipTier, features []models.Feature) (*Catalog, error) {
	const op = "catalog.New"
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyCatalog)
	}

	sorted := make([]models.Tier, len(tiers))
	for i, t := range tiers {
		t.AlternateIDs = slices.Clone(t.AlternateIDs)
		sorted[i] = t
	}
	slices.SortStableFunc(sorted, func(a, b models.Tier) int {
		if a.Kind.Rank() != b.Kind.Rank() {
			return a.Kind.Rank() - b.Kind.Rank()
		}
		return strings.Compare(a.ID, b.ID)
	})

	c := &Catalog{
		tiers:    sorted,
		tips:     slices.Clone(tips),
		features: slices.Clone(features),
		products: make(map[string]int),
		tipIndex: make(map[string]int),
	}

	seen := make(map[string]struct{})
	claim := func(id string) error {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%s: empty product id", op)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%s: %w: %s", op, ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
		return nil
	}

	for i, t := range c.tiers {
		if !t.Kind.Valid() {
			return nil, fmt.Errorf("%s: tier %q has unknown kind %q", op, t.ID, t.Kind)
		}
		for _, id := range append([]string{t.ID}, t.AlternateIDs...) {
			if err := claim(id); err != nil {
				return nil, err
			}
			c.products[id] = i
		}
	}
	for i, tip := range c.tips {
		if err := claim(tip.ID); err != nil {
			return nil, err
		}
		c.tipIndex[tip.ID] = i
	}

	return c, nil
}

// Tiers возвращает все тарифы в порядке сортировки.
func (c *Catalog) Tiers() []models.Tier {
	return slices.Clone(c.tiers)
}

// VisibleTiers возвращает тарифы для экрана покупки.
// Тариф legacy_lifetime показывается только при includeLegacy.
func (c *Catalog) VisibleTiers(includeLegacy bool) []models.Tier {
	var res []models.Tier
	for _, t := range c.tiers {
		if !t.Visible {
			continue
		}
		if t.Kind == models.TierLegacyLifetime && !includeLegacy {
			continue
		}
		res = append(res, t)
	}
	return res
}

// Tier ищет тариф по основному идентификатору.
func (c *Catalog) Tier(id string) (models.Tier, bool) {
	i, ok := c.products[id]
	if !ok || c.tiers[i].ID != id {
		return models.Tier{}, false
	}
	return c.tiers[i], true
}

// TierForProduct ищет тариф по любому идентификатору продукта, включая альтернативные.
func (c *Catalog) TierForProduct(productID string) (models.Tier, bool) {
	i, ok := c.products[productID]
	if !ok {
		return models.Tier{}, false
	}
	return c.tiers[i], true
}

// TierIDs возвращает основные идентификаторы тарифов.
func (c *Catalog) TierIDs() []string {
	ids := make([]string, 0, len(c.tiers))
	for _, t := range c.tiers {
		ids = append(ids, t.ID)
	}
	return ids
}

// ProductIDs возвращает все идентификаторы для запроса продуктов в магазине:
// тарифы, их альтернативные идентификаторы и чаевые.
func (c *Catalog) ProductIDs() []string {
	ids := make([]string, 0, len(c.products)+len(c.tips))
	for _, t := range c.tiers {
		ids = append(ids, t.ID)
		ids = append(ids, t.AlternateIDs...)
	}
	for _, tip := range c.tips {
		ids = append(ids, tip.ID)
	}
	return ids
}

// TipTiers возвращает чаевые в порядке объявления.
func (c *Catalog) TipTiers() []models.TipTier {
	return slices.Clone(c.tips)
}

// Tip ищет чаевые по идентификатору.
func (c *Catalog) Tip(id string) (models.TipTier, bool) {
	i, ok := c.tipIndex[id]
	if !ok {
		return models.TipTier{}, false
	}
	return c.tips[i], true
}

// Features возвращает описания функций.
func (c *Catalog) Features() []models.Feature {
	return slices.Clone(c.features)
}
