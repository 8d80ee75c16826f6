package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// LineItem позиция корзины. Идентичность позиции задаёт пара (ProductRef, Variant),
// пустой Variant означает «без варианта».
type LineItem struct {
	ProductRef string `json:"product_ref"`
	Quantity   int    `json:"quantity"`
	Variant    string `json:"variant,omitempty"`
}

type itemKey struct {
	ref     string
	variant string
}

func (li LineItem) key() itemKey { return itemKey{ref: li.ProductRef, variant: li.Variant} }

// Listing то, что каталог сообщает о товаре в момент запроса
type Listing struct {
	Name          string
	Price         decimal.Decimal
	SalePrice     *decimal.Decimal
	InStock       bool
	StockQuantity *int64
}

// EffectivePrice цена со скидкой, если она задана, иначе обычная цена
func (l Listing) EffectivePrice() decimal.Decimal {
	if l.SalePrice != nil {
		return *l.SalePrice
	}
	return l.Price
}

// Catalog источник цен и остатков. Для неизвестного товара возвращает ErrProductNotFound.
type Catalog interface {
	Resolve(ctx context.Context, ref string) (Listing, error)
}

// Store key-value носитель, в который сериализуется состояние корзины
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, bool, error)
}

// Recorder получает события движка (метрики)
type Recorder interface {
	Mutation(op, outcome string)
	PersistFailed()
	Recomputed(s Snapshot)
}

type nopRecorder struct{}

func (nopRecorder) Mutation(string, string) {}
func (nopRecorder) PersistFailed()          {}
func (nopRecorder) Recomputed(Snapshot)     {}

// AddResult исход AddItem
type AddResult int

const (
	AddAdded AddResult = iota + 1
	AddOutOfStock
	AddNotFound
)

func (r AddResult) String() string {
	switch r {
	case AddAdded:
		return "added"
	case AddOutOfStock:
		return "out_of_stock"
	case AddNotFound:
		return "not_found"
	default:
		return "invalid"
	}
}

// Totals производные суммы, никогда не сохраняются
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount_amount"`
	Total    decimal.Decimal `json:"total"`
}

// Line позиция корзины с ценами, разрешёнными через каталог.
// Orphaned выставляется, когда каталог не знает товар: такая позиция даёт ноль в подытог.
type Line struct {
	LineItem
	Name      string          `json:"name,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	Orphaned  bool            `json:"orphaned"`
}

// Snapshot согласованный срез корзины для слоя представления
type Snapshot struct {
	Lines           []Line `json:"items"`
	DiscountCode    string `json:"discount_code,omitempty"`
	DiscountPercent int64  `json:"discount_percent,omitempty"`
	Totals          Totals `json:"totals"`
	DistinctItems   int    `json:"distinct_items"`
	TotalQuantity   int    `json:"total_quantity"`
}

// HasOrphans есть ли позиции, которые каталог не смог разрешить
func (s Snapshot) HasOrphans() bool {
	for _, l := range s.Lines {
		if l.Orphaned {
			return true
		}
	}
	return false
}
