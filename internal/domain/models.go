package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product товар витрины
type Product struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	SKU         string           `json:"sku"`
	Description string           `json:"description,omitempty"`
	Category    string           `json:"category"`
	Tags        []string         `json:"tags,omitempty"`
	Price       decimal.Decimal  `json:"price"`
	SalePrice   *decimal.Decimal `json:"sale_price,omitempty"`
	InStock     bool             `json:"in_stock"`
	Stock       int64            `json:"stock"`
	Featured    bool             `json:"featured"`
	CreatedAt   time.Time        `json:"created_at"`
}

// EffectivePrice цена со скидкой, если она есть
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}

// Available товар можно продать: флаг витрины включён и есть остаток
func (p Product) Available() bool {
	return p.InStock && p.Stock > 0
}

// OrderStatus тип статуса заказа
type OrderStatus string

const (
	OrderStatusConfirmed OrderStatus = "Confirmed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// OrderItem позиция заказа, цены зафиксированы на момент оформления
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Variant   string          `json:"variant,omitempty"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Order сущность заказа
type Order struct {
	ID           string          `json:"id"`
	CustomerName string          `json:"customer_name"`
	Email        string          `json:"email"`
	Items        []OrderItem     `json:"items"`
	DiscountCode string          `json:"discount_code,omitempty"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Tax          decimal.Decimal `json:"tax"`
	Shipping     decimal.Decimal `json:"shipping"`
	Total        decimal.Decimal `json:"total"`
	Status       OrderStatus     `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
