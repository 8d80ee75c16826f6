package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/cart"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

// OrderService оформление заказа из корзины и отмена заказа
type OrderService struct {
	products repository.ProductRepository
	orders   repository.OrderRepository
	tx       repository.TxManager
	cart     *cart.Engine
	log      *zap.Logger
	newID    func() string
}

func NewOrderService(products repository.ProductRepository, orders repository.OrderRepository, tx repository.TxManager, engine *cart.Engine, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{
		products: products,
		orders:   orders,
		tx:       tx,
		cart:     engine,
		log:      log,
		newID:    func() string { return "ORD-" + strings.ToUpper(uuid.NewString()) },
	}
}

var (
	ErrNotEnoughStock = errors.New("not enough stock")
	ErrInvalidState   = errors.New("invalid state")
	ErrEmptyCart      = errors.New("cart is empty")
	ErrOrphanedItems  = errors.New("cart contains products that are no longer available")
)

// Способы доставки
const (
	ShippingStandard = "standard"
	ShippingExpress  = "express"
)

var (
	taxRate               = decimal.RequireFromString("0.10")
	freeShippingThreshold = decimal.NewFromInt(100)
	standardShipping      = decimal.NewFromInt(10)
	expressShipping       = decimal.RequireFromString("15.99")
)

// Summary итог к оплате поверх сумм корзины
type Summary struct {
	Lines          []cart.Line     `json:"items"`
	DiscountCode   string          `json:"discount_code,omitempty"`
	ShippingMethod string          `json:"shipping_method"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Tax            decimal.Decimal `json:"tax"`
	Shipping       decimal.Decimal `json:"shipping"`
	Total          decimal.Decimal `json:"total"`
}

// Quote налог 10% от суммы после скидки. Стандартная доставка бесплатна
// при сумме больше $100, иначе $10. Экспресс стоит $15.99. Пустая корзина доставки не требует.
func Quote(t cart.Totals, method string) (tax, shipping, total decimal.Decimal, err error) {
	switch method {
	case "", ShippingStandard:
		shipping = standardShipping
		if t.Total.GreaterThan(freeShippingThreshold) {
			shipping = decimal.Zero
		}
	case ShippingExpress:
		shipping = expressShipping
	default:
		return decimal.Zero, decimal.Zero, decimal.Zero, ErrInvalidInput
	}
	if t.Subtotal.IsZero() {
		shipping = decimal.Zero
	}
	tax = t.Total.Mul(taxRate).Round(2)
	total = t.Total.Add(tax).Add(shipping)
	return tax, shipping, total, nil
}

// Summary текущий итог корзины с налогом и доставкой
func (s *OrderService) Summary(ctx context.Context, method string) (*Summary, error) {
	snap := s.cart.Snapshot(ctx)
	return buildSummary(snap, method)
}

func buildSummary(snap cart.Snapshot, method string) (*Summary, error) {
	tax, shipping, total, err := Quote(snap.Totals, method)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = ShippingStandard
	}
	return &Summary{
		Lines:          snap.Lines,
		DiscountCode:   snap.DiscountCode,
		ShippingMethod: method,
		Subtotal:       snap.Totals.Subtotal,
		Discount:       snap.Totals.Discount,
		Tax:            tax,
		Shipping:       shipping,
		Total:          total,
	}, nil
}

// PlaceOrder оформляет заказ из текущей корзины: атомарно списывает остатки,
// сохраняет заказ и очищает корзину.
func (s *OrderService) PlaceOrder(ctx context.Context, customer, email, method string) (*domain.Order, error) {
	// формат email проверяет HTTP-слой (binding:"email"), здесь только минимум для прочих вызовов
	customer, email = strings.TrimSpace(customer), strings.TrimSpace(email)
	if customer == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}

	snap := s.cart.Snapshot(ctx)
	if len(snap.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if snap.HasOrphans() {
		return nil, ErrOrphanedItems
	}
	summary, err := buildSummary(snap, method)
	if err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(snap.Lines))
	wanted := make(map[string]int64)
	for _, l := range snap.Lines {
		items = append(items, domain.OrderItem{
			ProductID: l.ProductRef,
			Variant:   l.Variant,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  int64(l.Quantity),
			LineTotal: l.LineTotal,
		})
		// варианты одного товара делят его остаток; сумма, не влезающая в int64, заведомо больше остатка
		if int64(l.Quantity) > math.MaxInt64-wanted[l.ProductRef] {
			return nil, ErrNotEnoughStock
		}
		wanted[l.ProductRef] += int64(l.Quantity)
	}

	var created *domain.Order
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		// сначала проверяем все товары, потом пишем, чтобы не оставить частичное состояние
		productCopies := make(map[string]*domain.Product, len(wanted))
		for id, qty := range wanted {
			p, err := s.products.GetByID(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOrphanedItems
			}
			if err != nil {
				return err
			}
			if !p.InStock || p.Stock < qty {
				return ErrNotEnoughStock
			}
			p.Stock -= qty
			productCopies[id] = p
		}
		for _, p := range productCopies {
			if err := s.products.Update(ctx, p); err != nil {
				return err
			}
		}

		o := domain.Order{
			ID:           s.newID(),
			CustomerName: customer,
			Email:        email,
			Items:        items,
			DiscountCode: snap.DiscountCode,
			Subtotal:     summary.Subtotal,
			Discount:     summary.Discount,
			Tax:          summary.Tax,
			Shipping:     summary.Shipping,
			Total:        summary.Total,
			Status:       domain.OrderStatusConfirmed,
		}
		if err := s.orders.Create(ctx, &o); err != nil {
			return err
		}
		created = &o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cart.Clear(ctx)
	s.log.Info("order placed",
		zap.String("order_id", created.ID),
		zap.Int("items", len(created.Items)),
		zap.String("total", created.Total.StringFixed(2)),
	)
	return created, nil
}

// GetOrder возвращает заказ по id
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	return s.orders.GetByID(ctx, id)
}

// CancelOrder если Confirmed, возвращаем товары на склад и ставим Cancelled
func (s *OrderService) CancelOrder(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	var updated *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != domain.OrderStatusConfirmed {
			return ErrInvalidState
		}
		for _, it := range o.Items {
			p, err := s.products.GetByID(ctx, it.ProductID)
			if errors.Is(err, repository.ErrNotFound) {
				// товар удалён из каталога, возвращать некуда
				continue
			}
			if err != nil {
				return err
			}
			p.Stock += it.Quantity
			if err := s.products.Update(ctx, p); err != nil {
				return err
			}
		}
		o.Status = domain.OrderStatusCancelled
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order cancelled", zap.String("order_id", updated.ID))
	return updated, nil
}
