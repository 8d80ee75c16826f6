package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"storefront/internal/cart"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

// ProductService инкапсулирует бизнес-логику вокруг товаров и служит каталогом для корзины
type ProductService struct {
	repo repository.ProductRepository
}

func NewProductService(repo repository.ProductRepository) *ProductService {
	return &ProductService{repo: repo}
}

var ErrInvalidInput = errors.New("invalid input")

var _ cart.Catalog = (*ProductService)(nil)

func validProduct(p domain.Product) bool {
	if strings.TrimSpace(p.Name) == "" || p.Price.IsNegative() || p.Stock < 0 {
		return false
	}
	if p.SalePrice != nil && (p.SalePrice.IsNegative() || p.SalePrice.GreaterThan(p.Price)) {
		return false
	}
	return true
}

func (s *ProductService) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.SKU == "" || !validProduct(p) {
		return nil, ErrInvalidInput
	}
	cp := p
	if err := s.repo.Create(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *ProductService) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

// Update незаданные SKU, категория, описание и теги сохраняются как есть, дата создания не меняется
func (s *ProductService) Update(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.ID == "" || !validProduct(p) {
		return nil, ErrInvalidInput
	}
	current, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if p.SKU == "" {
		p.SKU = current.SKU
	}
	if p.Category == "" {
		p.Category = current.Category
	}
	if p.Description == "" {
		p.Description = current.Description
	}
	if p.Tags == nil {
		p.Tags = current.Tags
	}
	p.CreatedAt = current.CreatedAt
	cp := p
	if err := s.repo.Update(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *ProductService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidInput
	}
	return s.repo.Delete(ctx, id)
}

func (s *ProductService) List(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	return s.repo.List(ctx, f)
}

// Categories число товаров по категориям, в алфавитном порядке
func (s *ProductService) Categories(ctx context.Context) ([]repository.CategoryCount, error) {
	list, err := s.repo.List(ctx, repository.ProductFilter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, p := range list {
		counts[p.Category]++
	}
	out := make([]repository.CategoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, repository.CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// Resolve реализует cart.Catalog. Товар доступен к продаже, только если флаг
// in_stock включён и остаток положительный.
func (s *ProductService) Resolve(ctx context.Context, ref string) (cart.Listing, error) {
	p, err := s.repo.GetByID(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return cart.Listing{}, cart.ErrProductNotFound
	}
	if err != nil {
		return cart.Listing{}, err
	}
	stock := p.Stock
	return cart.Listing{
		Name:          p.Name,
		Price:         p.Price,
		SalePrice:     p.SalePrice,
		InStock:       p.Available(),
		StockQuantity: &stock,
	}, nil
}
