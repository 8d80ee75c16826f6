package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func salePrice(s string) *decimal.Decimal {
	d := price(s)
	return &d
}

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

// DemoProducts демо-каталог приманок
func DemoProducts() []domain.Product {
	return []domain.Product{
		{
			Name: "TroutMaster Spinner", SKU: "SPN-TM-001", Category: "spinners",
			Description: "Inline spinner with a silver blade for stream trout.",
			Tags:        []string{"trout", "freshwater", "spinner"},
			Price:       price("14.99"), SalePrice: salePrice("12.99"), InStock: true, Stock: 25,
			Featured: true, CreatedAt: day("2024-01-01"),
		},
		{
			Name: "BassPro Worm Set", SKU: "SFT-BP-010", Category: "softBait",
			Description: "Soft plastic worms in six natural colors.",
			Tags:        []string{"bass", "freshwater", "soft plastic"},
			Price:       price("9.99"), InStock: true, Stock: 40,
			CreatedAt: day("2024-01-15"),
		},
		{
			Name: "MarinePro Jig Kit", SKU: "JIG-MP-005", Category: "jigs",
			Description: "Saltwater jigs for deep drops and fast currents.",
			Tags:        []string{"saltwater", "jig", "offshore"},
			Price:       price("24.99"), SalePrice: salePrice("19.99"), InStock: true, Stock: 15,
			Featured: true, CreatedAt: day("2024-02-01"),
		},
	}
}

// Seed заполняет пустой репозиторий демо-каталогом. Непустой не трогает.
func Seed(ctx context.Context, repo ProductRepository) (int, error) {
	existing, err := repo.List(ctx, ProductFilter{})
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	products := DemoProducts()
	for i := range products {
		if err := repo.Create(ctx, &products[i]); err != nil {
			return i, fmt.Errorf("seed %q: %w", products[i].Name, err)
		}
	}
	return len(products), nil
}
