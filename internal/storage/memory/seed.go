package memory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// SeedDemoData наполняет хранилище демонстрационными данными для локального запуска.
func SeedDemoData(ctx context.Context, s *Store) error {
	users := []domain.User{
		{ID: "user-1", Name: "Alice Carter", Email: "alice@example.com"},
		{ID: "user-2", Name: "Bob Stone", Email: "bob@example.com"},
		{ID: "admin-1", Name: "Store Admin", Email: "admin@example.com"},
	}
	addresses := []domain.Address{
		{ID: "address-1", UserID: "user-1", Line: "12 Baker Street, London"},
		{ID: "address-2", UserID: "user-2", Line: "7 Main Road, Leeds"},
	}
	products := []domain.Product{
		{
			ID:         "product-1",
			Name:       "Classic T-shirt",
			Price:      decimal.RequireFromString("20.00"),
			Image:      "/images/tshirt.png",
			CategoryID: "category-apparel",
			Colors:     []domain.ColorStock{{Color: "red", Stock: 10}, {Color: "blue", Stock: 5}},
		},
		{
			ID:         "product-2",
			Name:       "Baseball Cap",
			Price:      decimal.RequireFromString("10.00"),
			Image:      "/images/cap.png",
			CategoryID: "category-apparel",
			Colors:     []domain.ColorStock{{Color: "black", Stock: 25}},
		},
		{
			ID:         "product-3",
			Name:       "Limited Sneakers",
			Price:      decimal.RequireFromString("60.00"),
			Image:      "/images/sneakers.png",
			CategoryID: "category-shoes",
			Colors:     []domain.ColorStock{{Color: "white", Stock: 1}},
		},
	}
	configs := []domain.ConfigEntry{
		{
			Name:        domain.ConfigShippingFee,
			Value:       "5",
			DataType:    domain.ConfigTypeNumber,
			Status:      true,
			Description: "Flat shipping fee per order",
		},
		{
			Name:        domain.ConfigMinFreeShippingAmount,
			Value:       "50",
			DataType:    domain.ConfigTypeNumber,
			Status:      true,
			Description: "Subtotal from which shipping is free",
		},
	}

	directory := s.Directory()
	for _, user := range users {
		if err := directory.SaveUser(ctx, user); err != nil {
			return fmt.Errorf("seed user %s: %w", user.ID, err)
		}
	}
	for _, address := range addresses {
		if err := directory.SaveAddress(ctx, address); err != nil {
			return fmt.Errorf("seed address %s: %w", address.ID, err)
		}
	}

	catalog := s.Catalog()
	for _, product := range products {
		if err := catalog.SaveProduct(ctx, product); err != nil {
			return fmt.Errorf("seed product %s: %w", product.ID, err)
		}
	}

	repo := s.Configs()
	for _, entry := range configs {
		if _, err := repo.Upsert(ctx, entry); err != nil {
			return fmt.Errorf("seed config %s: %w", entry.Name, err)
		}
	}
	return nil
}
