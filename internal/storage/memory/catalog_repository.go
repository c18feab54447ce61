package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type catalogRepository struct {
	s *Store
}

// SaveProduct создаёт или заменяет товар вместе с остатками по цветам.
func (r *catalogRepository) SaveProduct(ctx context.Context, product domain.Product) error {
	if product.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	seen := make(map[string]struct{}, len(product.Colors))
	for _, c := range product.Colors {
		if c.Stock < 0 {
			return domain.NewValidationError("colors.stock", "must be non-negative")
		}
		if _, dup := seen[c.Color]; dup {
			return domain.NewValidationError("colors", fmt.Sprintf("duplicate color %q", c.Color))
		}
		seen[c.Color] = struct{}{}
	}

	return r.s.withWriter(ctx, func() error {
		if product.CreatedAt.IsZero() {
			product.CreatedAt = r.s.now()
		}
		for key := range r.s.stocks {
			if key.productID == product.ID {
				delete(r.s.stocks, key)
			}
		}
		for _, c := range product.Colors {
			r.s.stocks[stockKey{productID: product.ID, color: c.Color}] = c.Stock
		}
		product.Colors = nil
		r.s.products[product.ID] = product
		return nil
	})
}

// GetProduct возвращает товар с актуальными остатками.
func (r *catalogRepository) GetProduct(_ context.Context, id string) (domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	product, ok := r.s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return r.s.withColors(product), nil
}

// AddReview сохраняет отзыв о существующем товаре.
func (r *catalogRepository) AddReview(_ context.Context, review domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[review.ProductID]; !ok {
		return domain.ErrProductNotFound
	}
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = r.s.now()
	}
	r.s.reviews[review.ID] = review
	return nil
}

// DeleteProductAndDependents удаляет товар, его остатки и отзывы. Заказы сохраняют снимки.
func (r *catalogRepository) DeleteProductAndDependents(ctx context.Context, productID string) error {
	return r.s.withWriter(ctx, func() error {
		if _, ok := r.s.products[productID]; !ok {
			return domain.ErrProductNotFound
		}
		for key := range r.s.stocks {
			if key.productID == productID {
				delete(r.s.stocks, key)
			}
		}
		for id, review := range r.s.reviews {
			if review.ProductID == productID {
				delete(r.s.reviews, id)
			}
		}
		delete(r.s.products, productID)
		return nil
	})
}

// ListReviewsByProduct возвращает отзывы товара, старые первыми.
func (r *catalogRepository) ListReviewsByProduct(_ context.Context, productID string) ([]domain.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if _, ok := r.s.products[productID]; !ok {
		return nil, domain.ErrProductNotFound
	}
	result := make([]domain.Review, 0)
	for _, review := range r.s.reviews {
		if review.ProductID == productID {
			result = append(result, review)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// ListProductsByCategory возвращает товары категории по имени.
func (r *catalogRepository) ListProductsByCategory(_ context.Context, categoryID string) ([]domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]domain.Product, 0)
	for _, product := range r.s.products {
		if product.CategoryID == categoryID {
			result = append(result, r.s.withColors(product))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// withColors подставляет остатки в копию товара. Вызывается под mu.
func (s *Store) withColors(product domain.Product) domain.Product {
	colors := make([]domain.ColorStock, 0)
	for key, stock := range s.stocks {
		if key.productID == product.ID {
			colors = append(colors, domain.ColorStock{Color: key.color, Stock: stock})
		}
	}
	sort.Slice(colors, func(i, j int) bool { return colors[i].Color < colors[j].Color })
	product.Colors = colors
	return product
}

type directoryRepository struct {
	s *Store
}

// SaveUser создаёт или заменяет пользователя.
func (r *directoryRepository) SaveUser(_ context.Context, user domain.User) error {
	if user.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.users[user.ID] = user
	return nil
}

// SaveAddress сохраняет адрес существующего пользователя.
func (r *directoryRepository) SaveAddress(_ context.Context, address domain.Address) error {
	if address.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[address.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	r.s.addresses[address.ID] = address
	return nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *directoryRepository) GetUser(_ context.Context, id string) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// AddressExists проверяет, что адрес существует и принадлежит пользователю.
func (r *directoryRepository) AddressExists(_ context.Context, userID, addressID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	address, ok := r.s.addresses[addressID]
	return ok && address.UserID == userID, nil
}

var (
	_ domain.CatalogRepository   = (*catalogRepository)(nil)
	_ domain.DirectoryRepository = (*directoryRepository)(nil)
)
