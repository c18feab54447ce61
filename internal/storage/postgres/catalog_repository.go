package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type catalogRepository struct {
	s *Store
}

// SaveProduct создаёт или заменяет товар и его остатки в одной транзакции.
func (r *catalogRepository) SaveProduct(ctx context.Context, product domain.Product) error {
	if product.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.s.inTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO products (id, name, price, image, category_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    price = EXCLUDED.price,
			    image = EXCLUDED.image,
			    category_id = EXCLUDED.category_id
		`, product.ID, product.Name, product.Price, product.Image, product.CategoryID, product.CreatedAt); err != nil {
			return translateError("upsert product", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM product_color_stocks WHERE product_id = $1`, product.ID); err != nil {
			return translateError("reset product stocks", err)
		}
		for _, c := range product.Colors {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO product_color_stocks (product_id, color, stock)
				VALUES ($1, $2, $3)
			`, product.ID, c.Color, c.Stock); err != nil {
				if isUniqueViolation(err) {
					return domain.NewValidationError("colors", fmt.Sprintf("duplicate color %q", c.Color))
				}
				return translateError("insert product stock", err)
			}
		}
		return nil
	})
}

func (r *catalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.s.db.QueryRowContext(ctx, `
		SELECT id, name, price, image, category_id, created_at
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, translateError("select product", err)
	}

	if product.Colors, err = r.loadColors(ctx, product.ID); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (r *catalogRepository) AddReview(ctx context.Context, review domain.Review) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.s.db.ExecContext(ctx, `
		INSERT INTO product_reviews (id, product_id, user_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, review.ID, review.ProductID, review.UserID, review.Rating, review.Comment, review.CreatedAt); err != nil {
		err = translateError("insert review", err)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrProductNotFound
		}
		return err
	}
	return nil
}

// DeleteProductAndDependents явно удаляет остатки, отзывы и сам товар в одной транзакции.
func (r *catalogRepository) DeleteProductAndDependents(ctx context.Context, productID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.s.inTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM product_color_stocks WHERE product_id = $1`, productID); err != nil {
			return translateError("delete product stocks", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM product_reviews WHERE product_id = $1`, productID); err != nil {
			return translateError("delete product reviews", err)
		}
		res, err := q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		if err != nil {
			return translateError("delete product", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return translateError("delete product rows affected", err)
		}
		if affected == 0 {
			return domain.ErrProductNotFound
		}
		return nil
	})
}

func (r *catalogRepository) ListReviewsByProduct(ctx context.Context, productID string) ([]domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return nil, translateError("check product exists", err)
	}
	if !exists {
		return nil, domain.ErrProductNotFound
	}

	rows, err := r.s.db.QueryContext(ctx, `
		SELECT id, product_id, user_id, rating, comment, created_at
		FROM product_reviews
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC
	`, productID)
	if err != nil {
		return nil, translateError("list reviews", err)
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		var review domain.Review
		if err := rows.Scan(&review.ID, &review.ProductID, &review.UserID, &review.Rating, &review.Comment, &review.CreatedAt); err != nil {
			return nil, translateError("scan review", err)
		}
		review.CreatedAt = review.CreatedAt.UTC()
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate reviews", err)
	}
	return reviews, nil
}

func (r *catalogRepository) ListProductsByCategory(ctx context.Context, categoryID string) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.s.db.QueryContext(ctx, `
		SELECT id, name, price, image, category_id, created_at
		FROM products
		WHERE category_id = $1
		ORDER BY name ASC, id ASC
	`, categoryID)
	if err != nil {
		return nil, translateError("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, translateError("scan product", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate products", err)
	}

	for i := range products {
		if products[i].Colors, err = r.loadColors(ctx, products[i].ID); err != nil {
			return nil, err
		}
	}
	return products, nil
}

func (r *catalogRepository) loadColors(ctx context.Context, productID string) ([]domain.ColorStock, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT color, stock
		FROM product_color_stocks
		WHERE product_id = $1
		ORDER BY color
	`, productID)
	if err != nil {
		return nil, translateError("load product stocks", err)
	}
	defer rows.Close()

	colors := make([]domain.ColorStock, 0)
	for rows.Next() {
		var c domain.ColorStock
		if err := rows.Scan(&c.Color, &c.Stock); err != nil {
			return nil, translateError("scan product stock", err)
		}
		colors = append(colors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate product stocks", err)
	}
	return colors, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var product domain.Product
	if err := row.Scan(&product.ID, &product.Name, &product.Price, &product.Image, &product.CategoryID, &product.CreatedAt); err != nil {
		return domain.Product{}, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return product, nil
}

type directoryRepository struct {
	s *Store
}

func (r *directoryRepository) SaveUser(ctx context.Context, user domain.User) error {
	if user.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email
	`, user.ID, user.Name, user.Email); err != nil {
		return translateError("upsert user", err)
	}
	return nil
}

func (r *directoryRepository) SaveAddress(ctx context.Context, address domain.Address) error {
	if address.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.s.db.ExecContext(ctx, `
		INSERT INTO addresses (id, user_id, line)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id, line = EXCLUDED.line
	`, address.ID, address.UserID, address.Line); err != nil {
		err = translateError("upsert address", err)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		return err
	}
	return nil
}

func (r *directoryRepository) GetUser(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var user domain.User
	err := r.s.db.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Name, &user.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, translateError("select user", err)
	}
	return user, nil
}

func (r *directoryRepository) AddressExists(ctx context.Context, userID, addressID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM addresses WHERE id = $1 AND user_id = $2)
	`, addressID, userID).Scan(&exists); err != nil {
		return false, translateError("check address", err)
	}
	return exists, nil
}

var (
	_ domain.CatalogRepository   = (*catalogRepository)(nil)
	_ domain.DirectoryRepository = (*directoryRepository)(nil)
)
