package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func integrationOrder(id, userID, total string, createdAt time.Time) domain.Order {
	amount := decimal.RequireFromString(total)
	return domain.Order{
		ID:        id,
		UserID:    userID,
		AddressID: "address-1",
		Lines: []domain.OrderLine{{
			ProductID: "product-1",
			Color:     "red",
			Amount:    1,
			UnitPrice: amount,
			LineTotal: amount,
			Name:      "Classic T-shirt",
		}},
		Subtotal:      amount,
		ShippingFee:   decimal.Zero,
		Total:         amount,
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
		PaymentStatus: domain.PaymentStatusUnpaid,
		ProcessStatus: domain.ProcessStatusPending,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func createOrdersForIntegrationTest(t *testing.T, store *Store, orders ...domain.Order) {
	t.Helper()

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	for _, o := range orders {
		require.NoError(t, store.Orders().Create(ctx, tx, o))
	}
	require.NoError(t, tx.Commit())
}

func TestOrderRepository_PostgresCreateGetSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store)
	ctx := context.Background()
	repo := store.Orders()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	createOrdersForIntegrationTest(t, store, integrationOrder("order-1", "user-1", "20.00", base))

	got, err := repo.Get(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	require.True(t, decimal.RequireFromString("20").Equal(got.Total))
	require.Equal(t, base, got.CreatedAt)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	require.NoError(t, got.ApplyProcessStatus(domain.ProcessStatusDelivered, base.Add(time.Hour)))
	require.NoError(t, repo.Save(ctx, got))

	saved, err := repo.Get(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, saved.PaymentStatus)
	require.Equal(t, int64(1), saved.Version)
	require.Len(t, saved.Lines, 1)

	// got держит устаревшую версию.
	require.ErrorIs(t, repo.Save(ctx, got), domain.ErrOrderVersionConflict)

	ghost := got
	ghost.ID = "ghost"
	require.ErrorIs(t, repo.Save(ctx, ghost), domain.ErrOrderNotFound)
}

func TestOrderRepository_PostgresCreateRolledBack(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Orders().Create(ctx, tx, integrationOrder("order-rb", "user-1", "10", time.Now().UTC())))
	require.NoError(t, tx.Rollback())

	_, err = store.Orders().Get(ctx, "order-rb")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_PostgresListFilters(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store)
	ctx := context.Background()
	repo := store.Orders()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := integrationOrder("order-3", "user-2", "80.00", base.Add(2*time.Hour))
	completed.ProcessStatus = domain.ProcessStatusCompleted
	completed.PaymentStatus = domain.PaymentStatusPaid
	createOrdersForIntegrationTest(t, store,
		integrationOrder("order-1", "user-1", "20.00", base),
		integrationOrder("order-2", "user-1", "45.00", base.Add(time.Hour)),
		completed,
	)

	page, err := repo.List(ctx, domain.OrderFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Equal(t, "order-3", page.Orders[0].ID)

	page, err = repo.List(ctx, domain.OrderFilter{Search: "ALICE"})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)

	page, err = repo.List(ctx, domain.OrderFilter{Search: "bob@"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	page, err = repo.List(ctx, domain.OrderFilter{ProcessStatus: domain.ProcessStatusCompleted})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	page, err = repo.List(ctx, domain.OrderFilter{
		TotalMax: decimal.NewNullDecimal(decimal.RequireFromString("45")),
		Sort:     domain.OrderSortTotalAsc,
	})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	require.Equal(t, "order-1", page.Orders[0].ID)

	page, err = repo.List(ctx, domain.OrderFilter{Page: 2, Limit: 2, Sort: domain.OrderSortCreatedAsc})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Orders, 1)
	require.Equal(t, "order-3", page.Orders[0].ID)

	page, err = repo.List(ctx, domain.OrderFilter{Search: "100%_"})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	require.Empty(t, page.Orders)

	byUser, err := repo.ListByUser(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	require.Equal(t, "order-2", byUser[0].ID)
}

func TestStatsRepository_PostgresAggregates(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store)
	ctx := context.Background()

	day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	done1 := integrationOrder("order-1", "user-1", "20.00", day)
	done1.ProcessStatus = domain.ProcessStatusCompleted
	done2 := integrationOrder("order-2", "user-1", "40.00", day.Add(24*time.Hour))
	done2.ProcessStatus = domain.ProcessStatusCompleted
	done2.Lines[0].Amount = 2
	done2.Lines[0].UnitPrice = decimal.RequireFromString("20.00")
	canceled := integrationOrder("order-3", "user-2", "60.00", day.Add(time.Hour))
	canceled.ProcessStatus = domain.ProcessStatusCanceled
	createOrdersForIntegrationTest(t, store, done1, done2, canceled)

	rng := domain.StatsRange{From: day.Add(-time.Hour), To: day.Add(48 * time.Hour)}

	revenue, err := store.Stats().Revenue(ctx, rng)
	require.NoError(t, err)
	require.Len(t, revenue, 2)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), revenue[0].Date)
	require.True(t, decimal.RequireFromString("20").Equal(revenue[0].TotalRevenue))

	top, err := store.Stats().TopProducts(ctx, rng, 7)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, 3, top[0].UnitsSold)
	require.True(t, decimal.RequireFromString("60").Equal(top[0].Revenue))

	counts, err := store.Stats().CountByProcessStatus(ctx, rng)
	require.NoError(t, err)
	require.Equal(t, 2, counts[domain.ProcessStatusCompleted])
	require.Equal(t, 1, counts[domain.ProcessStatusCanceled])
}
