package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Tx — дескриптор транзакции. Передаётся явным аргументом во все операции
// одной единицы работы и никогда не хранится в разделяемом состоянии.
type Tx interface {
	Commit() error
	Rollback() error
}

// Transactor открывает новые транзакции хранилища.
type Transactor interface {
	Begin(ctx context.Context) (Tx, error)
}

// InventoryLedger ведёт остатки по товарам и цветам.
type InventoryLedger interface {
	// Reserve списывает amount в рамках tx. Изменение видно только после commit.
	Reserve(ctx context.Context, tx Tx, productID, color string, amount int) (ProductSnapshot, error)
	// Stock возвращает зафиксированный остаток.
	Stock(ctx context.Context, productID, color string) (int, error)
}

// ConfigRepository хранит бизнес-параметры. tx может быть nil.
type ConfigRepository interface {
	Get(ctx context.Context, tx Tx, name string) (ConfigEntry, error)
	List(ctx context.Context) ([]ConfigEntry, error)
	Upsert(ctx context.Context, entry ConfigEntry) (ConfigEntry, error)
}

// CatalogRepository — минимальный каталог: товары, отзывы и производные выборки.
type CatalogRepository interface {
	SaveProduct(ctx context.Context, product Product) error
	GetProduct(ctx context.Context, id string) (Product, error)
	AddReview(ctx context.Context, review Review) error
	// DeleteProductAndDependents удаляет товар вместе с остатками и отзывами в одной транзакции.
	DeleteProductAndDependents(ctx context.Context, productID string) error
	ListReviewsByProduct(ctx context.Context, productID string) ([]Review, error)
	ListProductsByCategory(ctx context.Context, categoryID string) ([]Product, error)
}

// DirectoryRepository хранит пользователей и их адреса.
type DirectoryRepository interface {
	SaveUser(ctx context.Context, user User) error
	SaveAddress(ctx context.Context, address Address) error
	GetUser(ctx context.Context, id string) (User, error)
	AddressExists(ctx context.Context, userID, addressID string) (bool, error)
}

// StatsRepository выполняет агрегирующие запросы по заказам.
type StatsRepository interface {
	Revenue(ctx context.Context, r StatsRange) ([]RevenueBucket, error)
	TopProducts(ctx context.Context, r StatsRange, limit int) ([]PopularProduct, error)
	CountByProcessStatus(ctx context.Context, r StatsRange) (map[ProcessStatus]int, error)
}

// OrderConfirmation — данные письма о подтверждении заказа.
type OrderConfirmation struct {
	Recipient string
	UserID    string
	OrderID   string
	Total     decimal.Decimal
}

// Notifier отправляет уведомление о заказе. Вызывается вне транзакции.
type Notifier interface {
	OrderConfirmed(ctx context.Context, msg OrderConfirmation) error
}

// PaymentGateway синхронно подтверждает онлайн-оплату. Идемпотентен по orderID.
type PaymentGateway interface {
	Confirm(ctx context.Context, orderID string, amount decimal.Decimal) (bool, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
// Enqueue с tx == nil пишет вне транзакции.
type OutboxRepository interface {
	Enqueue(ctx context.Context, tx Tx, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит ключи Idempotency-Key и ответы для повтора.
type IdempotencyRepository interface {
	// Claim захватывает ключ. Если живой ключ уже есть, возвращает его запись вместе с
	// ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
	Claim(ctx context.Context, claim IdempotencyClaim) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	// Settle сохраняет ответ; состояние выводится из кода ответа.
	Settle(ctx context.Context, key string, resp ReplayableResponse) error
	// Release освобождает ключ в состоянии in_flight, чтобы запрос можно было повторить.
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
