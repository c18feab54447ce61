package httpsvc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Денежные поля сериализуются строкой через decimal.Decimal.MarshalJSON.

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Color     string `json:"color"`
	Amount    int    `json:"amount"`
}

type placeOrderRequest struct {
	AddressID     string            `json:"addressId"`
	PaymentMethod string            `json:"paymentMethod"`
	CartItems     []cartItemRequest `json:"cartItems"`
}

type updateStatusRequest struct {
	ProcessStatus string `json:"processStatus"`
}

type upsertConfigRequest struct {
	Value       string `json:"value"`
	DataType    string `json:"dataType"`
	Status      *bool  `json:"status"`
	Description string `json:"description"`
}

type orderLineResponse struct {
	ProductID string          `json:"productId"`
	Color     string          `json:"color"`
	Amount    int             `json:"amount"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	UserID        string              `json:"userId"`
	AddressID     string              `json:"addressId"`
	Lines         []orderLineResponse `json:"orderItems"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	ShippingFee   decimal.Decimal     `json:"shippingFee"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod string              `json:"paymentMethod"`
	PaymentStatus string              `json:"paymentStatus"`
	ProcessStatus string              `json:"processStatus"`
	Version       int64               `json:"version"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

type timelineEventResponse struct {
	Type          domain.TimelineEventType `json:"type"`
	From          domain.ProcessStatus     `json:"from_status,omitempty"`
	ProcessStatus domain.ProcessStatus     `json:"process_status,omitempty"`
	PaymentStatus domain.PaymentStatus     `json:"payment_status,omitempty"`
	Reason        string                   `json:"reason,omitempty"`
	Occurred      time.Time                `json:"occurred"`
}

type orderDetailsResponse struct {
	Order    orderResponse           `json:"order"`
	Timeline []timelineEventResponse `json:"timeline"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

type revenueResponse struct {
	Date         string          `json:"date"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	OrderCount   int             `json:"orderCount"`
}

type popularProductResponse struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	UnitsSold int             `json:"unitsSold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type funnelResponse struct {
	Uncompleted int `json:"uncompleted"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
}

type statsResponse struct {
	StartDate       time.Time                `json:"startDate"`
	EndDate         time.Time                `json:"endDate"`
	Revenue         []revenueResponse        `json:"revenue"`
	PopularProducts []popularProductResponse `json:"popularProducts"`
	Stats           funnelResponse           `json:"stats"`
}

type configResponse struct {
	Name        string    `json:"name"`
	Value       string    `json:"value"`
	DataType    string    `json:"dataType"`
	Status      bool      `json:"status"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type reviewResponse struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type colorStockResponse struct {
	Color string `json:"color"`
	Stock int    `json:"stock"`
}

type productResponse struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Price      decimal.Decimal      `json:"price"`
	Image      string               `json:"image,omitempty"`
	CategoryID string               `json:"categoryId"`
	Colors     []colorStockResponse `json:"colors"`
}

func toOrderResponse(o domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orderLineResponse{
			ProductID: l.ProductID,
			Color:     l.Color,
			Amount:    l.Amount,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
			Name:      l.Name,
			Image:     l.Image,
		})
	}
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		AddressID:     o.AddressID,
		Lines:         lines,
		Subtotal:      o.Subtotal,
		ShippingFee:   o.ShippingFee,
		Total:         o.Total,
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		ProcessStatus: string(o.ProcessStatus),
		Version:       o.Version,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func toTimelineResponse(events []domain.TimelineEvent) []timelineEventResponse {
	out := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEventResponse{
			Type:          e.Type,
			From:          e.From,
			ProcessStatus: e.To,
			PaymentStatus: e.Payment,
			Reason:        e.Reason,
			Occurred:      e.Occurred,
		})
	}
	return out
}

func toStatsResponse(s domain.SalesStats) statsResponse {
	revenue := make([]revenueResponse, 0, len(s.Revenue))
	for _, b := range s.Revenue {
		revenue = append(revenue, revenueResponse{
			Date:         b.Date.UTC().Format(time.DateOnly),
			TotalRevenue: b.TotalRevenue,
			OrderCount:   b.OrderCount,
		})
	}
	popular := make([]popularProductResponse, 0, len(s.PopularProducts))
	for _, p := range s.PopularProducts {
		popular = append(popular, popularProductResponse{
			ProductID: p.ProductID,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
			UnitsSold: p.UnitsSold,
			Revenue:   p.Revenue,
		})
	}
	return statsResponse{
		StartDate:       s.Range.From,
		EndDate:         s.Range.To,
		Revenue:         revenue,
		PopularProducts: popular,
		Stats: funnelResponse{
			Uncompleted: s.Funnel.Uncompleted,
			Completed:   s.Funnel.Completed,
			Failed:      s.Funnel.Failed,
		},
	}
}

func toConfigResponse(c domain.ConfigEntry) configResponse {
	return configResponse{
		Name:        c.Name,
		Value:       c.Value,
		DataType:    string(c.DataType),
		Status:      c.Status,
		Description: c.Description,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toReviewResponses(reviews []domain.Review) []reviewResponse {
	out := make([]reviewResponse, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, reviewResponse{
			ID:        r.ID,
			ProductID: r.ProductID,
			UserID:    r.UserID,
			Rating:    r.Rating,
			Comment:   r.Comment,
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}

func toProductResponses(products []domain.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		colors := make([]colorStockResponse, 0, len(p.Colors))
		for _, c := range p.Colors {
			colors = append(colors, colorStockResponse{Color: c.Color, Stock: c.Stock})
		}
		out = append(out, productResponse{
			ID:         p.ID,
			Name:       p.Name,
			Price:      p.Price,
			Image:      p.Image,
			CategoryID: p.CategoryID,
			Colors:     colors,
		})
	}
	return out
}
