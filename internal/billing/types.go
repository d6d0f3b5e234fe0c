package billing

import "time"

// Session is a time-boxed collaborative billing context. The code is the
// owner's contact identifier and doubles as the join key.
type Session struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	RestaurantID string    `json:"restaurantId"`
	TableID      string    `json:"tableId"`
	DeviceID     string    `json:"deviceId"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type Order struct {
	ID           string      `json:"id"`
	RestaurantID string      `json:"restaurantId"`
	TableID      *string     `json:"tableId"`
	DeviceID     string      `json:"deviceId"`
	SessionCode  *string     `json:"sessionCode"`
	Status       string      `json:"status"`
	TotalAmount  float64     `json:"totalAmount"`
	UserName     *string     `json:"userName"`
	SettledAt    *time.Time  `json:"settledAt"`
	CreatedAt    time.Time   `json:"createdAt"`
	Items        []OrderItem `json:"items"`
}

type OrderItem struct {
	ID          string  `json:"id"`
	OrderID     string  `json:"orderId"`
	ItemID      *string `json:"itemId"`
	ItemName    string  `json:"itemName"`
	Quantity    int32   `json:"quantity"`
	Price       float64 `json:"price"`
	VariantName *string `json:"variantName"`
}

// ArchivedBill is the immutable rollup of every order under one table-bill
// identifier, produced exactly once per checkout.
type ArchivedBill struct {
	ID               string         `json:"id"`
	OriginalOrderIDs []string       `json:"originalOrderIds"`
	RestaurantID     string         `json:"restaurantId"`
	TableID          string         `json:"tableId"`
	SessionCode      *string        `json:"sessionCode"`
	UserName         *string        `json:"userName"`
	TotalAmount      float64        `json:"totalAmount"`
	Items            []ArchivedItem `json:"items"`
	PaymentMode      string         `json:"paymentMode"`
	ReceiptURL       *string        `json:"receiptUrl"`
	CreatedAt        time.Time      `json:"createdAt"`
	PrintedAt        time.Time      `json:"printedAt"`
}

// ArchivedItem keeps the source order id so a printed line can always be
// traced back to the order that produced it.
type ArchivedItem struct {
	OrderID     string  `json:"orderId"`
	ItemName    string  `json:"itemName"`
	Quantity    int32   `json:"quantity"`
	Price       float64 `json:"price"`
	VariantName *string `json:"variantName"`
}
