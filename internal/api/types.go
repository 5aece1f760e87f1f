package api

import "time"

// Order is the list-level order representation returned by the remote API.
type Order struct {
	ID           int64     `json:"id"`
	PlatformID   int64     `json:"platformId"`
	Number       string    `json:"number"`
	Status       string    `json:"status"`
	CustomerName string    `json:"customerName"`
	OrderDate    time.Time `json:"orderDate"`
	StartedBy    string    `json:"startedBy"`
	StartedAt    time.Time `json:"startedAt"`
	CompletedAt  time.Time `json:"completedAt"`
}

// OrderItem is one order line as reported by the remote API.
type OrderItem struct {
	ID              int64  `json:"id"`
	ProductID       int64  `json:"productId"`
	SKU             string `json:"sku"`
	Name            string `json:"name"`
	Quantity        int    `json:"quantity"`
	PickedQuantity  int    `json:"pickedQuantity"`
	MissingQuantity int    `json:"missingQuantity"`
	IsPicked        bool   `json:"isPicked"`
}

// OrderDetail is the full order payload including its line items.
type OrderDetail struct {
	Order
	Items []OrderItem `json:"items"`
}

// Product mirrors the remote catalog entry.
type Product struct {
	ID            int64  `json:"id"`
	PlatformID    int64  `json:"platformId"`
	SKU           string `json:"sku"`
	QRCode        string `json:"qrCode"`
	Name          string `json:"name"`
	ImageURL      string `json:"imageUrl"`
	StockQuantity int    `json:"stockQuantity"`
}

// SyncStats reports the outcome of a server-side pull from the commerce
// platform.
type SyncStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// User describes the authenticated warehouse account.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoginResult carries the bearer token and profile issued at login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
