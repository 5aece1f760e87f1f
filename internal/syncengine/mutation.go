package syncengine

// Kind enumerates the queued mutation kinds. Each kind maps to one remote
// endpoint whose effect is an idempotent set, so at-least-once delivery under
// retry is safe.
type Kind string

const (
	// KindStartOrder marks an order as picking-started by the current user.
	KindStartOrder Kind = "start_order"
	// KindMarkPicked sets an item's picked quantity to an exact value.
	KindMarkPicked Kind = "mark_picked"
	// KindMarkMissing sets an item's missing quantity to an exact value.
	KindMarkMissing Kind = "mark_missing"
	// KindCompleteOrder marks an order completed.
	KindCompleteOrder Kind = "complete_order"
	// KindCreateQRMapping upserts a scanned-code-to-SKU mapping.
	KindCreateQRMapping Kind = "create_qr_mapping"
)

// OrderPayload is the payload for start_order and complete_order.
type OrderPayload struct {
	OrderID int64 `json:"orderId"`
}

// ItemPayload is the payload for mark_picked and mark_missing. Quantity is
// the absolute value to set, never an increment.
type ItemPayload struct {
	OrderID  int64 `json:"orderId"`
	ItemID   int64 `json:"itemId"`
	Quantity int   `json:"quantity"`
}

// MappingPayload is the payload for create_qr_mapping.
type MappingPayload struct {
	QRCode string `json:"qrCode"`
	SKU    string `json:"sku"`
}
