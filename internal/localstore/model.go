package localstore

// CachedOrder is the read-side copy of a fulfillment order, keyed by the
// server's order identifier.
type CachedOrder struct {
	ID                 int64  `gorm:"column:id;primaryKey"`
	PlatformID         int64  `gorm:"column:platform_id;index:idx_orders_platform"`
	Number             string `gorm:"column:number;size:64;not null;default:''"`
	Status             string `gorm:"column:status;size:32;not null;index:idx_orders_status"`
	CustomerName       string `gorm:"column:customer_name;size:190;not null;default:''"`
	OrderDateSeconds   int64  `gorm:"column:order_date_s;not null;default:0"`
	StartedBy          string `gorm:"column:started_by;size:190;not null;default:''"`
	StartedAtSeconds   int64  `gorm:"column:started_at_s;not null;default:0"`
	CompletedAtSeconds int64  `gorm:"column:completed_at_s;not null;default:0"`
	Synced             bool   `gorm:"column:synced;not null;default:true"`
	FetchedAtSeconds   int64  `gorm:"column:fetched_at_s;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (CachedOrder) TableName() string {
	return "cached_orders"
}

// CachedOrderItem is the read-side copy of one order line, keyed by the
// server's item identifier. Items for an order are always replaced as a set
// when the order detail is refreshed.
type CachedOrderItem struct {
	ID              int64  `gorm:"column:id;primaryKey"`
	OrderID         int64  `gorm:"column:order_id;not null;index:idx_items_order"`
	ProductID       int64  `gorm:"column:product_id;not null;index:idx_items_product"`
	SKU             string `gorm:"column:sku;size:128;not null;default:''"`
	Name            string `gorm:"column:name;size:255;not null;default:''"`
	Quantity        int    `gorm:"column:quantity;not null;default:0"`
	PickedQuantity  int    `gorm:"column:picked_quantity;not null;default:0"`
	MissingQuantity int    `gorm:"column:missing_quantity;not null;default:0"`
	IsPicked        bool   `gorm:"column:is_picked;not null;default:false;index:idx_items_picked"`
	Synced          bool   `gorm:"column:synced;not null;default:true"`
}

// TableName provides the explicit table binding for GORM.
func (CachedOrderItem) TableName() string {
	return "cached_order_items"
}

// CachedProduct mirrors the server's product catalog entry.
type CachedProduct struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	PlatformID    int64  `gorm:"column:platform_id;index:idx_products_platform"`
	SKU           string `gorm:"column:sku;size:128;not null;index:idx_products_sku"`
	QRCode        string `gorm:"column:qr_code;size:190;not null;default:'';index:idx_products_qr"`
	Name          string `gorm:"column:name;size:255;not null;default:''"`
	ImageURL      string `gorm:"column:image_url;type:text;not null;default:''"`
	StockQuantity int    `gorm:"column:stock_quantity;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (CachedProduct) TableName() string {
	return "cached_products"
}

// CodeMapping binds a scanned QR code to a product SKU. Mappings created on
// the device carry a locally generated identifier until the server confirms.
type CodeMapping struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	QRCode           string `gorm:"column:qr_code;size:190;not null;uniqueIndex:idx_mappings_code"`
	SKU              string `gorm:"column:sku;size:128;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	Synced           bool   `gorm:"column:synced;not null;default:true"`
}

// TableName provides the explicit table binding for GORM.
func (CodeMapping) TableName() string {
	return "code_mappings"
}

// QueuedMutation records one pending state-changing intent. Rows are created
// by domain stores, marked completed by the sync engine after confirmed
// remote delivery, and retained afterwards as a delivery log.
type QueuedMutation struct {
	ID                 int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Kind               string `gorm:"column:kind;size:64;not null"`
	PayloadJSON        string `gorm:"column:payload_json;type:text;not null"`
	EnqueuedAtSeconds  int64  `gorm:"column:enqueued_at_s;not null"`
	Completed          bool   `gorm:"column:completed;not null;default:false;index:idx_queue_completed"`
	CompletedAtSeconds int64  `gorm:"column:completed_at_s;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (QueuedMutation) TableName() string {
	return "queued_mutations"
}

// SessionRecord persists the authenticated session so the agent survives a
// restart without forcing re-login. A single row with ID 1 is maintained.
type SessionRecord struct {
	ID             int64  `gorm:"column:id;primaryKey"`
	Token          string `gorm:"column:token;type:text;not null"`
	UserID         string `gorm:"column:user_id;size:190;not null;default:''"`
	Email          string `gorm:"column:email;size:190;not null;default:''"`
	DisplayName    string `gorm:"column:display_name;size:190;not null;default:''"`
	Role           string `gorm:"column:role;size:64;not null;default:''"`
	SavedAtSeconds int64  `gorm:"column:saved_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SessionRecord) TableName() string {
	return "session_records"
}
