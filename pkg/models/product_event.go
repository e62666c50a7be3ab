package models

import "time"

// ProductEvent событие об изменении локального товара для внешних потребителей
type ProductEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"` // product_created, product_updated, product_skipped
	RunID      string    `json:"run_id,omitempty"`
	ProductID  string    `json:"product_id,omitempty"`
	SKU        string    `json:"sku"`
	RemoteUUID string    `json:"remote_uuid"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
