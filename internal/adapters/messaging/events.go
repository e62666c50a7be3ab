package messaging

type KafkaEvent = string

const (
	ProductCreatedEvent = "product_created"
	ProductUpdatedEvent = "product_updated"
	ProductSkippedEvent = "product_skipped"
)

// Топики сервиса
const (
	JobsTopic   = "catalog-sync-jobs"
	EventsTopic = "catalog-sync-events"
)
