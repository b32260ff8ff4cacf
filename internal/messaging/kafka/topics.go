package kafka

// Topics для Kafka
const (
	TopicOrderEvents     = "tableside.order.events"
	TopicDeadLetterQueue = "tableside.dlq"
)
