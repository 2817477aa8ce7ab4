package rabbitmq

// QueueConfig binds a queue name to a routing key on the notifications exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Routing keys published by the services.
const (
	RoutingKeyEmail = "email"
	RoutingKeyAudit = "audit"
)

// GetNotificationQueues lists the queues the worker binaries consume.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notification.email", RoutingKey: RoutingKeyEmail},
		{QueueName: "notification.audit", RoutingKey: RoutingKeyAudit},
	}
}
