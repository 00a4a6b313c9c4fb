package domain

// Outbound domain events.
const (
	EventTransactionCreated       = "transaction.created"
	EventTransactionStatusChanged = "transaction.status_changed"
	EventDisputeCreated           = "dispute.created"
	EventDisputeResolved          = "dispute.resolved"
)

// EventNotificationEmailRequested is kept on the outbox and delivered by the relay, never by the broker.
const EventNotificationEmailRequested = "notification.email_requested"

// Inbound directory events.
const (
	EventUserRegistered  = "user.registered"
	EventUserUpdated     = "user.updated"
	EventUserDeleted     = "user.deleted"
	EventProductUpserted = "product.upserted"
)

// Real-time events pushed to connected clients.
const RealtimeTransactionCreated = "transactionCreated"
