package domain

// Notification topics double as AMQP routing keys.
const (
	TopicOrderPartialPayment  = "order.partial_payment"
	TopicPayoutSent           = "payout.sent"
	TopicPayoutInsufficient   = "payout.insufficient_balance"
	TopicPayoutInvalidAddress = "payout.invalid_address"
	TopicPayoutFailed         = "payout.failed"
	TopicWithdrawReleased     = "withdraw.released"
	TopicWithdrawCheckFailed  = "withdraw.check_failed"
	TopicSweepTopUpRequired   = "sweep.top_up_required"
	TopicWebhookRejected      = "webhook.rejected"
)

// Notification is an operator alert. Delivery is best effort.
type Notification struct {
	Topic   string            `json:"topic"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
