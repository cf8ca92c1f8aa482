package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifyOrderStatusChange NotificationType = "order_status_change"
	NotifyOrderAssignment   NotificationType = "order_assignment"
	NotifyNewOrder          NotificationType = "new_order"
	NotifySystemMessage     NotificationType = "system_message"
	NotifyPaymentSuccess    NotificationType = "payment_success"
	NotifyPaymentFailed     NotificationType = "payment_failed"
	NotifyNewPaidOrder      NotificationType = "new_paid_order"
	NotifyRefundCompleted   NotificationType = "refund_completed"
)

// Notification is an ephemeral live-UI event. It is never persisted.
type Notification struct {
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	OrderID     uuid.UUID        `json:"order_id"`
	Status      OrderStatus      `json:"status,omitempty"`
	StatusLabel string           `json:"status_label,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`

	// Channels the event is delivered to, e.g. "user_<id>", "admin".
	Channels []string `json:"-"`
}

func UserChannel(id uuid.UUID) string {
	return "user_" + id.String()
}

func RoleChannel(r Role) string {
	return string(r)
}

// StaffChannels are the rooms watched by order triage staff.
func StaffChannels() []string {
	return []string{RoleChannel(RoleAdmin), RoleChannel(RoleCustomerService)}
}
