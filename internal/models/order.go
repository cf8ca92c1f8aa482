package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"     // 待处理
	StatusConfirmed  OrderStatus = "confirmed"   // 已确认
	StatusInProgress OrderStatus = "in_progress" // 维修中 (assigned and being worked on)
	StatusCompleted  OrderStatus = "completed"   // 已完成
	StatusCancelled  OrderStatus = "cancelled"   // 已取消
)

var statusLabels = map[OrderStatus]string{
	StatusPending:    "待处理",
	StatusConfirmed:  "已确认",
	StatusInProgress: "维修中",
	StatusCompleted:  "已完成",
	StatusCancelled:  "已取消",
}

// Label returns the display label. Labels are never persisted.
func (s OrderStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Terminal reports whether no lifecycle transition may leave the status.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseOrderStatus accepts the canonical value or its display label.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	s = strings.TrimSpace(s)
	st := OrderStatus(strings.ToLower(s))
	if _, ok := statusLabels[st]; ok {
		return st, true
	}
	for k, label := range statusLabels {
		if label == s {
			return k, true
		}
	}
	return "", false
}

type ServiceType string

const (
	ServiceRepair      ServiceType = "repair"
	ServiceAppointment ServiceType = "appointment"
)

func ParseServiceType(s string) (ServiceType, bool) {
	st := ServiceType(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case ServiceRepair, ServiceAppointment:
		return st, true
	}
	return "", false
}

// Urgency is a three-tier ordered priority. Older clients send
// normal/urgent/emergency for the same tiers.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

func ParseUrgency(s string) (Urgency, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "low", "normal":
		return UrgencyLow, true
	case "medium", "urgent":
		return UrgencyMedium, true
	case "high", "emergency":
		return UrgencyHigh, true
	}
	return "", false
}

// Rank orders urgencies, higher is more urgent.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyMedium:
		return 1
	case UrgencyHigh:
		return 2
	}
	return 0
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid:  {PaymentPending},
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentPaid:    {PaymentRefunded},
}

// CanTransitionTo reports whether the payment sub-state may move to next.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, s := range paymentTransitions[p] {
		if s == next {
			return true
		}
	}
	return false
}

// PaymentSourcesFor lists the payment states from which next is reachable.
func PaymentSourcesFor(next PaymentStatus) []PaymentStatus {
	var out []PaymentStatus
	for _, from := range []PaymentStatus{PaymentUnpaid, PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded} {
		if from.CanTransitionTo(next) {
			out = append(out, from)
		}
	}
	return out
}

type Order struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for walk-in / demo orders

	DeviceType         string      `gorm:"type:varchar(50);not null" json:"device_type"`
	DeviceModel        string      `gorm:"type:varchar(100)" json:"device_model"`
	ServiceType        ServiceType `gorm:"type:varchar(20);not null" json:"service_type"`
	AppointmentService string      `gorm:"type:varchar(50)" json:"appointment_service"`
	Problem            string      `gorm:"type:text" json:"problem"`
	Urgency            Urgency     `gorm:"type:varchar(10);not null;default:'low'" json:"urgency"`

	ContactName     string     `gorm:"type:varchar(100)" json:"contact_name"`
	ContactPhone    string     `gorm:"type:varchar(20)" json:"contact_phone"`
	AppointmentTime *time.Time `json:"appointment_time"`

	Status      OrderStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	AssignedTo  *uuid.UUID  `gorm:"type:uuid;index" json:"assigned_to"`
	RepairNotes string      `gorm:"type:text" json:"repair_notes"`

	RatingScore   *int       `json:"rating_score"`
	RatingComment string     `gorm:"type:text" json:"rating_comment"`
	RatedAt       *time.Time `json:"rated_at"`

	Amount            int64          `gorm:"not null" json:"amount"`
	PaymentStatus     PaymentStatus  `gorm:"type:varchar(20);not null;default:'unpaid';index" json:"payment_status"`
	PaymentMethod     string         `gorm:"type:varchar(30)" json:"payment_method"`
	PaymentOrderNo    *string        `gorm:"type:varchar(40);uniqueIndex" json:"payment_order_no"`
	TransactionID     string         `gorm:"type:varchar(64)" json:"transaction_id"`
	PaymentTime       *time.Time     `json:"payment_time"`
	PaymentRequestAt  *time.Time     `json:"payment_request_at"`
	PaymentFailReason string         `gorm:"type:text" json:"payment_fail_reason"`
	PaymentCallback   datatypes.JSON `json:"-"` // last raw gateway callback
	RefundAmount      int64          `json:"refund_amount"`
	RefundReason      string         `gorm:"type:text" json:"refund_reason"`
	RefundTime        *time.Time     `json:"refund_time"`

	CompletedAt *time.Time `json:"completed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relations
	User      *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Repairman *User `gorm:"foreignKey:AssignedTo" json:"repairman,omitempty"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) (err error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return
}

// OwnedBy reports whether id owns the order. Anonymous orders are owned by nobody.
func (o *Order) OwnedBy(id uuid.UUID) bool {
	return o.UserID != nil && *o.UserID == id
}

func (o *Order) AssignedToUser(id uuid.UUID) bool {
	return o.AssignedTo != nil && *o.AssignedTo == id
}

func (o *Order) Rated() bool {
	return o.RatingScore != nil
}
