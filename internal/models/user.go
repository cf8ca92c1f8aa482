package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser            Role = "user"
	RoleRepairman       Role = "repairman"
	RoleCustomerService Role = "customer_service"
	RoleAdmin           Role = "admin"
)

// ParseRole normalizes a role string coming from a request or a token claim.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleUser, RoleRepairman, RoleCustomerService, RoleAdmin:
		return r, true
	}
	return "", false
}

// IsStaff reports whether the role belongs to shop staff that triages orders.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleCustomerService
}

// internal/models/user.go
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Phone    string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"phone"`
	Username *string   `gorm:"type:varchar(50);uniqueIndex" json:"username,omitempty"` // nullable, so the index is sparse
	Name     string    `gorm:"type:varchar(100)" json:"name"`
	Email    string    `gorm:"type:varchar(150)" json:"email"`

	Password string `gorm:"not null" json:"-"`
	Role     Role   `gorm:"type:varchar(20);not null;index;default:'user'" json:"role"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return
}

// Actor is the authenticated identity performing an operation. A nil *Actor
// means the request carried no credential.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (u *User) Actor() *Actor {
	return &Actor{ID: u.ID, Role: u.Role}
}
