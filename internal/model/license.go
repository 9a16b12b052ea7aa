package model

import (
	"time"

	"gorm.io/gorm"
)

// 激活状态
const (
	ActivationActive      = "active"
	ActivationExpired     = "expired"
	ActivationReplaced    = "replaced"
	ActivationDeactivated = "deactivated"
)

// Activation 本机已激活的许可证，同一时刻只有一条 active
type Activation struct {
	gorm.Model
	ActivationID  string    `json:"activation_id" gorm:"uniqueIndex;not null"`
	Customer      string    `json:"customer" gorm:"index;not null"`
	Issuer        string    `json:"issuer"`
	Fingerprint   string    `json:"fingerprint" gorm:"index;not null"`
	License       string    `json:"-" gorm:"type:text;not null"`
	Status        string    `json:"status" gorm:"index;not null"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	ActivatedAt   time.Time `json:"activated_at"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// IsActive reports whether the activation is the one currently in force.
func (a *Activation) IsActive() bool {
	return a.Status == ActivationActive
}
