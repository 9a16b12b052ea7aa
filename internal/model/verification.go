package model

import (
	"time"

	"gorm.io/gorm"
)

// VerificationRecord 每次激活或状态检查的校验结果
type VerificationRecord struct {
	gorm.Model
	ActivationID string    `json:"activation_id" gorm:"index"`
	Action       string    `json:"action" gorm:"index"` // "activate", "status", "guard"
	Code         int       `json:"code" gorm:"index"`
	Result       string    `json:"result"`
	Customer     string    `json:"customer"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	Timestamp    time.Time `json:"timestamp" gorm:"index"`
}
