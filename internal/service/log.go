package service

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"license-verifier/internal/database"
	"license-verifier/internal/model"
)

// 操作者
const (
	ActorAdmin  = "admin"
	ActorAPI    = "api"
	ActorSystem = "system"
)

func LogOperation(actor string, action string, target string, targetID string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	log := &model.OperationLog{
		Actor:     actor,
		Action:    action,
		Target:    target,
		TargetID:  targetID,
		Details:   string(detailsJSON),
		CreatedAt: time.Now(),
	}

	return database.DB.Create(log).Error
}

// 获取操作日志列表，action 为空时不过滤
func GetOperationLogs(action string, page, pageSize int) ([]model.OperationLog, int64, error) {
	var logs []model.OperationLog
	var total int64

	query := func() *gorm.DB {
		db := database.DB.Model(&model.OperationLog{})
		if action != "" {
			db = db.Where("action = ?", action)
		}
		return db
	}

	// 获取总数
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 获取分页数据
	offset := (page - 1) * pageSize
	if err := query().Order("created_at DESC").Order("id DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// 获取校验记录
func GetVerificationRecords(page, pageSize int) ([]model.VerificationRecord, int64, error) {
	var records []model.VerificationRecord
	var total int64

	db := database.DB

	if err := db.Model(&model.VerificationRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := db.Order("timestamp DESC").Order("id DESC").Offset(offset).Limit(pageSize).Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
