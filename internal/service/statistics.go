package service

import (
	"time"

	"gorm.io/gorm"

	"license-verifier/internal/database"
	"license-verifier/internal/license"
	"license-verifier/internal/model"
)

// GetStatistics 汇总 [from, to] 内的校验记录以及当前激活状态
func GetStatistics(from, to, now time.Time) (*model.VerificationStatistics, error) {
	from, to, now = from.UTC(), to.UTC(), now.UTC()
	db := database.DB

	stats := &model.VerificationStatistics{
		From:           from,
		To:             to,
		ChecksByResult: make(map[string]int64),
		DailyChecks:    make([]model.DailyChecks, 0),
	}

	inRange := func() *gorm.DB {
		return db.Model(&model.VerificationRecord{}).Where("timestamp BETWEEN ? AND ?", from, to)
	}

	// 校验总数与通过数
	if err := inRange().Count(&stats.TotalChecks).Error; err != nil {
		return nil, err
	}
	if err := inRange().Where("code = ?", int(license.CodeSuccess)).Count(&stats.AcceptedChecks).Error; err != nil {
		return nil, err
	}

	// 按结果统计
	var byResult []struct {
		Result string
		Count  int64
	}
	if err := inRange().Select("result, count(*) as count").Group("result").Scan(&byResult).Error; err != nil {
		return nil, err
	}
	for _, r := range byResult {
		stats.ChecksByResult[r.Result] = r.Count
	}

	// 每日统计
	if err := inRange().
		Select("DATE(timestamp) as date, COUNT(*) as total, SUM(CASE WHEN code = ? THEN 1 ELSE 0 END) as accepted", int(license.CodeSuccess)).
		Group("DATE(timestamp)").
		Order("date ASC").
		Scan(&stats.DailyChecks).Error; err != nil {
		return nil, err
	}

	// 激活状态
	if err := db.Model(&model.Activation{}).Where("status = ?", model.ActivationActive).Count(&stats.ActiveActivations).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Activation{}).Where("status = ?", model.ActivationExpired).Count(&stats.ExpiredActivations).Error; err != nil {
		return nil, err
	}

	// 30天内到期
	if err := db.Model(&model.Activation{}).
		Where("status = ? AND expires_at <= ?", model.ActivationActive, now.AddDate(0, 0, 30)).
		Count(&stats.ExpiringActivations).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
