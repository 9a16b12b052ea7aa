package model

import "time"

// DailyChecks 每日校验统计
type DailyChecks struct {
	Date     string `json:"date"`
	Total    int64  `json:"total"`
	Accepted int64  `json:"accepted"`
}

// VerificationStatistics 校验结果统计
type VerificationStatistics struct {
	From                time.Time        `json:"from"`
	To                  time.Time        `json:"to"`
	TotalChecks         int64            `json:"total_checks"`
	AcceptedChecks      int64            `json:"accepted_checks"`
	ChecksByResult      map[string]int64 `json:"checks_by_result"`
	DailyChecks         []DailyChecks    `json:"daily_checks"`
	ActiveActivations   int64            `json:"active_activations"`
	ExpiredActivations  int64            `json:"expired_activations"`
	ExpiringActivations int64            `json:"expiring_activations"`
}

// GetSuccessRate 计算校验通过率
func (s *VerificationStatistics) GetSuccessRate() float64 {
	if s.TotalChecks == 0 {
		return 0
	}
	return float64(s.AcceptedChecks) / float64(s.TotalChecks)
}

// GetChecksByResult 获取指定结果的次数
func (s *VerificationStatistics) GetChecksByResult(result string) int64 {
	return s.ChecksByResult[result]
}

// GetDailyChecksByDate 获取指定日期的校验统计
func (s *VerificationStatistics) GetDailyChecksByDate(date time.Time) *DailyChecks {
	day := date.Format("2006-01-02")
	for i := range s.DailyChecks {
		if s.DailyChecks[i].Date == day {
			return &s.DailyChecks[i]
		}
	}
	return nil
}
