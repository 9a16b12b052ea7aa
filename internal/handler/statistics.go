package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"license-verifier/internal/service"
)

// HandleLicenseStatistics 处理校验统计信息请求
func HandleLicenseStatistics(c *fiber.Ctx) error {
	// 获取查询参数
	startDate := c.Query("start_date")
	endDate := c.Query("end_date")

	now := time.Now().UTC()
	start := now.AddDate(0, 0, -30)
	end := now

	if startDate != "" {
		t, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"code":    400,
				"message": "开始日期格式错误",
				"errors": []fiber.Map{
					{"field": "start_date", "message": "日期格式应为 YYYY-MM-DD"},
				},
			})
		}
		start = t
	}

	if endDate != "" {
		t, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"code":    400,
				"message": "结束日期格式错误",
				"errors": []fiber.Map{
					{"field": "end_date", "message": "日期格式应为 YYYY-MM-DD"},
				},
			})
		}
		// 包含结束日期当天
		end = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	if end.Before(start) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"code":    400,
			"message": "结束日期早于开始日期",
		})
	}

	stats, err := service.GetStatistics(start, end, now)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":    500,
			"message": "获取统计信息失败",
		})
	}

	return c.JSON(fiber.Map{
		"code":    200,
		"message": "success",
		"data":    stats,
		"rate":    stats.GetSuccessRate(),
	})
}
