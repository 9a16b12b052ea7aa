package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"license-verifier/internal/service"
)

func pagination(c *fiber.Ctx) (int, int) {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "10"))

	if page < 1 {
		page = 1
	}
	// 限制页面大小
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func HandleGetLogs(c *fiber.Ctx) error {
	page, pageSize := pagination(c)

	logs, total, err := service.GetOperationLogs(c.Query("action"), page, pageSize)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "获取日志失败",
		})
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
		"page":  page,
	})
}

// HandleGetVerifications 校验记录
func HandleGetVerifications(c *fiber.Ctx) error {
	page, pageSize := pagination(c)

	records, total, err := service.GetVerificationRecords(page, pageSize)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "获取校验记录失败",
		})
	}

	return c.JSON(fiber.Map{
		"records": records,
		"total":   total,
		"page":    page,
	})
}
