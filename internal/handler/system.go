package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"license-verifier/internal/fingerprint"
	"license-verifier/internal/middleware"
	"license-verifier/internal/service"
)

var generator *fingerprint.Generator

func InitFingerprint(gen *fingerprint.Generator) {
	generator = gen
}

// HandleFingerprint 返回本机激活码，发给签发方生成许可证
func HandleFingerprint(c *fiber.Ctx) error {
	fp, err := generator.Generate()
	if err != nil {
		log.Error().Err(err).Msg("获取机器指纹失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "无法获取机器指纹",
		})
	}
	return c.JSON(fiber.Map{
		"activation_code": fp.Code(),
		"fingerprint":     fp.Hex(),
		"signals":         generator.Report(),
	})
}

// HandlePing 受许可证保护的示例接口
func HandlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message":  "pong",
		"customer": c.Locals(middleware.LocalsCustomer),
	})
}

// SetupRoutes 注册全部路由，需先调用 InitActivation 与 InitFingerprint。
// adminHash 为空时管理接口不可用。
func SetupRoutes(app *fiber.App, adminHash string, metrics *service.Metrics) {
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	// 系统路由
	api.Get("/system/fingerprint", HandleFingerprint)

	// 许可证路由
	licenses := api.Group("/license")
	licenses.Post("/activate", HandleLicenseActivate)
	licenses.Get("/status", HandleLicenseStatus)

	// 管理员专用路由
	admin := middleware.AdminOnly(adminHash)
	licenses.Delete("", admin, HandleLicenseDeactivate)
	licenses.Get("/activations", admin, HandleGetActivations)
	licenses.Get("/verifications", admin, HandleGetVerifications)
	licenses.Get("/logs", admin, HandleGetLogs)
	licenses.Get("/statistics", admin, HandleLicenseStatistics)

	// 需要有效许可证的业务路由
	protected := api.Group("/app", middleware.License(activation))
	protected.Get("/ping", HandlePing)
}
