package handler

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"license-verifier/internal/boundary"
	"license-verifier/internal/license"
	"license-verifier/internal/service"
)

var (
	activation *service.ActivationService
	validate   = validator.New()
)

func InitActivation(svc *service.ActivationService) {
	activation = svc
}

// ActivateInput 激活请求
type ActivateInput struct {
	License string `json:"license" validate:"required,max=16384"`
}

func requestMeta(c *fiber.Ctx) service.RequestMeta {
	return service.RequestMeta{IP: c.IP(), UserAgent: c.Get(fiber.HeaderUserAgent)}
}

func rejection(res license.Result) fiber.Map {
	return fiber.Map{
		"error":  service.ResultMessage(res.Code),
		"code":   int(res.Code),
		"result": res.Code.String(),
	}
}

// HandleLicenseActivate 校验并保存许可证
func HandleLicenseActivate(c *fiber.Ctx) error {
	input := new(ActivateInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "无效的输入数据",
		})
	}
	if err := validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "许可证不能为空",
		})
	}

	act, res, err := activation.Activate(input.License, requestMeta(c))
	if err != nil {
		log.Error().Err(err).Msg("激活失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "保存许可证失败",
		})
	}
	if !res.Accepted() {
		return c.Status(fiber.StatusBadRequest).JSON(rejection(res))
	}

	return c.JSON(fiber.Map{
		"ok":         true,
		"customer":   act.Customer,
		"exp":        act.ExpiresAt.Unix(),
		"activation": act,
	})
}

// HandleLicenseStatus 重新校验当前许可证
func HandleLicenseStatus(c *fiber.Ctx) error {
	act, res, err := activation.Current(service.ActionStatus, requestMeta(c))
	if errors.Is(err, service.ErrNotActivated) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "未激活许可证",
			"active": false,
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "检查许可证失败",
		})
	}

	body := fiber.Map{
		"active":     res.Accepted(),
		"code":       int(res.Code),
		"result":     res.Code.String(),
		"message":    service.ResultMessage(res.Code),
		"activation": act,
	}
	if res.Accepted() {
		data, err := boundary.FlatJSON(res.Payload)
		if err == nil {
			body["data"] = json.RawMessage(data)
		}
	}
	return c.JSON(body)
}

// HandleLicenseDeactivate 停用当前许可证（管理员）
func HandleLicenseDeactivate(c *fiber.Ctx) error {
	act, err := activation.Deactivate(service.ActorAdmin)
	if errors.Is(err, service.ErrNotActivated) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "未激活许可证",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "停用许可证失败",
		})
	}
	return c.JSON(fiber.Map{
		"message":    "许可证已停用",
		"activation": act,
	})
}

// HandleGetActivations 激活历史（管理员）
func HandleGetActivations(c *fiber.Ctx) error {
	acts, err := activation.History()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "获取激活记录失败",
		})
	}
	return c.JSON(fiber.Map{
		"activations": acts,
	})
}
