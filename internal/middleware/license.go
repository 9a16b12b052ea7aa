package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"license-verifier/internal/license"
	"license-verifier/internal/model"
	"license-verifier/internal/service"
)

// LocalsCustomer 校验通过后写入上下文的客户名
const LocalsCustomer = "license.customer"

// LicenseChecker is satisfied by *service.ActivationService.
type LicenseChecker interface {
	Current(action string, meta service.RequestMeta) (*model.Activation, license.Result, error)
}

// License 拒绝未激活或校验未通过的请求（403）。
// 只挂在业务路由组上，激活与指纹接口不经过它。
func License(checker LicenseChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		act, res, err := checker.Current(service.ActionGuard, service.RequestMeta{
			IP:        c.IP(),
			UserAgent: c.Get(fiber.HeaderUserAgent),
		})
		if errors.Is(err, service.ErrNotActivated) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "未激活许可证，请先激活",
			})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "检查许可证失败",
			})
		}
		if !res.Accepted() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":  service.ResultMessage(res.Code),
				"code":   int(res.Code),
				"result": res.Code.String(),
			})
		}

		c.Locals(LocalsCustomer, act.Customer)
		return c.Next()
	}
}
