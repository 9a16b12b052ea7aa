package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"golang.org/x/crypto/bcrypt"
)

// AdminUser 管理接口的固定用户名
const AdminUser = "admin"

// AdminOnly 管理接口使用 Basic 认证，口令与配置中的 bcrypt 哈希比对。
// 未配置哈希时管理接口一律拒绝。
func AdminOnly(passwordHash string) fiber.Handler {
	if passwordHash == "" {
		return func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "未配置管理员口令",
			})
		}
	}

	hash := []byte(passwordHash)
	return basicauth.New(basicauth.Config{
		Realm: "license-verifier",
		Authorizer: func(user, pass string) bool {
			return user == AdminUser && bcrypt.CompareHashAndPassword(hash, []byte(pass)) == nil
		},
		Unauthorized: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="license-verifier"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "无效的管理员凭证",
			})
		},
	})
}

// HashPassword 生成管理员口令哈希，写入 admin.password_hash
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
