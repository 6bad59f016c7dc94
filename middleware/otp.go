package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// OTP rejects tokens issued before the second factor was validated.
func OTP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		mapClaims, ok := claims(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{
					"status":  "error",
					"message": "Invalid or expired JWT",
					"data":    nil,
				})
		}

		if pending, _ := mapClaims["otp"].(bool); pending {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{
					"status":  "error",
					"message": "2FA required",
					"data":    nil,
				})
		}

		return c.Next()
	}
}
