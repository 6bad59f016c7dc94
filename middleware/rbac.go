package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/zishang520/engine.io/v2/log"
)

var rbacLog = log.NewLog("realtime:rbac")

type Enforcer interface {
	Enforce(rvals ...interface{}) (bool, error)
}

// RBAC enforces (user id, path, method) against the loaded casbin policy.
func RBAC(enforcer Enforcer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := UserID(c)

		accepted, err := enforcer.Enforce(id, c.Path(), c.Method())
		if err != nil {
			rbacLog.Error("enforce %s %s for %s: %v", c.Method(), c.Path(), id, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Internal server error",
				"data":    nil,
			})
		}

		if id == "" || !accepted {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"status":  "error",
				"message": "Unauthorized",
				"data":    nil,
			})
		}

		return c.Next()
	}
}
