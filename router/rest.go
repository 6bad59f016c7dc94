package router

import (
	"time"

	"social-realtime/controller"
	"social-realtime/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

type RestConfig struct {
	Presence controller.Presence
	Flushers map[string]controller.Flusher
	Enforcer middleware.Enforcer
	Secret   []byte
	Timeout  time.Duration
}

func Rest(app *fiber.App, cfg RestConfig) {
	api := app.Group("/v1", logger.New())

	// Presence
	presence := api.Group("/presence")
	presence.Get("/online-count", controller.PresenceOnlineCount(cfg.Presence))
	presence.Get("/users/:id", middleware.JWT(cfg.Secret), middleware.OTP(), controller.PresenceUser(cfg.Presence))

	// Ops
	ops := api.Group("/ops", middleware.JWT(cfg.Secret), middleware.OTP(), middleware.RBAC(cfg.Enforcer))
	ops.Get("/presence", controller.OpsPresence(cfg.Presence))
	ops.Post("/flush", controller.OpsFlush(cfg.Timeout, cfg.Flushers))
}
