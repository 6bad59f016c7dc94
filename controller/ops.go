package controller

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/zishang520/engine.io/v2/log"
)

var opsLog = log.NewLog("realtime:ops")

type Flusher interface {
	Flush(ctx context.Context) error
}

// OpsFlush writes every pending batch now instead of waiting for the next
// tick. The response lists the batches that failed.
func OpsFlush(timeout time.Duration, flushers map[string]Flusher) fiber.Handler {
	names := make([]string, 0, len(flushers))
	for name := range flushers {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()

		failed := []string{}
		for _, name := range names {
			if err := flushers[name].Flush(ctx); err != nil {
				opsLog.Error("manual flush of %s failed: %v", name, err)
				failed = append(failed, name)
			}
		}

		if len(failed) > 0 {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Flush failed, pending writes were kept for the next tick",
				"data": fiber.Map{
					"failed": failed,
				},
			})
		}

		return c.JSON(fiber.Map{
			"status":  "success",
			"message": nil,
			"data": fiber.Map{
				"flushed": names,
			},
		})
	}
}
