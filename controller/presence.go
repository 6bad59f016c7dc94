package controller

import (
	"time"

	"social-realtime/presence"

	"github.com/gofiber/fiber/v2"
)

type Presence interface {
	Count() int
	Online() []string
	IsOnline(userID string) bool
	Sessions(userID string) []presence.Session
}

type PresenceSession struct {
	Id           string `json:"id"`
	JoinedAt     int64  `json:"joinedAt"`
	LastActivity int64  `json:"lastActivity"`
}

// PresenceOnlineCount is public, it backs the "members online" badge.
func PresenceOnlineCount(registry Presence) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": nil,
			"data": fiber.Map{
				"count": registry.Count(),
			},
		})
	}
}

func PresenceUser(registry Presence) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status":  "error",
				"message": "Review your input",
				"data":    nil,
			})
		}

		return c.JSON(fiber.Map{
			"status":  "success",
			"message": nil,
			"data": fiber.Map{
				"id":     id,
				"online": registry.IsOnline(id),
			},
		})
	}
}

func OpsPresence(registry Presence) fiber.Handler {
	return func(c *fiber.Ctx) error {
		online := registry.Online()

		sessions := make(map[string][]PresenceSession, len(online))
		for _, id := range online {
			for _, s := range registry.Sessions(id) {
				sessions[id] = append(sessions[id], PresenceSession{
					Id:           s.ConnID,
					JoinedAt:     s.JoinedAt.Unix(),
					LastActivity: s.LastActivity.Unix(),
				})
			}
		}

		return c.JSON(fiber.Map{
			"status":  "success",
			"message": nil,
			"data": fiber.Map{
				"count":    len(online),
				"users":    online,
				"sessions": sessions,
				"at":       time.Now().Unix(),
			},
		})
	}
}
