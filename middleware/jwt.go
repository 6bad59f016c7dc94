package middleware

import (
	"errors"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWT verifies the HS512 bearer token and stores it under the "user" local.
// A missing header answers 400, a bad or expired token 401.
func JWT(secret []byte) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{
			JWTAlg: jwtware.HS512,
			Key:    secret,
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				return c.Status(fiber.StatusBadRequest).
					JSON(fiber.Map{
						"status":  "error",
						"message": "Missing or malformed JWT",
						"data":    nil,
					})
			}
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{
					"status":  "error",
					"message": "Invalid or expired JWT",
					"data":    nil,
				})
		},
	})
}

// claims returns the claims JWT stored on the request.
func claims(c *fiber.Ctx) (jwt.MapClaims, bool) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return nil, false
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	return mapClaims, ok
}

// UserID returns the id claim of the authenticated request.
func UserID(c *fiber.Ctx) string {
	mapClaims, ok := claims(c)
	if !ok {
		return ""
	}
	id, _ := mapClaims["id"].(string)
	return id
}
