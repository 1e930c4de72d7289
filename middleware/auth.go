package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"student-tracker/models"
	"student-tracker/services"
)

func RequireAuth(c *fiber.Ctx) error {
	// Get session ID from cookie
	sessionID := c.Cookies(services.SessionCookieName)
	if sessionID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	// Get session from database
	session, err := services.GetSessionByID(c.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to get session", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	if session == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired session",
		})
	}

	// Set user information in locals for downstream handlers
	c.Locals("user_id", session.UserID)
	c.Locals("email", session.Email)
	c.Locals("role", session.Role)
	c.Locals("username", session.Username)

	// Extend session expiration on activity
	services.ExtendSession(c.Context(), sessionID)

	return c.Next()
}

func RequireAdmin(c *fiber.Ctx) error {
	userRole := c.Locals("role")
	if userRole == nil || userRole.(string) != string(models.RoleAdmin) {
		slog.Info("Access denied - admin required", "user_role", userRole)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Only admins can perform this action",
		})
	}

	return c.Next()
}
