package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"student-tracker/services"
)

// GetAlerts returns the records that have gone quiet, most stale first.
// The threshold query parameter overrides the configured default.
func GetAlerts(c *fiber.Ctx) error {
	threshold := c.QueryInt("threshold", cfg.InactiveThresholdDays)
	if threshold <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "threshold must be a positive number of days",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	table, err := sheetStore.Load(ctx)
	if err != nil {
		slog.Error("Failed to load records for alerts", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to load records from the store",
		})
	}

	alerts := services.Alerts(table, time.Now(), threshold)

	return c.JSON(fiber.Map{
		"threshold": threshold,
		"count":     len(alerts),
		"alerts":    alerts,
	})
}

// NotificationResult reports the outcome of one alert email.
type NotificationResult struct {
	Name      string `json:"name"`
	Recipient string `json:"recipient,omitempty"`
	Status    string `json:"status"` // "sent", "no_contact", "failed"
	Error     string `json:"error,omitempty"`
}

// NotifyInactive emails each flagged record's branch head, looked up
// through the district directory. Send failures are reported per
// recipient and never abort the batch.
func NotifyInactive(c *fiber.Ctx) error {
	threshold := c.QueryInt("threshold", cfg.InactiveThresholdDays)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	table, err := sheetStore.Load(ctx)
	if err != nil {
		slog.Error("Failed to load records for notification", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to load records from the store",
		})
	}

	alerts := services.Alerts(table, time.Now(), threshold)

	results := make([]NotificationResult, 0, len(alerts))
	sent := 0
	for _, alert := range alerts {
		rec := table.Find(alert.Name)
		info, ok := directory.Lookup(rec.Fields["District"])
		if !ok || info.ContactEmail == "" {
			results = append(results, NotificationResult{
				Name:   alert.Name,
				Status: "no_contact",
			})
			continue
		}

		subject := fmt.Sprintf("Inactivity alert: %s", alert.Name)
		body := fmt.Sprintf("Dear %s,\n\n%s has had no update for %d days (threshold: %d days).\nPlease follow up and record a new update.\n",
			info.BranchHead, alert.Name, alert.DaysSinceUpdate, threshold)

		if err := notifier.Send(ctx, info.ContactEmail, subject, body); err != nil {
			slog.Error("Alert notification failed", "entity", alert.Name, "error", err)
			results = append(results, NotificationResult{
				Name:      alert.Name,
				Recipient: info.ContactEmail,
				Status:    "failed",
				Error:     err.Error(),
			})
			continue
		}

		sent++
		results = append(results, NotificationResult{
			Name:      alert.Name,
			Recipient: info.ContactEmail,
			Status:    "sent",
		})
	}

	return c.JSON(fiber.Map{
		"threshold": threshold,
		"sent":      sent,
		"results":   results,
	})
}
