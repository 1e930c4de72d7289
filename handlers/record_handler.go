package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"student-tracker/models"
	"student-tracker/services"
)

// GetRecords returns the full table with the derived inactivity columns
// recomputed at request time.
func GetRecords(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	table, err := sheetStore.Load(ctx)
	if err != nil {
		slog.Error("Failed to load records", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to load records from the store",
		})
	}

	services.ComputeInactivity(table, time.Now(), cfg.InactiveThresholdDays)

	return c.JSON(fiber.Map{
		"field_names": table.FieldNames,
		"records":     table.Records,
		"version":     table.Version,
		"threshold":   cfg.InactiveThresholdDays,
	})
}

// GetSuggestions returns existing record names matching the partial name
// in the q query parameter, for form auto-suggest.
func GetSuggestions(c *fiber.Ctx) error {
	partial := c.Query("q")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	table, err := sheetStore.Load(ctx)
	if err != nil {
		slog.Error("Failed to load records for suggestions", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to load records from the store",
		})
	}

	suggestions := services.Suggestions(table, partial)
	if suggestions == nil {
		suggestions = []string{}
	}

	return c.JSON(fiber.Map{
		"query":       partial,
		"suggestions": suggestions,
	})
}

// SubmitUpdateRequest is the form payload for one update submission.
// A nil Date means the client left the field untouched and gets today;
// a present but unparseable date is rejected, never substituted.
type SubmitUpdateRequest struct {
	Name      string            `json:"name"`
	Fields    map[string]string `json:"fields"`
	Note      string            `json:"note"`
	Date      *string           `json:"date"`
	NewRecord bool              `json:"new_record"`
}

// SubmitUpdate runs the full load → resolve → append → save cycle. A
// save that loses the version race is retried once against a fresh
// load before the conflict is reported to the client.
func SubmitUpdate(c *fiber.Ctx) error {
	var req SubmitUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	now := time.Now()
	date := now
	if req.Date != nil {
		parsed, err := time.Parse(models.DateLayout, *req.Date)
		if err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "Date must be a valid YYYY-MM-DD date",
				"field": "Date",
			})
		}
		date = parsed
	}

	ureq := services.UpdateRequest{
		Name:      strings.TrimSpace(req.Name),
		Fields:    fillBranchFromDirectory(req.Fields),
		Note:      req.Note,
		Date:      date,
		NewRecord: req.NewRecord,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var table *models.Table
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		table, err = submitOnce(ctx, ureq, now)
		if err == nil || !services.IsStale(err) {
			break
		}
		slog.Info("Sheet version raced, reloading and retrying", "entity", req.Name)
	}
	if err != nil {
		return submitError(c, err)
	}

	rec := table.Find(ureq.Name)
	seq := 0
	if rec != nil {
		seq = rec.UpdateCount
	}

	manager := services.GetWebSocketManager()
	manager.BroadcastTableUpdate(table)
	manager.BroadcastAlerts(services.Alerts(table, now, cfg.InactiveThresholdDays))

	return c.JSON(fiber.Map{
		"message":     updateMessage(ureq.Name, seq),
		"seq":         seq,
		"field_names": table.FieldNames,
		"records":     table.Records,
		"version":     table.Version,
	})
}

func submitOnce(ctx context.Context, ureq services.UpdateRequest, now time.Time) (*models.Table, error) {
	table, err := sheetStore.Load(ctx)
	if err != nil {
		return nil, err
	}

	updated, err := engine.AppendUpdate(table, ureq, now)
	if err != nil {
		return nil, err
	}

	if err := sheetStore.Save(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func submitError(c *fiber.Ctx, err error) error {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  verr.Error(),
			"entity": verr.Entity,
			"field":  verr.Field,
		})
	}

	var cerr *services.IdentityConflictError
	if errors.As(err, &cerr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  cerr.Error(),
			"entity": cerr.Name,
		})
	}

	if services.IsStale(err) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "The sheet changed while saving; please retry",
		})
	}

	slog.Error("Failed to submit update", "error", err)
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error": "Failed to save the update to the store",
	})
}

// fillBranchFromDirectory resolves the Branch field from the district
// directory when the form left it blank.
func fillBranchFromDirectory(fields map[string]string) map[string]string {
	if fields == nil || fields["Branch"] != "" || fields["District"] == "" {
		return fields
	}
	info, ok := directory.Lookup(fields["District"])
	if !ok {
		return fields
	}
	out := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["Branch"] = info.Branch
	return out
}

func updateMessage(name string, seq int) string {
	return fmt.Sprintf("Update #%d added for %s", seq, name)
}
