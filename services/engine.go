package services

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"student-tracker/models"
)

// UpdateRequest is one submitted form entry.
type UpdateRequest struct {
	Name   string
	Fields map[string]string // fixed fields; consulted only for first updates
	Note   string
	Date   time.Time

	// NewRecord marks the submission as a first update for a name the
	// caller resolved as not yet tracked. If the name exists anyway
	// (two writers raced), the append is rejected with an
	// IdentityConflictError instead of silently merging.
	NewRecord bool
}

// Engine applies form submissions to an in-memory table. It performs no
// I/O: hosts load the table from the store, call the engine, and persist
// the result.
type Engine struct {
	RequiredFields []string
	ThresholdDays  int
}

func NewEngine(requiredFields []string, thresholdDays int) *Engine {
	return &Engine{
		RequiredFields: requiredFields,
		ThresholdDays:  thresholdDays,
	}
}

// ResolveIdentity looks a candidate name up against existing records.
// A nil record with a nil error means the name is new and the caller
// must collect the full first-update form. Identity is decided by exact
// match only; near-matches are surfaced through Suggestions instead.
func ResolveIdentity(t *models.Table, candidateName string) (*models.Record, error) {
	name := strings.TrimSpace(candidateName)
	if name == "" {
		return nil, &ValidationError{Field: "Student Name", Reason: "must not be empty"}
	}
	return t.Find(name), nil
}

// Suggestions returns existing record names containing the partial name,
// compared case-insensitively, in table insertion order. Used only for
// UI auto-suggest, never for identity decisions.
func Suggestions(t *models.Table, partialName string) []string {
	partial := strings.ToLower(strings.TrimSpace(partialName))
	if partial == "" {
		return nil
	}
	var names []string
	for _, r := range t.Records {
		if strings.Contains(strings.ToLower(r.Name), partial) {
			names = append(names, r.Name)
		}
	}
	return names
}

// AppendUpdate validates the request, appends the update to a copy of
// the table, and recomputes the derived inactivity columns for every
// row using ref as the observation instant. The input table is never
// modified: on success the updated copy is returned, on error the
// caller's table is exactly as it was.
func (e *Engine) AppendUpdate(t *models.Table, req UpdateRequest, ref time.Time) (*models.Table, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &ValidationError{Field: "Student Name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.Note) == "" {
		return nil, &ValidationError{Entity: name, Field: "Update", Reason: "must not be empty"}
	}
	// The caller decides what "today" means; a missing date is never
	// silently substituted here.
	if req.Date.IsZero() {
		return nil, &ValidationError{Entity: name, Field: "Date", Reason: "a valid date is required"}
	}

	clone := t.Clone()
	rec := clone.Find(name)

	switch {
	case rec == nil:
		for _, field := range e.RequiredFields {
			if strings.TrimSpace(req.Fields[field]) == "" {
				return nil, &ValidationError{Entity: name, Field: field, Reason: "required for a new record"}
			}
		}
		rec = &models.Record{
			Name:   name,
			Fields: make(map[string]string, len(req.Fields)),
		}
		for k, v := range req.Fields {
			rec.Fields[k] = v
		}
		clone.Records = append(clone.Records, rec)
	case req.NewRecord:
		return nil, &IdentityConflictError{Name: name}
	}

	rec.Updates = append(rec.Updates, models.Update{
		Seq:  rec.UpdateCount + 1,
		Text: req.Note,
		Date: req.Date,
	})
	rec.UpdateCount = len(rec.Updates)

	ComputeInactivity(clone, ref, e.ThresholdDays)

	slog.Info("Update appended",
		"entity", name,
		"seq", rec.UpdateCount,
		"date", req.Date.Format(models.DateLayout))

	return clone, nil
}

// ComputeInactivity recomputes the derived columns for every row: the
// last update date is the maximum over all update dates, days since is
// the whole-day difference to ref, and inactive means that difference
// exceeds the threshold. Rows with no dated update are never flagged.
// Idempotent for a fixed ref; only derived fields are touched.
func ComputeInactivity(t *models.Table, ref time.Time, thresholdDays int) *models.Table {
	for _, r := range t.Records {
		var last time.Time
		for _, u := range r.Updates {
			if !u.Date.IsZero() && u.Date.After(last) {
				last = u.Date
			}
		}
		if last.IsZero() {
			r.LastUpdate = nil
			r.DaysSinceUpdate = 0
			r.Inactive = false
			continue
		}
		lastCopy := last
		r.LastUpdate = &lastCopy
		r.DaysSinceUpdate = int(math.Floor(ref.Sub(last).Hours() / 24))
		r.Inactive = r.DaysSinceUpdate > thresholdDays
	}
	return t
}

// Alerts recomputes inactivity against ref and returns the flagged
// records sorted by days since last update, most stale first. Ordering
// is stable for equal day counts.
func Alerts(t *models.Table, ref time.Time, thresholdDays int) []models.Alert {
	ComputeInactivity(t, ref, thresholdDays)

	var alerts []models.Alert
	for _, r := range t.Records {
		if r.Inactive {
			alerts = append(alerts, models.Alert{
				Name:            r.Name,
				DaysSinceUpdate: r.DaysSinceUpdate,
			})
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].DaysSinceUpdate > alerts[j].DaysSinceUpdate
	})
	return alerts
}
