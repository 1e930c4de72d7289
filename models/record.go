package models

import "time"

// DateLayout is the canonical serialization for update dates on the store.
const DateLayout = "2006-01-02"

// Update is one timestamped free-text note appended to a record.
// Updates are immutable once appended. Seq is 1-based and dense
// within a record: appending always assigns count+1.
type Update struct {
	Seq  int       `bson:"seq" json:"seq"`
	Text string    `bson:"text" json:"text"`
	Date time.Time `bson:"date" json:"date"`
}

// Record is one tracked student/lead row in the shared table.
type Record struct {
	Name    string            `json:"name"`
	Fields  map[string]string `json:"fields"` // fixed columns: phone, district, branch
	Updates []Update          `json:"updates"`

	// UpdateCount always equals len(Updates). It is recomputed on every
	// append and on load, never edited independently.
	UpdateCount int `json:"update_count"`

	// Derived at observation time by ComputeInactivity. Never persisted
	// as ground truth; recomputed on every load and mutation.
	LastUpdate      *time.Time `json:"last_update,omitempty"`
	DaysSinceUpdate int        `json:"days_since_update"`
	Inactive        bool       `json:"inactive"`
}

// Table is the full in-memory copy of the shared sheet. Row order is
// insertion order.
type Table struct {
	FieldNames []string  `json:"field_names"`
	Records    []*Record `json:"records"`

	// Version is the store's optimistic-concurrency stamp read at load
	// time and checked at save time.
	Version int64 `json:"version"`
}

// Alert flags a record with no update within the inactivity threshold.
type Alert struct {
	Name            string `json:"name"`
	DaysSinceUpdate int    `json:"days_since_update"`
}

// Find returns the record whose name exactly matches, or nil. Identity
// is case-sensitive; case-insensitive matching is for suggestions only.
func (t *Table) Find(name string) *Record {
	for _, r := range t.Records {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Clone deep-copies the table so a mutation can be applied and discarded
// without touching the original.
func (t *Table) Clone() *Table {
	out := &Table{
		FieldNames: append([]string(nil), t.FieldNames...),
		Records:    make([]*Record, 0, len(t.Records)),
		Version:    t.Version,
	}
	for _, r := range t.Records {
		out.Records = append(out.Records, r.clone())
	}
	return out
}

func (r *Record) clone() *Record {
	c := &Record{
		Name:            r.Name,
		Fields:          make(map[string]string, len(r.Fields)),
		Updates:         append([]Update(nil), r.Updates...),
		UpdateCount:     r.UpdateCount,
		DaysSinceUpdate: r.DaysSinceUpdate,
		Inactive:        r.Inactive,
	}
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	if r.LastUpdate != nil {
		last := *r.LastUpdate
		c.LastUpdate = &last
	}
	return c
}
