package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"student-tracker/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testEngine() *Engine {
	return NewEngine([]string{"Phone Number"}, 14)
}

func emptyTable() *models.Table {
	return &models.Table{FieldNames: []string{"Phone Number", "District", "Branch"}}
}

// TestAppendUpdate_FirstUpdateCreatesRecord verifies the empty-table
// scenario: a first update for a new name creates the record with
// count 1 and the note stored as update 1.
func TestAppendUpdate_FirstUpdateCreatesRecord(t *testing.T) {
	e := testEngine()

	table, err := e.AppendUpdate(emptyTable(), UpdateRequest{
		Name:   "A",
		Fields: map[string]string{"Phone Number": "1"},
		Note:   "first note",
		Date:   date(2025, 1, 1),
	}, date(2025, 1, 1))
	require.NoError(t, err)

	rec := table.Find("A")
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.UpdateCount)
	require.Len(t, rec.Updates, 1)
	assert.Equal(t, 1, rec.Updates[0].Seq)
	assert.Equal(t, "first note", rec.Updates[0].Text)
	assert.Equal(t, date(2025, 1, 1), rec.Updates[0].Date)
	assert.Equal(t, "1", rec.Fields["Phone Number"])
}

// TestAppendUpdate_SequencesAreDense verifies that sequence numbers are
// exactly 1, 2, 3, ... per record with no gaps or reuse, regardless of
// how different records' updates interleave.
func TestAppendUpdate_SequencesAreDense(t *testing.T) {
	e := testEngine()
	table := emptyTable()

	steps := []struct {
		name string
		note string
	}{
		{"A", "a1"}, {"B", "b1"}, {"A", "a2"}, {"B", "b2"}, {"A", "a3"},
	}
	for i, s := range steps {
		var err error
		table, err = e.AppendUpdate(table, UpdateRequest{
			Name:   s.name,
			Fields: map[string]string{"Phone Number": "x"},
			Note:   s.note,
			Date:   date(2025, 1, 1+i),
		}, date(2025, 1, 10))
		require.NoError(t, err, "step %d", i)
	}

	for _, rec := range table.Records {
		assert.Equal(t, len(rec.Updates), rec.UpdateCount, "count invariant for %s", rec.Name)
		for i, u := range rec.Updates {
			assert.Equal(t, i+1, u.Seq, "dense sequence for %s", rec.Name)
		}
	}
	assert.Equal(t, 3, table.Find("A").UpdateCount)
	assert.Equal(t, 2, table.Find("B").UpdateCount)
}

// TestAppendUpdate_EmptyNote verifies that a blank note is rejected
// with a ValidationError naming the field and the table is unchanged.
func TestAppendUpdate_EmptyNote(t *testing.T) {
	e := testEngine()
	table := tableWithRecord("A", date(2025, 1, 1))
	before := len(table.Find("A").Updates)

	_, err := e.AppendUpdate(table, UpdateRequest{
		Name: "A",
		Note: "   ",
		Date: date(2025, 1, 2),
	}, date(2025, 1, 2))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Update", verr.Field)
	assert.Equal(t, "A", verr.Entity)
	assert.Len(t, table.Find("A").Updates, before, "table must be unchanged on error")
}

// TestAppendUpdate_BlankName verifies that a whitespace-only name is a
// ValidationError.
func TestAppendUpdate_BlankName(t *testing.T) {
	e := testEngine()

	_, err := e.AppendUpdate(emptyTable(), UpdateRequest{
		Name: "  ",
		Note: "note",
		Date: date(2025, 1, 1),
	}, date(2025, 1, 1))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Student Name", verr.Field)
}

// TestAppendUpdate_ZeroDate verifies the engine never substitutes a
// date for a missing one: a zero date fails validation.
func TestAppendUpdate_ZeroDate(t *testing.T) {
	e := testEngine()

	_, err := e.AppendUpdate(emptyTable(), UpdateRequest{
		Name:   "A",
		Fields: map[string]string{"Phone Number": "1"},
		Note:   "note",
	}, date(2025, 1, 1))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Date", verr.Field)
}

// TestAppendUpdate_MissingRequiredField verifies that a first update
// without a required fixed field is rejected, naming the field.
func TestAppendUpdate_MissingRequiredField(t *testing.T) {
	e := testEngine()
	table := emptyTable()

	_, err := e.AppendUpdate(table, UpdateRequest{
		Name: "A",
		Note: "note",
		Date: date(2025, 1, 1),
	}, date(2025, 1, 1))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Phone Number", verr.Field)
	assert.Empty(t, table.Records, "table must be unchanged on error")
}

// TestAppendUpdate_InputTableUntouched verifies the atomicity contract:
// a successful append returns a new table and leaves the caller's copy
// exactly as it was.
func TestAppendUpdate_InputTableUntouched(t *testing.T) {
	e := testEngine()
	table := tableWithRecord("A", date(2025, 1, 1))

	updated, err := e.AppendUpdate(table, UpdateRequest{
		Name: "A",
		Note: "second",
		Date: date(2025, 1, 2),
	}, date(2025, 1, 2))
	require.NoError(t, err)

	assert.Equal(t, 1, table.Find("A").UpdateCount, "input table must not change")
	assert.Equal(t, 2, updated.Find("A").UpdateCount)
}

// TestAppendUpdate_NewRecordConflict verifies the race guard: a
// submission marked as a first update for a name that already exists is
// rejected with an IdentityConflictError instead of silently merging.
func TestAppendUpdate_NewRecordConflict(t *testing.T) {
	e := testEngine()
	table := tableWithRecord("A", date(2025, 1, 1))

	_, err := e.AppendUpdate(table, UpdateRequest{
		Name:      "A",
		Fields:    map[string]string{"Phone Number": "2"},
		Note:      "racing first update",
		Date:      date(2025, 1, 2),
		NewRecord: true,
	}, date(2025, 1, 2))

	var cerr *IdentityConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "A", cerr.Name)
	assert.Equal(t, 1, table.Find("A").UpdateCount)
}

// TestAppendUpdate_CaseVariantCreatesDistinctRecord verifies the
// documented identity policy: names differing only in case are distinct
// records, never merged.
func TestAppendUpdate_CaseVariantCreatesDistinctRecord(t *testing.T) {
	e := testEngine()
	table := tableWithRecord("Asha Rao", date(2025, 1, 1))

	updated, err := e.AppendUpdate(table, UpdateRequest{
		Name:      "asha rao",
		Fields:    map[string]string{"Phone Number": "9"},
		Note:      "first note",
		Date:      date(2025, 1, 2),
		NewRecord: true,
	}, date(2025, 1, 2))
	require.NoError(t, err)

	assert.Len(t, updated.Records, 2)
	assert.Equal(t, 1, updated.Find("Asha Rao").UpdateCount)
	assert.Equal(t, 1, updated.Find("asha rao").UpdateCount)
}

// TestResolveIdentity verifies exact-match resolution: a matching name
// returns the record, a case variant does not, and a blank name is a
// ValidationError.
func TestResolveIdentity(t *testing.T) {
	table := tableWithRecord("Asha Rao", date(2025, 1, 1))

	rec, err := ResolveIdentity(table, "Asha Rao")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Asha Rao", rec.Name)

	rec, err = ResolveIdentity(table, "asha rao")
	require.NoError(t, err)
	assert.Nil(t, rec, "identity decisions are case-sensitive")

	_, err = ResolveIdentity(table, "   ")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

// TestSuggestions verifies case-insensitive substring matching in table
// insertion order.
func TestSuggestions(t *testing.T) {
	table := emptyTable()
	for _, name := range []string{"Asha Rao", "Ravi Kumar", "Prasha Nair"} {
		table.Records = append(table.Records, &models.Record{Name: name, Fields: map[string]string{}})
	}

	assert.Equal(t, []string{"Asha Rao", "Prasha Nair"}, Suggestions(table, "sha"))
	assert.Equal(t, []string{"Asha Rao", "Prasha Nair"}, Suggestions(table, "SHA"))
	assert.Equal(t, []string{"Ravi Kumar"}, Suggestions(table, "ravi"))
	assert.Nil(t, Suggestions(table, "  "))
	assert.Nil(t, Suggestions(table, "zzz"))
}

// TestComputeInactivity_Scenario verifies the reference scenario: one
// update on 2025-01-01 observed on 2025-01-20 with a 14-day threshold
// means 19 days since and an inactive flag.
func TestComputeInactivity_Scenario(t *testing.T) {
	table := tableWithRecord("A", date(2025, 1, 1))

	ComputeInactivity(table, date(2025, 1, 20), 14)

	rec := table.Find("A")
	assert.Equal(t, 19, rec.DaysSinceUpdate)
	assert.True(t, rec.Inactive)
}

// TestComputeInactivity_Idempotent verifies that recomputing with the
// same reference instant changes nothing.
func TestComputeInactivity_Idempotent(t *testing.T) {
	table := tableWithRecord("A", date(2025, 1, 1))
	ref := date(2025, 1, 20)

	ComputeInactivity(table, ref, 14)
	first := *table.Find("A")
	firstLast := *first.LastUpdate

	ComputeInactivity(table, ref, 14)
	second := table.Find("A")

	assert.Equal(t, first.DaysSinceUpdate, second.DaysSinceUpdate)
	assert.Equal(t, first.Inactive, second.Inactive)
	assert.Equal(t, firstLast, *second.LastUpdate)
}

// TestComputeInactivity_MonotonicInTime verifies that advancing the
// reference instant never clears an inactive flag.
func TestComputeInactivity_MonotonicInTime(t *testing.T) {
	table := tableWithRecord("A", date(2025, 1, 1))

	wasInactive := false
	for d := 0; d < 40; d++ {
		ComputeInactivity(table, date(2025, 1, 1).AddDate(0, 0, d), 14)
		inactive := table.Find("A").Inactive
		if wasInactive {
			assert.True(t, inactive, "inactive flag cleared at day %d without a new update", d)
		}
		wasInactive = wasInactive || inactive
	}
	assert.True(t, wasInactive)
}

// TestComputeInactivity_NoDatedUpdates verifies that a record with no
// parseable update date is excluded from flagging, never falsely marked.
func TestComputeInactivity_NoDatedUpdates(t *testing.T) {
	table := emptyTable()
	table.Records = append(table.Records, &models.Record{
		Name:        "A",
		Fields:      map[string]string{},
		Updates:     []models.Update{{Seq: 1, Text: "undated"}},
		UpdateCount: 1,
	})

	ComputeInactivity(table, date(2025, 6, 1), 14)

	rec := table.Find("A")
	assert.Nil(t, rec.LastUpdate)
	assert.False(t, rec.Inactive)
	assert.Zero(t, rec.DaysSinceUpdate)
}

// TestComputeInactivity_MaxOverUpdateDates verifies that the last
// update date is the maximum over all updates, not the latest-appended.
func TestComputeInactivity_MaxOverUpdateDates(t *testing.T) {
	table := emptyTable()
	table.Records = append(table.Records, &models.Record{
		Name:   "A",
		Fields: map[string]string{},
		Updates: []models.Update{
			{Seq: 1, Text: "one", Date: date(2025, 1, 10)},
			{Seq: 2, Text: "two", Date: date(2025, 1, 5)}, // back-dated
		},
		UpdateCount: 2,
	})

	ComputeInactivity(table, date(2025, 1, 20), 14)

	rec := table.Find("A")
	require.NotNil(t, rec.LastUpdate)
	assert.Equal(t, date(2025, 1, 10), *rec.LastUpdate)
	assert.Equal(t, 10, rec.DaysSinceUpdate)
	assert.False(t, rec.Inactive)
}

// TestComputeInactivity_ThresholdBoundary verifies that exactly the
// threshold number of days is still active; only exceeding it flags.
func TestComputeInactivity_ThresholdBoundary(t *testing.T) {
	table := tableWithRecord("A", date(2025, 1, 1))

	ComputeInactivity(table, date(2025, 1, 15), 14)
	assert.False(t, table.Find("A").Inactive, "14 days is at the threshold, not past it")

	ComputeInactivity(table, date(2025, 1, 16), 14)
	assert.True(t, table.Find("A").Inactive)
}

// TestAlerts_SortedByDaysDescending verifies alert ordering: most stale
// first, ties in table insertion order.
func TestAlerts_SortedByDaysDescending(t *testing.T) {
	table := emptyTable()
	addRecord(table, "Old", date(2025, 1, 1))
	addRecord(table, "Older", date(2024, 12, 1))
	addRecord(table, "Fresh", date(2025, 1, 28))
	addRecord(table, "AlsoOld", date(2025, 1, 1))

	alerts := Alerts(table, date(2025, 1, 30), 14)

	require.Len(t, alerts, 3)
	assert.Equal(t, "Older", alerts[0].Name)
	assert.Equal(t, 60, alerts[0].DaysSinceUpdate)
	assert.Equal(t, "Old", alerts[1].Name, "ties keep insertion order")
	assert.Equal(t, "AlsoOld", alerts[2].Name)
	assert.Equal(t, 29, alerts[1].DaysSinceUpdate)
}

// TestAlerts_EmptyTable verifies no alerts for an empty table.
func TestAlerts_EmptyTable(t *testing.T) {
	assert.Empty(t, Alerts(emptyTable(), date(2025, 1, 1), 14))
}

func tableWithRecord(name string, updateDate time.Time) *models.Table {
	table := emptyTable()
	addRecord(table, name, updateDate)
	return table
}

func addRecord(t *models.Table, name string, updateDate time.Time) {
	t.Records = append(t.Records, &models.Record{
		Name:        name,
		Fields:      map[string]string{"Phone Number": "1"},
		Updates:     []models.Update{{Seq: 1, Text: "note", Date: updateDate}},
		UpdateCount: 1,
	})
}
