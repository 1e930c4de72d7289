package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTableClone verifies Clone is a deep copy: mutating the clone's
// records, fields, and updates never leaks back into the original.
func TestTableClone(t *testing.T) {
	last := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	original := &Table{
		FieldNames: []string{"Phone Number"},
		Records: []*Record{
			{
				Name:   "Asha Rao",
				Fields: map[string]string{"Phone Number": "555-0101"},
				Updates: []Update{
					{Seq: 1, Text: "enrolled", Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
				},
				UpdateCount: 1,
				LastUpdate:  &last,
			},
		},
		Version: 3,
	}

	clone := original.Clone()
	require.Len(t, clone.Records, 1)
	assert.Equal(t, original.Version, clone.Version)

	clone.Records[0].Name = "changed"
	clone.Records[0].Fields["Phone Number"] = "000"
	clone.Records[0].Updates[0].Text = "changed"
	*clone.Records[0].LastUpdate = time.Time{}
	clone.Records = append(clone.Records, &Record{Name: "extra"})
	clone.FieldNames[0] = "changed"

	assert.Equal(t, "Asha Rao", original.Records[0].Name)
	assert.Equal(t, "555-0101", original.Records[0].Fields["Phone Number"])
	assert.Equal(t, "enrolled", original.Records[0].Updates[0].Text)
	assert.Equal(t, last, *original.Records[0].LastUpdate)
	assert.Len(t, original.Records, 1)
	assert.Equal(t, "Phone Number", original.FieldNames[0])
}

// TestTableFind verifies exact-match lookup.
func TestTableFind(t *testing.T) {
	table := &Table{Records: []*Record{{Name: "Asha Rao"}}}

	assert.NotNil(t, table.Find("Asha Rao"))
	assert.Nil(t, table.Find("asha rao"))
	assert.Nil(t, table.Find("missing"))
}
