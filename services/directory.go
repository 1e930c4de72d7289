package services

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// BranchInfo is one branch directory entry.
type BranchInfo struct {
	Branch       string `json:"branch"`
	BranchHead   string `json:"branch_head"`
	ContactEmail string `json:"contact_email"`
}

// Directory maps districts to their branch contacts. It is loaded once
// per process and treated as an immutable reference table.
type Directory struct {
	byDistrict map[string]BranchInfo
}

func NewDirectory(entries map[string]BranchInfo) *Directory {
	byDistrict := make(map[string]BranchInfo, len(entries))
	for district, info := range entries {
		byDistrict[strings.ToLower(strings.TrimSpace(district))] = info
	}
	return &Directory{byDistrict: byDistrict}
}

// LoadDirectory reads the branch directory from a CSV file with columns
// district, branch, branch head, contact email. A header row is skipped
// when present.
func LoadDirectory(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open branch directory: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 4
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse branch directory: %w", err)
	}

	entries := make(map[string]BranchInfo, len(records))
	for i, rec := range records {
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "district") {
			continue
		}
		district := strings.TrimSpace(rec[0])
		if district == "" {
			continue
		}
		entries[district] = BranchInfo{
			Branch:       strings.TrimSpace(rec[1]),
			BranchHead:   strings.TrimSpace(rec[2]),
			ContactEmail: strings.TrimSpace(rec[3]),
		}
	}

	slog.Info("Branch directory loaded", "path", path, "districts", len(entries))
	return NewDirectory(entries), nil
}

// Lookup returns the branch contact for a district. District matching is
// case-insensitive.
func (d *Directory) Lookup(district string) (BranchInfo, bool) {
	info, ok := d.byDistrict[strings.ToLower(strings.TrimSpace(district))]
	return info, ok
}
