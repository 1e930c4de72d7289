package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"student-tracker/models"
)

// Sheet column names. The persisted layout is a header row followed by
// all-string data rows: identity first, then the fixed fields, then the
// update count, then "Update n Text"/"Update n Date" pairs in ascending n.
const (
	NameHeader  = "Student Name"
	CountHeader = "Update Count"

	headerDocID = "header"
)

type sheetHeaderDoc struct {
	ID      string   `bson:"_id"`
	Headers []string `bson:"headers"`
	Version int64    `bson:"version"`
}

type sheetRowDoc struct {
	Idx   int      `bson:"idx"`
	Cells []string `bson:"cells"`
}

// SheetStore round-trips the full table through a MongoDB collection
// that mirrors the shared sheet: one header document carrying the column
// names and a version stamp, one document per data row. The whole sheet
// is overwritten on every save; the version stamp turns the source
// design's silent last-write-wins into an explicit StaleWriteError.
type SheetStore struct {
	collection *mongo.Collection
	fieldNames []string // fixed-field columns for an empty sheet
}

func NewSheetStore(db *mongo.Database, collection string, fieldNames []string) *SheetStore {
	return &SheetStore{
		collection: db.Collection(collection),
		fieldNames: append([]string(nil), fieldNames...),
	}
}

// CreateSheetIndexes creates the row-order index for the sheet collection.
func (s *SheetStore) CreateSheetIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.M{"idx": 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create sheet indexes: %w", err)
	}
	return nil
}

// Load reads the full table. An empty store yields an empty table with
// the configured base header and version 0, never an error; only a
// connection failure or a malformed row is a StoreError.
func (s *SheetStore) Load(ctx context.Context) (*models.Table, error) {
	var header sheetHeaderDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": headerDocID}).Decode(&header)
	if err == mongo.ErrNoDocuments {
		return &models.Table{FieldNames: append([]string(nil), s.fieldNames...)}, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}

	cursor, err := s.collection.Find(ctx,
		bson.M{"_id": bson.M{"$ne": headerDocID}},
		options.Find().SetSort(bson.M{"idx": 1}))
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}
	defer cursor.Close(ctx)

	var docs []sheetRowDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}

	rows := make([][]string, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, d.Cells)
	}

	table, err := UnflattenTable(header.Headers, rows)
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}
	table.Version = header.Version

	slog.Debug("Sheet loaded", "rows", len(table.Records), "version", table.Version)
	return table, nil
}

// Save overwrites the whole sheet with the flattened table. The header
// version is checked and incremented in one filtered update first; if
// the stamp advanced since the table was loaded, nothing is written and
// the caller gets a StaleWriteError to reload and retry against.
func (s *SheetStore) Save(ctx context.Context, t *models.Table) error {
	headers, rows := FlattenTable(t)

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": headerDocID, "version": t.Version},
		bson.M{
			"$set": bson.M{"headers": headers},
			"$inc": bson.M{"version": 1},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		// The upsert insert collides with the existing header doc when
		// the version filter did not match it.
		if mongo.IsDuplicateKeyError(err) {
			return &StaleWriteError{Loaded: t.Version}
		}
		return &StoreError{Op: "save", Err: err}
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return &StaleWriteError{Loaded: t.Version}
	}

	if _, err := s.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$ne": headerDocID}}); err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	if len(rows) > 0 {
		docs := make([]interface{}, 0, len(rows))
		for i, cells := range rows {
			docs = append(docs, sheetRowDoc{Idx: i, Cells: cells})
		}
		if _, err := s.collection.InsertMany(ctx, docs); err != nil {
			return &StoreError{Op: "save", Err: err}
		}
	}

	t.Version++
	slog.Info("Sheet saved", "rows", len(rows), "version", t.Version)
	return nil
}

// FlattenTable lays the in-memory table out as a sheet: a header row and
// all-string data rows, one "Update n Text"/"Update n Date" pair per
// sequence number up to the widest record. The mapping is generated from
// the in-memory update sequences, never the reverse.
func FlattenTable(t *models.Table) (headers []string, rows [][]string) {
	maxUpdates := 0
	for _, r := range t.Records {
		if len(r.Updates) > maxUpdates {
			maxUpdates = len(r.Updates)
		}
	}

	headers = append(headers, NameHeader)
	headers = append(headers, t.FieldNames...)
	headers = append(headers, CountHeader)
	for n := 1; n <= maxUpdates; n++ {
		headers = append(headers, updateTextHeader(n), updateDateHeader(n))
	}

	for _, r := range t.Records {
		cells := make([]string, 0, len(headers))
		cells = append(cells, r.Name)
		for _, field := range t.FieldNames {
			cells = append(cells, r.Fields[field])
		}
		cells = append(cells, strconv.Itoa(r.UpdateCount))
		for n := 1; n <= maxUpdates; n++ {
			if n <= len(r.Updates) {
				u := r.Updates[n-1]
				cells = append(cells, u.Text, u.Date.Format(models.DateLayout))
			} else {
				cells = append(cells, "", "")
			}
		}
		rows = append(rows, cells)
	}
	return headers, rows
}

// UnflattenTable parses a sheet layout back into the in-memory model,
// validating the canonical serialization. Trailing blank update pairs
// are tolerated; any other malformed cell is a RowParseError.
func UnflattenTable(headers []string, rows [][]string) (*models.Table, error) {
	fieldNames, pairs, err := parseHeaders(headers)
	if err != nil {
		return nil, err
	}

	t := &models.Table{FieldNames: fieldNames}
	countIdx := 1 + len(fieldNames)

	for i, cells := range rows {
		if len(cells) > len(headers) {
			return nil, &RowParseError{Row: i, Column: "", Value: "", Reason: fmt.Sprintf("row has %d cells but the sheet has %d columns", len(cells), len(headers))}
		}
		// Short rows happen when a row predates newer update columns.
		padded := make([]string, len(headers))
		copy(padded, cells)

		name := strings.TrimSpace(padded[0])
		if name == "" {
			return nil, &RowParseError{Row: i, Column: NameHeader, Value: padded[0], Reason: "must not be empty"}
		}
		if t.Find(name) != nil {
			return nil, &RowParseError{Row: i, Column: NameHeader, Value: name, Reason: "duplicate record name"}
		}

		rec := &models.Record{
			Name:   name,
			Fields: make(map[string]string, len(fieldNames)),
		}
		for j, field := range fieldNames {
			rec.Fields[field] = padded[1+j]
		}

		for n := 1; n <= pairs; n++ {
			text := padded[countIdx+2*n-1]
			dateCell := padded[countIdx+2*n]
			if text == "" && dateCell == "" {
				// A gap would break sequence density; anything after
				// the first blank pair must be blank too.
				for k := n; k <= pairs; k++ {
					if padded[countIdx+2*k-1] != "" || padded[countIdx+2*k] != "" {
						return nil, &RowParseError{Row: i, Column: updateTextHeader(k), Value: padded[countIdx+2*k-1], Reason: "update sequence has a gap"}
					}
				}
				break
			}
			if text == "" {
				return nil, &RowParseError{Row: i, Column: updateTextHeader(n), Value: "", Reason: "update text missing for a dated update"}
			}
			date, err := time.Parse(models.DateLayout, dateCell)
			if err != nil {
				return nil, &RowParseError{Row: i, Column: updateDateHeader(n), Value: dateCell, Reason: "not a valid YYYY-MM-DD date"}
			}
			rec.Updates = append(rec.Updates, models.Update{Seq: n, Text: text, Date: date})
		}

		// The stored count is advisory: flag it when unparseable, but the
		// update sequence itself is the ground truth.
		if countCell := strings.TrimSpace(padded[countIdx]); countCell != "" {
			if _, err := strconv.Atoi(countCell); err != nil {
				return nil, &RowParseError{Row: i, Column: CountHeader, Value: countCell, Reason: "not an integer"}
			}
		}
		rec.UpdateCount = len(rec.Updates)

		t.Records = append(t.Records, rec)
	}
	return t, nil
}

func parseHeaders(headers []string) (fieldNames []string, pairs int, err error) {
	if len(headers) == 0 || headers[0] != NameHeader {
		return nil, 0, fmt.Errorf("sheet header must start with %q", NameHeader)
	}

	countIdx := -1
	for i, h := range headers[1:] {
		if h == CountHeader {
			countIdx = 1 + i
			break
		}
		fieldNames = append(fieldNames, h)
	}
	if countIdx == -1 {
		return nil, 0, fmt.Errorf("sheet header is missing the %q column", CountHeader)
	}

	rest := headers[countIdx+1:]
	if len(rest)%2 != 0 {
		return nil, 0, fmt.Errorf("sheet header has an unpaired update column")
	}
	pairs = len(rest) / 2
	for n := 1; n <= pairs; n++ {
		wantText, wantDate := updateTextHeader(n), updateDateHeader(n)
		if rest[2*n-2] != wantText || rest[2*n-1] != wantDate {
			return nil, 0, fmt.Errorf("sheet header pair %d is %q/%q, want %q/%q",
				n, rest[2*n-2], rest[2*n-1], wantText, wantDate)
		}
	}
	return fieldNames, pairs, nil
}

func updateTextHeader(n int) string { return fmt.Sprintf("Update %d Text", n) }
func updateDateHeader(n int) string { return fmt.Sprintf("Update %d Date", n) }
