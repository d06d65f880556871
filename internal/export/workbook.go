// Package export converts the inventory to and from Excel workbooks. Each
// record kind gets its own sheet and a Summary sheet lists the counts.
package export

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"seedbank/internal/models"
)

// SummarySheet is the name of the sheet holding per-kind counts.
const SummarySheet = "Summary"

// ErrNoRecordSheets is returned when a workbook has no sheet named after a
// record kind.
var ErrNoRecordSheets = errors.New("no_record_sheets")

var sheetNames = map[models.Kind]string{
	models.KindAccession:    "Accessions",
	models.KindBatch:        "Batches",
	models.KindPlantingSite: "Planting Sites",
	models.KindObservation:  "Observations",
}

// SheetName returns the worksheet title used for kind.
func SheetName(kind models.Kind) string {
	if name, ok := sheetNames[kind]; ok {
		return name
	}
	return string(kind)
}

func kindForSheet(sheet string) (models.Kind, bool) {
	for kind, name := range sheetNames {
		if strings.EqualFold(strings.TrimSpace(sheet), name) {
			return kind, true
		}
	}
	kind, err := models.ParseKind(sheet)
	return kind, err == nil
}

var fixedHeaders = []string{"ID", "Name", "Description", "Tags", "Quantity", "Created At", "Updated By", "Updated At", "Links"}

// attributePrefix marks attribute columns so that an attribute named like a
// fixed column ("Common Name") is not read back into that column.
const attributePrefix = "attr:"

// Export renders catalog as an XLSX workbook.
func Export(catalog models.Catalog) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SummarySheet); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(SummarySheet, "A1", &[]any{"Kind", "Records"}); err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(SummarySheet, 1, 1, bold); err != nil {
		return nil, err
	}

	for i, kind := range models.AllKinds {
		records := sortedRecords(catalog[kind])
		summary, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SummarySheet, summary, &[]any{SheetName(kind), len(records)}); err != nil {
			return nil, err
		}
		if err := writeKindSheet(f, kind, records, bold); err != nil {
			return nil, fmt.Errorf("write %s sheet: %w", kind, err)
		}
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 18); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeKindSheet(f *excelize.File, kind models.Kind, records []models.Record, headerStyle int) error {
	sheet := SheetName(kind)
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	attributes := attributeKeys(records)
	headers := append([]any{}, toAny(fixedHeaders)...)
	if kind == models.KindPlantingSite {
		headers = append(headers, "Boundary")
	}
	for _, key := range attributes {
		headers = append(headers, attributePrefix+key)
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, r := range records {
		row := []any{
			r.ID,
			r.Name,
			r.Description,
			strings.Join(r.Tags, ", "),
			nil,
			formatTime(r.CreatedAt),
			r.UpdatedBy,
			formatTime(r.UpdatedAt),
			formatLinks(r.Links),
		}
		if r.Quantity != nil {
			row[4] = *r.Quantity
		}
		if kind == models.KindPlantingSite {
			row = append(row, formatBoundary(r.Boundary))
		}
		for _, key := range attributes {
			row = append(row, r.Attributes[key])
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", "B", 24)
}

// Import reads every sheet named after a record kind. Sheets laid out by
// Export are matched on exact header names; other sheets are matched by
// header keyword. Unrecognised headers become attributes. Kinds without a
// sheet are absent from the result.
func Import(r io.Reader) (models.Catalog, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	catalog := make(models.Catalog)
	for _, sheet := range f.GetSheetList() {
		kind, ok := kindForSheet(sheet)
		if !ok {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		records, err := parseRows(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		catalog[kind] = records
	}
	if len(catalog) == 0 {
		return nil, ErrNoRecordSheets
	}
	return catalog, nil
}

type column int

const (
	colAttribute column = iota
	colID
	colName
	colDescription
	colTags
	colQuantity
	colCreatedAt
	colBoundary
	colLinks
	colIgnored
)

var exactHeaders = map[string]column{
	"id":          colID,
	"name":        colName,
	"description": colDescription,
	"tags":        colTags,
	"quantity":    colQuantity,
	"created at":  colCreatedAt,
	"updated by":  colIgnored,
	"updated at":  colIgnored,
	"boundary":    colBoundary,
	"links":       colLinks,
}

// exportLayout reports whether headers start the way Export writes them.
func exportLayout(headers []string) bool {
	return len(headers) >= 2 &&
		strings.EqualFold(strings.TrimSpace(headers[0]), "id") &&
		strings.EqualFold(strings.TrimSpace(headers[1]), "name")
}

func classifyHeader(header string, exact bool) column {
	h := strings.ToLower(strings.TrimSpace(header))
	if h == "" {
		return colIgnored
	}
	if strings.HasPrefix(h, attributePrefix) {
		return colAttribute
	}
	if col, ok := exactHeaders[h]; ok {
		return col
	}
	if exact {
		return colAttribute
	}
	switch {
	case strings.HasSuffix(h, " name"):
		return colName
	case strings.Contains(h, "description") || h == "notes":
		return colDescription
	case h == "tag":
		return colTags
	case strings.Contains(h, "quantity") || h == "qty" || h == "count":
		return colQuantity
	case strings.Contains(h, "created"):
		return colCreatedAt
	case strings.Contains(h, "boundary"):
		return colBoundary
	case strings.Contains(h, "updated"):
		return colIgnored
	default:
		return colAttribute
	}
}

func attributeKey(header string) string {
	key := strings.TrimSpace(header)
	if strings.HasPrefix(strings.ToLower(key), attributePrefix) {
		key = strings.TrimSpace(key[len(attributePrefix):])
	}
	return key
}

func parseRows(kind models.Kind, rows [][]string) ([]models.Record, error) {
	if len(rows) == 0 {
		return []models.Record{}, nil
	}
	headers := rows[0]
	exact := exportLayout(headers)
	columns := make([]column, len(headers))
	for i, h := range headers {
		columns[i] = classifyHeader(h, exact)
	}

	records := make([]models.Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		record := models.Record{Kind: kind}
		for i, value := range row {
			if i >= len(columns) {
				break
			}
			value = strings.TrimSpace(value)
			switch columns[i] {
			case colID:
				record.ID = value
			case colName:
				record.Name = value
			case colDescription:
				record.Description = value
			case colTags:
				record.Tags = splitTags(value)
			case colQuantity:
				if value == "" {
					continue
				}
				qty, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d: quantity %q: %w", n+2, value, models.ErrInvalidRecord)
				}
				record.Quantity = &qty
			case colCreatedAt:
				if ts, err := time.Parse(time.RFC3339, value); err == nil {
					record.CreatedAt = ts
				}
			case colBoundary:
				boundary, err := parseBoundary(value)
				if err != nil {
					return nil, fmt.Errorf("row %d: %w", n+2, err)
				}
				record.Boundary = boundary
			case colLinks:
				links, err := parseLinks(value)
				if err != nil {
					return nil, fmt.Errorf("row %d: %w", n+2, err)
				}
				record.Links = links
			case colAttribute:
				if value == "" {
					continue
				}
				if record.Attributes == nil {
					record.Attributes = make(map[string]string)
				}
				record.Attributes[attributeKey(headers[i])] = value
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func splitTags(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' })
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// formatBoundary writes vertices as "lng lat; lng lat; ...".
func formatBoundary(b *models.Boundary) string {
	if b == nil {
		return ""
	}
	parts := make([]string, len(b.Points))
	for i, p := range b.Points {
		parts[i] = strconv.FormatFloat(p.Lng, 'f', -1, 64) + " " + strconv.FormatFloat(p.Lat, 'f', -1, 64)
	}
	return strings.Join(parts, "; ")
}

func parseBoundary(value string) (*models.Boundary, error) {
	if value == "" {
		return nil, nil
	}
	var points []models.Point
	for _, pair := range strings.Split(value, ";") {
		fields := strings.Fields(pair)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("boundary vertex %q: %w", pair, models.ErrInvalidRecord)
		}
		lng, errLng := strconv.ParseFloat(fields[0], 64)
		lat, errLat := strconv.ParseFloat(fields[1], 64)
		if errLng != nil || errLat != nil {
			return nil, fmt.Errorf("boundary vertex %q: %w", pair, models.ErrInvalidRecord)
		}
		points = append(points, models.Point{Lng: lng, Lat: lat})
	}
	if len(points) == 0 {
		return nil, nil
	}
	return &models.Boundary{Points: points}, nil
}

// formatLinks writes links as "kind: id, id; kind: id" in AllKinds order.
func formatLinks(links map[models.Kind][]string) string {
	var parts []string
	for _, kind := range models.AllKinds {
		if ids := links[kind]; len(ids) > 0 {
			parts = append(parts, string(kind)+": "+strings.Join(ids, ", "))
		}
	}
	return strings.Join(parts, "; ")
}

func parseLinks(value string) (map[models.Kind][]string, error) {
	if value == "" {
		return nil, nil
	}
	links := make(map[models.Kind][]string)
	for _, group := range strings.Split(value, ";") {
		if strings.TrimSpace(group) == "" {
			continue
		}
		rawKind, rawIDs, ok := strings.Cut(group, ":")
		if !ok {
			return nil, fmt.Errorf("links %q: %w", group, models.ErrInvalidRecord)
		}
		kind, err := models.ParseKind(rawKind)
		if err != nil {
			return nil, fmt.Errorf("links kind %q: %w", strings.TrimSpace(rawKind), models.ErrInvalidRecord)
		}
		for _, id := range strings.Split(rawIDs, ",") {
			if id = strings.TrimSpace(id); id != "" {
				links[kind] = append(links[kind], id)
			}
		}
	}
	if len(links) == 0 {
		return nil, nil
	}
	return links, nil
}

func sortedRecords(records []models.Record) []models.Record {
	out := append([]models.Record(nil), records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func attributeKeys(records []models.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for key := range r.Attributes {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
