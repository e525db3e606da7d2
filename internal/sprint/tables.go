package sprint

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// TableKind identifies which tracker export a CSV holds.
type TableKind string

const (
	KindEntities TableKind = "entities"
	KindHistory  TableKind = "history"
	KindSprints  TableKind = "sprints"
	KindUnknown  TableKind = "unknown"
)

// UntilLayout is the date format accepted for the "until" cut-off.
const UntilLayout = "2006-01-02"

// historyDateLayouts are tried in order; the first is the tracker's own format.
var historyDateLayouts = []string{
	"1/2/06 15:04",
	"1/2/2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04",
	"2006-01-02",
}

// IsNull reports whether a CSV field counts as missing.
func IsNull(field string) bool {
	s := strings.TrimSpace(field)
	return s == "" || s == "<empty>"
}

// Entity is one task row of the entities export.
type Entity struct {
	ID         int64
	Status     *string
	Resolution *string
	Assignee   *string
	Estimation *float64
	Spent      *float64
}

// HistoryRow is one change record of the history export.
type HistoryRow struct {
	EntityID int64
	Date     *time.Time
	Version  *int64
}

// Sprint is one row of the sprints export with its parsed task IDs.
type Sprint struct {
	Name      string
	EntityIDs []int64
}

// Dataset collects the three exports of one folder.
type Dataset struct {
	Entities []Entity
	History  []HistoryRow
	Sprints  []Sprint
	Warnings []string
}

// DetectKind identifies an export by the columns in its header.
func DetectKind(header []string) TableKind {
	has := make(map[string]bool, len(header))
	for _, h := range header {
		has[h] = true
	}
	switch {
	case has["sprint_name"] && has["entity_ids"]:
		return KindSprints
	case has["entity_id"] && has["history_date"]:
		return KindHistory
	case has["entity_id"] && has["status"] && has["estimation"]:
		return KindEntities
	default:
		return KindUnknown
	}
}

// ParseEntityIDs parses a set or list literal such as "{1, 2}" or "[1,2]".
// Duplicates are dropped, first occurrence first.
func ParseEntityIDs(literal string) ([]int64, error) {
	s := strings.TrimSpace(literal)
	if IsNull(s) || s == "set()" {
		return nil, nil
	}
	if n := len(s); n >= 2 && ((s[0] == '{' && s[n-1] == '}') || (s[0] == '[' && s[n-1] == ']')) {
		s = s[1 : n-1]
	}

	var ids []int64
	seen := make(map[int64]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := parseID(part)
		if err != nil {
			return nil, fmt.Errorf("invalid entity id %q in %q", part, literal)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseHistoryDate parses a history timestamp. Unparseable values are null.
func ParseHistoryDate(field string) *time.Time {
	if IsNull(field) {
		return nil
	}
	s := strings.TrimSpace(field)
	for _, layout := range historyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ParseUntil parses a YYYY-MM-DD cut-off date. The empty string means no cut-off.
func ParseUntil(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := time.Parse(UntilLayout, strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid until date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}

func parseID(s string) (int64, error) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}

func parseNumber(field string) *float64 {
	if IsNull(field) {
		return nil
	}
	s := strings.ReplaceAll(strings.TrimSpace(field), " ", "")
	if !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func nullableString(field string) *string {
	if IsNull(field) {
		return nil
	}
	s := strings.TrimSpace(field)
	return &s
}

// field returns the value at column idx, or "" when the column is absent.
func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// AddExport reads one export from r, cleans it and adds it to the dataset
// under the kind its header identifies.
func (d *Dataset) AddExport(name string, r io.Reader) (TableKind, error) {
	table, err := ReadExport(r)
	if err != nil {
		return KindUnknown, fmt.Errorf("%s: %w", name, err)
	}
	table.Clean()
	return d.AddTable(name, table), nil
}

// AddTable adds an already parsed table. Rows without a usable key are
// skipped with a warning.
func (d *Dataset) AddTable(name string, t *Table) TableKind {
	kind := DetectKind(t.Header)
	switch kind {
	case KindEntities:
		d.addEntities(name, t)
	case KindHistory:
		d.addHistory(name, t)
	case KindSprints:
		d.addSprints(name, t)
	default:
		d.warnf("%s: unrecognized table, columns %v", name, t.Header)
	}
	return kind
}

func (d *Dataset) warnf(format string, args ...interface{}) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}

func (d *Dataset) addEntities(name string, t *Table) {
	id := t.Column("entity_id")
	status := t.Column("status")
	resolution := t.Column("resolution")
	assignee := t.Column("assignee")
	estimation := t.Column("estimation")
	spent := t.Column("spent")

	skipped := 0
	for _, row := range t.Rows {
		entityID, err := parseID(strings.TrimSpace(field(row, id)))
		if err != nil {
			skipped++
			continue
		}
		d.Entities = append(d.Entities, Entity{
			ID:         entityID,
			Status:     nullableString(field(row, status)),
			Resolution: nullableString(field(row, resolution)),
			Assignee:   nullableString(field(row, assignee)),
			Estimation: parseNumber(field(row, estimation)),
			Spent:      parseNumber(field(row, spent)),
		})
	}
	if skipped > 0 {
		d.warnf("%s: skipped %d rows without entity_id", name, skipped)
	}
}

func (d *Dataset) addHistory(name string, t *Table) {
	id := t.Column("entity_id")
	date := t.Column("history_date")
	version := t.Column("history_version")

	skipped := 0
	for _, row := range t.Rows {
		entityID, err := parseID(strings.TrimSpace(field(row, id)))
		if err != nil {
			skipped++
			continue
		}
		h := HistoryRow{EntityID: entityID, Date: ParseHistoryDate(field(row, date))}
		if v, err := parseID(strings.TrimSpace(field(row, version))); err == nil {
			h.Version = &v
		}
		d.History = append(d.History, h)
	}
	if skipped > 0 {
		d.warnf("%s: skipped %d rows without entity_id", name, skipped)
	}
}

func (d *Dataset) addSprints(name string, t *Table) {
	sprintName := t.Column("sprint_name")
	ids := t.Column("entity_ids")

	for i, row := range t.Rows {
		n := strings.TrimSpace(field(row, sprintName))
		if IsNull(n) {
			d.warnf("%s: row %d has no sprint_name", name, i+1)
			continue
		}
		parsed, err := ParseEntityIDs(field(row, ids))
		if err != nil {
			d.warnf("%s: sprint %q: %v", name, n, err)
		}
		d.Sprints = append(d.Sprints, Sprint{Name: n, EntityIDs: parsed})
	}
}

// SprintNames returns the sprint names in export order.
func (d *Dataset) SprintNames() []string {
	names := make([]string, 0, len(d.Sprints))
	for _, s := range d.Sprints {
		names = append(names, s.Name)
	}
	return names
}
