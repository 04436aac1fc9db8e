package churn

import (
	"fmt"
	"sort"
	"strings"
)

// ColumnCount pairs a column with a count, e.g. its nulls.
type ColumnCount struct {
	Column string `json:"column"`
	Count  int    `json:"count"`
}

// CleanResult summarizes what Clean found and changed.
type CleanResult struct {
	NullCounts   []ColumnCount      `json:"null_counts"`
	TotalNulls   int                `json:"total_nulls"`
	DuplicateIDs []int64            `json:"duplicate_ids"`
	DroppedRows  int                `json:"dropped_rows"`
	Warnings     []IntegrityWarning `json:"warnings"`
}

// NullCounts counts missing values per column, in column order.
func NullCounts(t *Table) []ColumnCount {
	counts := make([]ColumnCount, 0, numColumns)
	for _, col := range Columns() {
		entry := ColumnCount{Column: col.String()}
		for _, record := range t.Records {
			if record.IsMissing(col) {
				entry.Count++
			}
		}
		counts = append(counts, entry)
	}
	return counts
}

// EncodeChurn maps Churn labels Yes/No to 1/0. Null labels stay null. On an
// already encoded table it does nothing.
func EncodeChurn(t *Table) error {
	if t.Encoded {
		return nil
	}
	kind := KindInteger
	for i := range t.Records {
		record := &t.Records[i]
		if record.IsMissing(ColChurn) {
			kind = KindFloat
			continue
		}
		switch record.ChurnLabel {
		case "Yes":
			record.Churn = 1
		case "No":
			record.Churn = 0
		default:
			return &LabelMappingError{Row: i, Value: record.ChurnLabel}
		}
	}
	for i := range t.Records {
		t.Records[i].ChurnLabel = ""
	}
	t.Encoded = true
	t.setKind(ColChurn, kind)
	return nil
}

// DuplicateIDs returns every CustomerID seen more than once, ascending.
func DuplicateIDs(t *Table) []int64 {
	seen := make(map[int64]int, len(t.Records))
	for _, record := range t.Records {
		if record.IsMissing(ColCustomerID) {
			continue
		}
		seen[record.CustomerID]++
	}
	dupes := []int64{}
	for id, count := range seen {
		if count > 1 {
			dupes = append(dupes, id)
		}
	}
	sort.Slice(dupes, func(i, j int) bool { return dupes[i] < dupes[j] })
	return dupes
}

// DropIncomplete removes rows with any null field in place and returns how
// many were removed. Remaining rows keep their order.
func DropIncomplete(t *Table) int {
	kept := t.Records[:0]
	for _, record := range t.Records {
		if record.Complete() {
			kept = append(kept, record)
		}
	}
	dropped := len(t.Records) - len(kept)
	t.Records = kept
	t.refreshNonNull()
	return dropped
}

// Clean runs the null report, label encoding, duplicate check and row drop, in
// that order.
func Clean(t *Table) (CleanResult, error) {
	result := CleanResult{NullCounts: NullCounts(t)}
	var nullColumns []string
	for _, entry := range result.NullCounts {
		result.TotalNulls += entry.Count
		if entry.Count > 0 {
			nullColumns = append(nullColumns, fmt.Sprintf("%s=%d", entry.Column, entry.Count))
		}
	}
	if result.TotalNulls > 0 {
		result.Warnings = append(result.Warnings, IntegrityWarning{
			Kind:   WarnNulls,
			Detail: strings.Join(nullColumns, ", "),
		})
	}

	if err := EncodeChurn(t); err != nil {
		return result, err
	}

	result.DuplicateIDs = DuplicateIDs(t)
	if len(result.DuplicateIDs) > 0 {
		result.Warnings = append(result.Warnings, IntegrityWarning{
			Kind:   WarnDuplicates,
			Detail: fmt.Sprintf("%d CustomerID values repeat", len(result.DuplicateIDs)),
		})
	}

	result.DroppedRows = DropIncomplete(t)
	return result, nil
}
