// Package churn loads, cleans and aggregates the customer churn dataset.
package churn

import json "github.com/goccy/go-json"

// Column identifies one of the dataset's fixed attributes.
type Column int

const (
	ColCustomerID Column = iota
	ColGender
	ColAge
	ColGeography
	ColTenure
	ColContract
	ColMonthlyCharges
	ColTotalCharges
	ColPaymentMethod
	ColIsActiveMember
	ColChurn
	numColumns
)

var columnNames = [numColumns]string{
	"CustomerID",
	"Gender",
	"Age",
	"Geography",
	"Tenure",
	"Contract",
	"MonthlyCharges",
	"TotalCharges",
	"PaymentMethod",
	"IsActiveMember",
	"Churn",
}

// Columns returns every column in file order.
func Columns() []Column {
	cols := make([]Column, numColumns)
	for i := range cols {
		cols[i] = Column(i)
	}
	return cols
}

func (c Column) String() string {
	if c < 0 || c >= numColumns {
		return "unknown"
	}
	return columnNames[c]
}

// Kind is the value type inferred for a column.
type Kind int

const (
	KindInteger Kind = iota
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "int64"
	case KindFloat:
		return "float64"
	default:
		return "object"
	}
}

// Record is one customer row. Missing has bit c set when column c was null on
// input.
type Record struct {
	CustomerID     int64   `json:"customer_id"`
	Gender         string  `json:"gender"`
	Age            int64   `json:"age"`
	Geography      string  `json:"geography"`
	Tenure         int64   `json:"tenure"`
	Contract       string  `json:"contract"`
	MonthlyCharges float64 `json:"monthly_charges"`
	TotalCharges   float64 `json:"total_charges"`
	PaymentMethod  string  `json:"payment_method"`
	IsActiveMember int64   `json:"is_active_member"`
	ChurnLabel     string  `json:"-"`
	Churn          int     `json:"-"`
	Missing        uint16  `json:"-"`
}

type recordJSON struct {
	CustomerID     *int64   `json:"customer_id"`
	Gender         *string  `json:"gender"`
	Age            *int64   `json:"age"`
	Geography      *string  `json:"geography"`
	Tenure         *int64   `json:"tenure"`
	Contract       *string  `json:"contract"`
	MonthlyCharges *float64 `json:"monthly_charges"`
	TotalCharges   *float64 `json:"total_charges"`
	PaymentMethod  *string  `json:"payment_method"`
	IsActiveMember *int64   `json:"is_active_member"`
	Churn          any      `json:"churn"`
}

func present[T any](r Record, c Column, value T) *T {
	if r.IsMissing(c) {
		return nil
	}
	return &value
}

// MarshalJSON writes null for missing fields. Churn is the raw label until
// the table is encoded, then 0 or 1.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		CustomerID:     present(r, ColCustomerID, r.CustomerID),
		Gender:         present(r, ColGender, r.Gender),
		Age:            present(r, ColAge, r.Age),
		Geography:      present(r, ColGeography, r.Geography),
		Tenure:         present(r, ColTenure, r.Tenure),
		Contract:       present(r, ColContract, r.Contract),
		MonthlyCharges: present(r, ColMonthlyCharges, r.MonthlyCharges),
		TotalCharges:   present(r, ColTotalCharges, r.TotalCharges),
		PaymentMethod:  present(r, ColPaymentMethod, r.PaymentMethod),
		IsActiveMember: present(r, ColIsActiveMember, r.IsActiveMember),
	}
	switch {
	case r.IsMissing(ColChurn):
	case r.ChurnLabel != "":
		out.Churn = r.ChurnLabel
	default:
		out.Churn = r.Churn
	}
	return json.Marshal(out)
}

func (r Record) IsMissing(c Column) bool {
	return r.Missing&(1<<uint(c)) != 0
}

func (r *Record) setMissing(c Column) {
	r.Missing |= 1 << uint(c)
}

// Complete reports whether no field of the record is null.
func (r Record) Complete() bool {
	return r.Missing == 0
}

// Numeric returns the value of a numeric column as float64. The second result
// is false for categorical columns and for Churn before encoding.
func (r Record) Numeric(c Column, encoded bool) (float64, bool) {
	switch c {
	case ColCustomerID:
		return float64(r.CustomerID), true
	case ColAge:
		return float64(r.Age), true
	case ColTenure:
		return float64(r.Tenure), true
	case ColMonthlyCharges:
		return r.MonthlyCharges, true
	case ColTotalCharges:
		return r.TotalCharges, true
	case ColIsActiveMember:
		return float64(r.IsActiveMember), true
	case ColChurn:
		return float64(r.Churn), encoded
	}
	return 0, false
}

// Text renders any column the way it appeared in the source, or "NaN" when
// null.
func (r Record) Text(c Column) string {
	if r.IsMissing(c) {
		return "NaN"
	}
	switch c {
	case ColGender:
		return r.Gender
	case ColGeography:
		return r.Geography
	case ColContract:
		return r.Contract
	case ColPaymentMethod:
		return r.PaymentMethod
	case ColMonthlyCharges:
		return formatFloat(r.MonthlyCharges)
	case ColTotalCharges:
		return formatFloat(r.TotalCharges)
	case ColChurn:
		if r.ChurnLabel != "" {
			return r.ChurnLabel
		}
	}
	v, _ := r.Numeric(c, true)
	return formatInt(int64(v))
}

// ColumnInfo describes one column of a loaded table.
type ColumnInfo struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"-"`
	Type    string `json:"type"`
	NonNull int    `json:"non_null"`
}

// Table is the in-memory dataset. Records keep file order.
type Table struct {
	Records []Record
	Columns []ColumnInfo
	// Encoded is set once Churn holds 0/1 values.
	Encoded bool
}

func (t *Table) Len() int {
	return len(t.Records)
}

// Preview returns up to n leading records.
func (t *Table) Preview(n int) []Record {
	if n < 0 || n > len(t.Records) {
		n = len(t.Records)
	}
	return t.Records[:n]
}

func (t *Table) refreshNonNull() {
	for i := range t.Columns {
		t.Columns[i].NonNull = 0
	}
	for _, record := range t.Records {
		for _, col := range Columns() {
			if !record.IsMissing(col) {
				t.Columns[col].NonNull++
			}
		}
	}
}

func (t *Table) setKind(c Column, kind Kind) {
	t.Columns[c].Kind = kind
	t.Columns[c].Type = kind.String()
}
