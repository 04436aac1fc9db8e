package churn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNotEncoded is returned by aggregations run before EncodeChurn.
var ErrNotEncoded = errors.New("churn column is not encoded")

// GroupKey selects the attribute rows are partitioned by.
type GroupKey string

const (
	ByGeography      GroupKey = "Geography"
	ByContract       GroupKey = "Contract"
	ByTenure         GroupKey = "Tenure"
	ByGender         GroupKey = "Gender"
	ByPaymentMethod  GroupKey = "PaymentMethod"
	ByIsActiveMember GroupKey = "IsActiveMember"
)

// GroupKeys lists every supported key, in report order.
func GroupKeys() []GroupKey {
	return []GroupKey{ByGeography, ByContract, ByTenure, ByGender, ByPaymentMethod, ByIsActiveMember}
}

// Ordinal keys sort by key value instead of by rate.
func (k GroupKey) Ordinal() bool {
	return k == ByTenure || k == ByIsActiveMember
}

func (k GroupKey) column() (Column, error) {
	switch k {
	case ByGeography:
		return ColGeography, nil
	case ByContract:
		return ColContract, nil
	case ByTenure:
		return ColTenure, nil
	case ByGender:
		return ColGender, nil
	case ByPaymentMethod:
		return ColPaymentMethod, nil
	case ByIsActiveMember:
		return ColIsActiveMember, nil
	}
	return 0, fmt.Errorf("unsupported group key %q", string(k))
}

// GroupRate is the churn mean of one partition.
type GroupRate struct {
	Key     string  `json:"key"`
	Count   int     `json:"count"`
	Churned int     `json:"churned"`
	Rate    float64 `json:"rate"`

	order int64
}

// OverallRate returns mean churn as a percentage rounded to two decimals.
func OverallRate(t *Table) (float64, error) {
	if !t.Encoded {
		return 0, ErrNotEncoded
	}
	total, churned := 0, 0
	for _, record := range t.Records {
		if record.IsMissing(ColChurn) {
			continue
		}
		total++
		churned += record.Churn
	}
	if total == 0 {
		return 0, nil
	}
	return round2(float64(churned) / float64(total) * 100), nil
}

// GroupRates partitions rows by key and returns each partition's mean churn.
// Categorical keys come back by descending rate with ties broken by key;
// ordinal keys come back in ascending key order.
func GroupRates(t *Table, key GroupKey) ([]GroupRate, error) {
	if !t.Encoded {
		return nil, ErrNotEncoded
	}
	col, err := key.column()
	if err != nil {
		return nil, err
	}

	buckets := map[string]*GroupRate{}
	for _, record := range t.Records {
		if record.IsMissing(col) || record.IsMissing(ColChurn) {
			continue
		}
		label := record.Text(col)
		bucket, ok := buckets[label]
		if !ok {
			bucket = &GroupRate{Key: label}
			if v, isNum := record.Numeric(col, true); isNum {
				bucket.order = int64(v)
			}
			buckets[label] = bucket
		}
		bucket.Count++
		bucket.Churned += record.Churn
	}

	result := make([]GroupRate, 0, len(buckets))
	for _, bucket := range buckets {
		bucket.Rate = float64(bucket.Churned) / float64(bucket.Count)
		result = append(result, *bucket)
	}

	if key.Ordinal() {
		sort.Slice(result, func(i, j int) bool {
			return result[i].order < result[j].order
		})
	} else {
		sort.Slice(result, func(i, j int) bool {
			if result[i].Rate != result[j].Rate {
				return result[i].Rate > result[j].Rate
			}
			return result[i].Key < result[j].Key
		})
	}
	return result, nil
}

// CorrelationColumns are the numeric columns the correlation matrix covers.
func CorrelationColumns() []Column {
	return []Column{ColCustomerID, ColAge, ColTenure, ColMonthlyCharges, ColTotalCharges, ColIsActiveMember, ColChurn}
}

// Correlation holds pairwise Pearson coefficients; Values[i][j] pairs
// Labels[i] with Labels[j].
type Correlation struct {
	Labels []string    `json:"labels"`
	Values [][]float64 `json:"-"`
}

// At returns the coefficient for row i, column j.
func (c Correlation) At(i, j int) float64 {
	return c.Values[i][j]
}

// CorrelationPair is one matrix entry. Coefficient is nil where the
// correlation is undefined.
type CorrelationPair struct {
	X           string   `json:"x"`
	Y           string   `json:"y"`
	Coefficient *float64 `json:"coefficient"`
}

// Pairs flattens the matrix row by row.
func (c Correlation) Pairs() []CorrelationPair {
	pairs := make([]CorrelationPair, 0, len(c.Labels)*len(c.Labels))
	for i, x := range c.Labels {
		for j, y := range c.Labels {
			pair := CorrelationPair{X: x, Y: y}
			if v := c.Values[i][j]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				pair.Coefficient = &v
			}
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

// CorrelationMatrix computes Pearson coefficients among the numeric columns
// over the rows where all of them are present. Columns with zero variance
// produce NaN, as do fewer than two usable rows.
func CorrelationMatrix(t *Table) (Correlation, error) {
	if !t.Encoded {
		return Correlation{}, ErrNotEncoded
	}
	cols := CorrelationColumns()
	n := len(cols)
	result := Correlation{Labels: make([]string, n), Values: make([][]float64, n)}
	for i, col := range cols {
		result.Labels[i] = col.String()
		result.Values[i] = make([]float64, n)
	}

	usable := make([]Record, 0, t.Len())
	for _, record := range t.Records {
		if !anyMissing(record, cols) {
			usable = append(usable, record)
		}
	}

	rows := len(usable)
	if rows < 2 {
		for i := range result.Values {
			for j := range result.Values[i] {
				result.Values[i][j] = math.NaN()
			}
		}
		return result, nil
	}

	data := mat.NewDense(rows, n, nil)
	for r, record := range usable {
		for c, col := range cols {
			v, _ := record.Numeric(col, true)
			data.Set(r, c, v)
		}
	}

	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, data, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			result.Values[i][j] = corr.At(i, j)
		}
	}
	// gonum pins the diagonal to 1 even for constant columns.
	for i := 0; i < n; i++ {
		if stat.Variance(mat.Col(nil, i, data), nil) == 0 {
			result.Values[i][i] = math.NaN()
		}
	}
	return result, nil
}

func anyMissing(record Record, cols []Column) bool {
	for _, col := range cols {
		if record.IsMissing(col) {
			return true
		}
	}
	return false
}

// ColumnStats is a numeric summary of one column.
type ColumnStats struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// Describe summarizes every numeric column, skipping nulls.
func Describe(t *Table) []ColumnStats {
	result := make([]ColumnStats, 0, len(CorrelationColumns()))
	for _, col := range CorrelationColumns() {
		if col == ColChurn && !t.Encoded {
			continue
		}
		values := make([]float64, 0, t.Len())
		for _, record := range t.Records {
			if record.IsMissing(col) {
				continue
			}
			v, _ := record.Numeric(col, t.Encoded)
			values = append(values, v)
		}
		entry := ColumnStats{Column: col.String(), Count: len(values)}
		if len(values) > 0 {
			sort.Float64s(values)
			entry.Mean = stat.Mean(values, nil)
			if len(values) > 1 {
				entry.Std = stat.StdDev(values, nil)
			}
			entry.Min = floats.Min(values)
			entry.Max = floats.Max(values)
			entry.Q1 = quantile(values, 0.25)
			entry.Median = quantile(values, 0.5)
			entry.Q3 = quantile(values, 0.75)
		}
		result = append(result, entry)
	}
	return result
}

// quantile interpolates linearly between the two ranks around p, so the
// median of [1 2 3 4] is 2.5.
func quantile(sorted []float64, p float64) float64 {
	h := float64(len(sorted)-1) * p
	lo := int(math.Floor(h))
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// ChargesByChurn splits MonthlyCharges by churn outcome: index 0 holds
// retained customers, index 1 churned ones.
func ChargesByChurn(t *Table) [2][]float64 {
	var out [2][]float64
	for _, record := range t.Records {
		if record.IsMissing(ColMonthlyCharges) || record.IsMissing(ColChurn) {
			continue
		}
		if record.Churn == 1 {
			out[1] = append(out[1], record.MonthlyCharges)
		} else {
			out[0] = append(out[0], record.MonthlyCharges)
		}
	}
	return out
}

// KeyValue parses an ordinal group key back to its number.
func KeyValue(rate GroupRate) (float64, error) {
	return strconv.ParseFloat(rate.Key, 64)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
