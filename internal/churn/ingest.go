package churn

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

var errInvalidUTF8 = errors.New("invalid UTF-8")

// Options controls how the input file is read.
type Options struct {
	Separator rune
	Encoding  string
}

func (o Options) withDefaults() Options {
	if o.Separator == 0 {
		o.Separator = ','
	}
	if strings.TrimSpace(o.Encoding) == "" {
		o.Encoding = "utf-8"
	}
	return o
}

var nullTokens = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"none": true,
}

func isNull(value string) bool {
	return nullTokens[strings.ToLower(value)]
}

// Load reads a delimited customer file into a Table.
func Load(path string, opts Options) (*Table, error) {
	opts = opts.withDefaults()

	decoder, err := lookupDecoder(opts.Encoding)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}
	defer file.Close()

	if decoder == nil {
		return Read(skipBOM(file), opts.Separator)
	}
	return Read(transform.NewReader(file, decoder), opts.Separator)
}

// lookupDecoder returns nil for UTF-8: that input is read as-is and Read
// rejects invalid sequences instead of replacing them.
func lookupDecoder(name string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc.NewDecoder(), nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func skipBOM(r io.Reader) io.Reader {
	buffered := bufio.NewReader(r)
	if prefix, err := buffered.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = buffered.Discard(len(utf8BOM))
	}
	return buffered
}

// Read parses already-decoded CSV text. The header must name all eleven
// columns; extra columns are ignored.
func Read(r io.Reader, sep rune) (*Table, error) {
	if sep == 0 {
		sep = ','
	}
	reader := csv.NewReader(r)
	reader.Comma = sep
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, newParseError(1, "", "", errors.New("empty file"))
		}
		return nil, newParseError(1, "", "", fmt.Errorf("unable to read header: %w", err))
	}

	colMap := normalizeHeaders(headers)
	var index [numColumns]int
	for _, col := range Columns() {
		idx, ok := findColumn(colMap, []string{col.String()})
		if !ok {
			return nil, newParseError(1, col.String(), "", errors.New("missing column"))
		}
		index[col] = idx
	}

	table := &Table{Columns: make([]ColumnInfo, numColumns)}
	inferred := make([]Kind, numColumns)
	hasNull := make([]bool, numColumns)
	for _, col := range Columns() {
		table.Columns[col].Name = col.String()
	}

	line := 1
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, newParseError(csvErr.Line, "", "", csvErr.Err)
			}
			return nil, newParseError(line+1, "", "", err)
		}
		line, _ = reader.FieldPos(0)

		row := Record{}
		for _, col := range Columns() {
			value := getValue(record, index[col])
			if !utf8.ValidString(value) {
				return nil, newParseError(line, col.String(), value, errInvalidUTF8)
			}
			if isNull(value) {
				row.setMissing(col)
				hasNull[col] = true
				continue
			}
			inferred[col] = widen(inferred[col], value)
			if err := assign(&row, col, value); err != nil {
				return nil, newParseError(line, col.String(), value, err)
			}
		}
		table.Records = append(table.Records, row)
	}

	for _, col := range Columns() {
		kind := inferred[col]
		switch {
		case table.Len() == 0:
			kind = KindString
		case kind == KindInteger && hasNull[col]:
			// integer columns with nulls report as float, all-null ones included
			kind = KindFloat
		}
		table.setKind(col, kind)
	}
	table.refreshNonNull()
	return table, nil
}

// widen moves a column's inferred kind from integer to float to string as
// values require.
func widen(current Kind, value string) Kind {
	if current == KindInteger {
		if _, err := strconv.ParseInt(value, 10, 64); err == nil {
			return KindInteger
		}
		current = KindFloat
	}
	if current == KindFloat {
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			return KindFloat
		}
	}
	return KindString
}

func assign(row *Record, col Column, value string) error {
	var err error
	switch col {
	case ColCustomerID:
		row.CustomerID, err = strconv.ParseInt(value, 10, 64)
	case ColGender:
		row.Gender = value
	case ColAge:
		row.Age, err = strconv.ParseInt(value, 10, 64)
	case ColGeography:
		row.Geography = value
	case ColTenure:
		row.Tenure, err = strconv.ParseInt(value, 10, 64)
	case ColContract:
		row.Contract = value
	case ColMonthlyCharges:
		row.MonthlyCharges, err = strconv.ParseFloat(value, 64)
	case ColTotalCharges:
		row.TotalCharges, err = strconv.ParseFloat(value, 64)
	case ColPaymentMethod:
		row.PaymentMethod = value
	case ColIsActiveMember:
		row.IsActiveMember, err = strconv.ParseInt(value, 10, 64)
	case ColChurn:
		row.ChurnLabel = value
	}
	if numErr, ok := err.(*strconv.NumError); ok {
		return numErr.Err
	}
	return err
}

func normalizeHeaders(headers []string) map[string]int {
	result := make(map[string]int, len(headers))
	for idx, header := range headers {
		normalized := normalizeHeader(header)
		if _, exists := result[normalized]; !exists {
			result[normalized] = idx
		}
	}
	return result
}

func normalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}

func findColumn(headers map[string]int, names []string) (int, bool) {
	for _, name := range names {
		if idx, ok := headers[normalizeHeader(name)]; ok {
			return idx, true
		}
	}
	return -1, false
}

func getValue(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func formatInt(value int64) string {
	return strconv.FormatInt(value, 10)
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}
