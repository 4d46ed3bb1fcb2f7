// Package dataset loads delimited policy data and prepares feature matrices
// for training.
package dataset

import (
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/riskstack/riskmodel/internal/utils"
)

// DefaultSeparator is the column separator of the policy extract.
const DefaultSeparator = '|'

// ColumnKind distinguishes numeric from categorical columns.
type ColumnKind int

const (
	Numeric ColumnKind = iota
	Categorical
)

// Column holds one column of a Frame. Missing numeric values are NaN and
// missing categorical values are empty strings.
type Column struct {
	Name   string
	Kind   ColumnKind
	Values []float64
	Levels []string
}

// Missing counts missing cells.
func (c *Column) Missing() int {
	count := 0
	if c.Kind == Numeric {
		for _, v := range c.Values {
			if math.IsNaN(v) {
				count++
			}
		}
		return count
	}
	for _, s := range c.Levels {
		if s == "" {
			count++
		}
	}
	return count
}

// Frame is a small column-oriented table.
type Frame struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// NewFrame builds a frame from equal-length columns.
func NewFrame(columns ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(columns))}
	for i, c := range columns {
		n := len(c.Values)
		if c.Kind == Categorical {
			n = len(c.Levels)
		}
		if i == 0 {
			f.rows = n
		} else if n != f.rows {
			return nil, utils.InvalidInput("dataset.NewFrame", "column %q has %d rows, expected %d", c.Name, n, f.rows)
		}
		if _, dup := f.index[c.Name]; dup {
			return nil, utils.InvalidInput("dataset.NewFrame", "duplicate column %q", c.Name)
		}
		f.index[c.Name] = i
		f.columns = append(f.columns, c)
	}
	return f, nil
}

// Rows returns the row count.
func (f *Frame) Rows() int { return f.rows }

// Columns returns the columns in file order.
func (f *Frame) Columns() []*Column { return f.columns }

// Names returns column names in file order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.columns[i], true
}

// set replaces or appends a column.
func (f *Frame) set(c *Column) {
	if i, ok := f.index[c.Name]; ok {
		f.columns[i] = c
		return
	}
	f.index[c.Name] = len(f.columns)
	f.columns = append(f.columns, c)
}

// filter keeps rows where keep is true.
func (f *Frame) filter(keep []bool) *Frame {
	out := &Frame{index: make(map[string]int, len(f.columns))}
	for _, c := range f.columns {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		for r, k := range keep {
			if !k {
				continue
			}
			if c.Kind == Numeric {
				nc.Values = append(nc.Values, c.Values[r])
			} else {
				nc.Levels = append(nc.Levels, c.Levels[r])
			}
		}
		out.set(nc)
	}
	for _, k := range keep {
		if k {
			out.rows++
		}
	}
	return out
}

// Load reads a delimited file with a header row. A column is numeric when
// every non-empty cell parses as a number.
func Load(path string, sep rune) (*Frame, error) {
	const op = "dataset.Load"
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, utils.NewAppError(op, utils.ErrNotFound, "data file "+path, err)
		}
		return nil, utils.NewAppError(op, utils.ErrIO, "open "+path, err)
	}
	defer file.Close()

	frame, err := Read(file, sep)
	if err != nil {
		return nil, utils.NewAppError(op, utils.ErrInvalidInput, "parse "+path, err)
	}
	return frame, nil
}

// Read parses delimited data with a header row from r.
func Read(r io.Reader, sep rune) (*Frame, error) {
	if sep == 0 {
		sep = DefaultSeparator
	}
	if sep == '"' || sep == '\r' || sep == '\n' || !utf8.ValidRune(sep) {
		return nil, utils.InvalidInput("dataset.Read", "invalid separator %q", sep)
	}

	reader := csv.NewReader(r)
	reader.Comma = sep
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, utils.NewAppError("dataset.Read", utils.ErrEmptyInput, "no header row", nil)
		}
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	raw := make([][]string, len(header))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := range header {
			raw[i] = append(raw[i], strings.TrimSpace(record[i]))
		}
	}

	columns := make([]*Column, len(header))
	for i, name := range header {
		columns[i] = inferColumn(name, raw[i])
	}
	return NewFrame(columns...)
}

func inferColumn(name string, cells []string) *Column {
	values := make([]float64, len(cells))
	numeric := true
	for i, s := range cells {
		if s == "" {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			numeric = false
			break
		}
		if math.IsInf(v, 0) {
			v = math.NaN()
		}
		values[i] = v
	}
	if numeric {
		return &Column{Name: name, Kind: Numeric, Values: values}
	}
	return &Column{Name: name, Kind: Categorical, Levels: append([]string(nil), cells...)}
}
