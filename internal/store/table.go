package store

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Table is the tabular form of a Collection: Header[0] names the time column,
// each row holds one sample index across all columns.
type Table struct {
	Header []string
	Rows   [][]float64
}

// Serialize lays the collection out as one row per sample index.
func (c *Collection) Serialize() Table {
	t := Table{
		Header: append([]string{TimeColumn}, c.names...),
		Rows:   make([][]float64, len(c.time)),
	}
	for i, ts := range c.time {
		row := make([]float64, 1+len(c.voltages))
		row[0] = ts
		for j, v := range c.voltages {
			row[j+1] = v[i]
		}
		t.Rows[i] = row
	}
	return t
}

// Deserialize rebuilds a collection from a table produced by Serialize.
func Deserialize(t Table) (*Collection, error) {
	if len(t.Header) == 0 {
		return nil, errors.New("table has no header")
	}
	cols := len(t.Header)
	c := &Collection{
		time:     make([]float64, len(t.Rows)),
		voltages: make([][]float64, cols-1),
		names:    append([]string(nil), t.Header[1:]...),
	}
	for j := range c.voltages {
		c.voltages[j] = make([]float64, len(t.Rows))
	}
	for i, row := range t.Rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i, cols, len(row))
		}
		if i > 0 && !(row[0] > c.time[i-1]) {
			return nil, fmt.Errorf("row %d: time %g is not after %g", i, row[0], c.time[i-1])
		}
		c.time[i] = row[0]
		for j := 1; j < cols; j++ {
			c.voltages[j-1][i] = row[j]
		}
	}
	return c, nil
}

// WriteCSV writes the table with shortest round-trip float formatting.
func WriteCSV(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	record := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for j, v := range row {
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record[:len(row)]); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadCSV parses a table written by WriteCSV. The first column must be time.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, errors.New("empty table")
		}
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	t := Table{Header: append([]string(nil), header...)}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("line %d: %w", line, err)
		}
		row := make([]float64, len(rec))
		for j, s := range rec {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Table{}, fmt.Errorf("line %d column %q: %w", line, t.Header[j], err)
			}
			row[j] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// SaveFile persists the collection atomically: the table is written to a
// temporary file in the same directory and renamed over path.
func SaveFile(path string, c *Collection) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, c.Serialize()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile reads a table from disk and rebuilds the collection.
func LoadFile(path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Deserialize(t)
}
