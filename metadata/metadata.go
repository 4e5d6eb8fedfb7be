// Package metadata reads delimited sequence-metadata files into in-memory
// records keyed by strain identifier. Files may be comma- or tab-delimited
// and may be compressed; both are detected rather than configured.
package metadata

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/carbocation/pfx"

	"github.com/watronfire/augur"
)

// DefaultIDColumns are the column names checked, in order, when inferring
// which column holds the record identifier.
var DefaultIDColumns = []string{"strain", "name"}

// Record is one metadata row: a unique strain identifier plus the remaining
// columns as a name-to-value map. The identifier column itself is not
// repeated in Attributes.
type Record struct {
	Strain     string
	Attributes map[string]string
}

// Table is a fully parsed metadata file.
type Table struct {
	IDColumn string
	Columns  []string
	Delim    rune
	Records  []Record
}

// Read loads the metadata file at path, decompressing and sniffing the
// delimiter as needed. idColumns is the ordered list of candidate
// identifier columns; nil means DefaultIDColumns.
func Read(path string, idColumns []string) (*Table, error) {
	r, err := augur.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, pfx.Err(err)
	}

	table, err := Parse(raw, idColumns)
	if err != nil {
		return nil, fmt.Errorf("metadata file %s: %w", path, err)
	}
	return table, nil
}

// Parse builds a Table from raw delimited bytes.
func Parse(raw []byte, idColumns []string) (*Table, error) {
	if len(idColumns) == 0 {
		idColumns = DefaultIDColumns
	}

	delim := augur.DetectDelimiter(bytes.NewReader(raw))

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.Comma = delim
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	idIndex := -1
	idColumn := ""
	for _, candidate := range idColumns {
		for i, col := range header {
			if col == candidate {
				idIndex, idColumn = i, col
				break
			}
		}
		if idIndex >= 0 {
			break
		}
	}
	if idIndex < 0 {
		return nil, fmt.Errorf("none of the possible id columns %v exist in the header %v", idColumns, header)
	}

	table := &Table{
		IDColumn: idColumn,
		Columns:  header,
		Delim:    delim,
	}

	seen := make(map[string]bool)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, pfx.Err(err)
		}

		strain := row[idIndex]
		if seen[strain] {
			return nil, fmt.Errorf("duplicate id %q on line %d", strain, line)
		}
		seen[strain] = true

		attributes := make(map[string]string, len(header)-1)
		for i, col := range header {
			if i == idIndex {
				continue
			}
			attributes[col] = row[i]
		}

		table.Records = append(table.Records, Record{Strain: strain, Attributes: attributes})
	}

	return table, nil
}

// Strains returns every record identifier in file order.
func (t *Table) Strains() []string {
	strains := make([]string, 0, len(t.Records))
	for _, rec := range t.Records {
		strains = append(strains, rec.Strain)
	}
	return strains
}

// WriteSubset writes the header and the kept rows to w, using the table's
// original delimiter.
func (t *Table) WriteSubset(w io.Writer, keep map[string]bool) error {
	cw := csv.NewWriter(w)
	cw.Comma = t.Delim

	if err := cw.Write(t.Columns); err != nil {
		return pfx.Err(err)
	}

	row := make([]string, len(t.Columns))
	for _, rec := range t.Records {
		if !keep[rec.Strain] {
			continue
		}
		for i, col := range t.Columns {
			if col == t.IDColumn {
				row[i] = rec.Strain
			} else {
				row[i] = rec.Attributes[col]
			}
		}
		if err := cw.Write(row); err != nil {
			return pfx.Err(err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return pfx.Err(err)
	}
	return nil
}
