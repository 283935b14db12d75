package export

import "fmt"

// Column describes one exported column. Width is a relative weight used by the PDF renderer.
type Column struct {
	Key   string
	Title string
	Width float64
}

// Table is the tabular content shared by every exporter.
type Table struct {
	Title   string
	Columns []Column
	Rows    []map[string]string
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("export requires at least one column")
	}
	return nil
}

func (t Table) record(row map[string]string) []string {
	record := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		record[i] = row[col.Key]
	}
	return record
}
