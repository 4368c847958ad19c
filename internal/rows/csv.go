package rows

import (
	"encoding/csv"
	"fmt"
	"io"
)

// ReadCSV tokenizes a CSV stream into raw cell rows suitable for Parse.
// Ragged rows are allowed; the parser treats missing trailing cells as empty.
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var cells [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		cells = append(cells, record)
	}
	return cells, nil
}
