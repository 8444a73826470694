package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

func openCSV(data []byte, opts Options) (Handle, error) {
	blocks, err := csvBlocks(data)
	if err != nil {
		return nil, err
	}
	return newReflowDoc(blocks, nil, opts), nil
}

// csvBlocks renders each data row as "header: value" pairs, one block per
// row. The header row is not emitted on its own.
func csvBlocks(data []byte) ([]block, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	headers := records[0]
	blocks := make([]block, 0, len(records)-1)
	for _, row := range records[1:] {
		parts := make([]string, 0, len(row))
		for j, cell := range row {
			cell = strings.Join(strings.Fields(cell), " ")
			if j < len(headers) && headers[j] != "" {
				parts = append(parts, headers[j]+": "+cell)
			} else {
				parts = append(parts, cell)
			}
		}
		if t := strings.Join(parts, ", "); strings.TrimSpace(t) != "" {
			blocks = append(blocks, block{text: t})
		}
	}
	return blocks, nil
}
