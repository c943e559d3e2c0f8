package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/aristath/frontier/internal/modules/optimization"
)

// PriceColumn is the header every uploaded CSV must carry.
const PriceColumn = "Price"

// errMissingPriceColumn marks a CSV without a PriceColumn header.
var errMissingPriceColumn = fmt.Errorf("%w: CSV file must contain a %q column", optimization.ErrMalformedInput, PriceColumn)

// readPriceColumn reads the Price column of a CSV document. Empty cells and
// short rows are missing observations and become NaN.
func readPriceColumn(r io.Reader) (optimization.PriceSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: CSV file is empty", optimization.ErrMalformedInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", optimization.ErrMalformedInput, err)
	}

	column := -1
	for i, name := range header {
		// Spreadsheet exports often start with a UTF-8 byte order mark
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == PriceColumn {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, errMissingPriceColumn
	}

	var prices optimization.PriceSeries
	for row := 2; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", optimization.ErrMalformedInput, err)
		}

		if column >= len(record) || strings.TrimSpace(record[column]) == "" {
			prices = append(prices, math.NaN())
			continue
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(record[column]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: invalid price %q", optimization.ErrMalformedInput, row, record[column])
		}
		prices = append(prices, value)
	}

	return prices, nil
}
