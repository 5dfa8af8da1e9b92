package experiment

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadXYE parses a whitespace-separated "x y [sigma]" table. Blank lines
// and lines starting with '#' are skipped. Every data row must have the
// same number of columns; sigma is nil for two-column files.
func ReadXYE(r io.Reader) (x, y, sigma []float64, err error) {
	sc := bufio.NewScanner(r)
	cols := 0
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 || len(fields) > 3 {
			return nil, nil, nil, fmt.Errorf("line %d: expected 2 or 3 columns, got %d", line, len(fields))
		}
		if cols == 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, nil, nil, fmt.Errorf("line %d: expected %d columns, got %d", line, cols, len(fields))
		}

		var row [3]float64
		for i, f := range fields {
			if row[i], err = strconv.ParseFloat(f, 64); err != nil {
				return nil, nil, nil, fmt.Errorf("line %d: column %d: %w", line, i+1, err)
			}
		}
		x = append(x, row[0])
		y = append(y, row[1])
		if cols == 3 {
			sigma = append(sigma, row[2])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("read data: %w", err)
	}
	if cols == 0 {
		return nil, nil, nil, fmt.Errorf("no data rows")
	}
	return x, y, sigma, nil
}
