package review

import (
	"encoding/csv"
	"fmt"
	"io"
)

// requiredColumns are the columns every row must carry; any further
// columns are folded into Extra.
var requiredColumns = map[string]int{
	"review_id": -1,
	"date":      -1,
	"rating":    -1,
	"text":      -1,
}

// ReadCSV reads rows of review_id,date,rating,text[,...] from r into
// Review values. The header row determines column order and admits
// extra columns, which are carried into Review.Extra. No third-party
// CSV library appears anywhere in the retrieved corpus for this
// concern, so this ingest source is deliberately built on the standard
// library's encoding/csv (documented in DESIGN.md).
func ReadCSV(r io.Reader) ([]Review, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("read csv header: empty file")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(requiredColumns))
	for key := range requiredColumns {
		columns[key] = -1
	}
	for i, name := range header {
		if _, known := columns[name]; known {
			columns[name] = i
		}
	}
	for name, idx := range columns {
		if idx == -1 {
			return nil, fmt.Errorf("read csv header: missing required column %q", name)
		}
	}

	var reviews []Review
	rowNum := 1
	for {
		rowNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", rowNum, err)
		}

		rev := Review{
			ReviewID: record[columns["review_id"]],
			Date:     record[columns["date"]],
			Rating:   record[columns["rating"]],
			Text:     record[columns["text"]],
		}
		if rev.ReviewID == "" {
			return nil, fmt.Errorf("read csv row %d: empty review_id", rowNum)
		}

		for i, name := range header {
			if _, required := requiredColumns[name]; required || i >= len(record) {
				continue
			}
			if rev.Extra == nil {
				rev.Extra = make(map[string]string)
			}
			rev.Extra[name] = record[i]
		}

		reviews = append(reviews, rev)
	}

	return reviews, nil
}
