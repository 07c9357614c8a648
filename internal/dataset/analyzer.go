package dataset

import "github.com/foxzi/mailmerge/internal/template"

// Analysis summarizes dataset completeness for a send run. Every row
// falls into exactly one of the three classes, so
// Complete + HasEmpty + NoEmail == Total.
type Analysis struct {
	Total        int           `json:"total"`
	Complete     int           `json:"complete"`
	HasEmpty     int           `json:"has_empty"`
	NoEmail      int           `json:"no_email"`
	EmptyDetails []EmptyDetail `json:"empty_details,omitempty"`
}

// EmptyDetail describes one row with missing variable values.
// RowNumber is the spreadsheet row (1-based, header on row 1).
type EmptyDetail struct {
	RowNumber int      `json:"row_number"`
	Email     string   `json:"email"`
	EmptyVars []string `json:"empty_vars"`
}

// Analyze classifies each row as complete, has-empty, or no-email.
// Rows without an email address are excluded from the variable checks.
// Only tracked variables that exist as dataset columns are inspected.
func Analyze(d *Dataset, trackedVars []string, emailColumn string) *Analysis {
	analysis := &Analysis{Total: len(d.Rows)}

	var checkColumns []string
	for _, v := range trackedVars {
		if d.HasColumn(v) {
			checkColumns = append(checkColumns, v)
		}
	}

	for i, row := range d.Rows {
		email := EmailValue(row, emailColumn)
		if email == "" {
			analysis.NoEmail++
			continue
		}

		emptyVars := template.EmptyVariables(row, checkColumns)
		if len(emptyVars) > 0 {
			analysis.HasEmpty++
			analysis.EmptyDetails = append(analysis.EmptyDetails, EmptyDetail{
				RowNumber: i + 2,
				Email:     email,
				EmptyVars: emptyVars,
			})
		} else {
			analysis.Complete++
		}
	}

	return analysis
}
