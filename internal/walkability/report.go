package walkability

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// ReportSubject is the subject line used when mailing a report.
const ReportSubject = "Your walkdata search results"

// Report formats the rows as a plain text table, suitable for the body of
// a results email.
func Report(rows []Row) string {
	if len(rows) == 0 {
		return "You have no saved searches.\n"
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "Street\tCity\tState\tBlock Group\tWalkability Index")
	for _, row := range rows {
		index := "no data"
		if row.Record != nil {
			index = fmt.Sprintf("%.2f", row.Record.NationalWalkabilityIndex)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			row.Search.Street,
			row.Search.City,
			row.Search.State,
			row.Search.CensusBlock,
			index,
		)
	}

	w.Flush()

	return buf.String()
}
