package analyzer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/PentesterFlow/pagescope/internal/dom"
	"github.com/PentesterFlow/pagescope/internal/report"
)

// analyzeTables counts every table and samples the first few that look like
// data: at least one header cell or more than one row.
func analyzeTables(doc *dom.Document, sample, headerMax int) (int, []report.ImportantElementRef) {
	tables := doc.Find("table")
	samples := make([]report.ImportantElementRef, 0)

	tables.EachWithBreak(func(i int, table *goquery.Selection) bool {
		if i >= sample {
			return false
		}

		headers := make([]string, 0)
		table.Find("th").Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, strings.TrimSpace(th.Text()))
		})
		rows := table.Find("tr").Length()

		if len(headers) > 0 || rows > 1 {
			if len(headers) > headerMax {
				headers = headers[:headerMax]
			}
			samples = append(samples, report.TableElement(headers, rows))
		}
		return true
	})

	return tables.Length(), samples
}
