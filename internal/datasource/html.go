package datasource

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ReadHTMLTable extracts the first element matched by opt.Selector
// (default "table") as a table.
//
// The header is the first row containing <th> cells; without one, the first
// row is used. Data rows are the remaining <tr> elements with <td> cells;
// rows whose cell count differs from the header are skipped like in CSV.
func ReadHTMLTable(r io.Reader, opt LoadOptions) ([]string, [][]any, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	sel := opt.Selector
	if sel == "" {
		sel = "table"
	}
	table := doc.Find(sel).First()
	if table.Length() == 0 {
		return nil, nil, fmt.Errorf("html: no element matches %q", sel)
	}

	var headers []string
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if headers == nil {
			if th := tr.Find("th"); th.Length() > 0 {
				headers = cellTexts(th)
				return
			}
		}
		cells := cellTexts(tr.Find("td"))
		if len(cells) == 0 {
			return
		}
		if headers == nil {
			headers = cells
			return
		}
		if len(cells) != len(headers) {
			return
		}
		rows = append(rows, cells)
	})

	if opt.NormalizeHeaders {
		headers = normalizeHeaders(headers)
	}
	return headers, Coerce(InferTypes(headers, rows), rows), nil
}

func cellTexts(s *goquery.Selection) []string {
	out := make([]string, 0, s.Length())
	s.Each(func(_ int, c *goquery.Selection) {
		out = append(out, strings.TrimSpace(c.Text()))
	})
	return out
}
