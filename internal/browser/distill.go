package browser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Containers tried in order before falling back to body.
var mainSelectors = []string{"main", "article", "[role=main]", "#content", "#main", ".content"}

// Elements that never contribute extractable text.
const strippedElements = "script, style, svg, noscript, iframe, canvas"

const (
	maxHeadings  = 20
	maxListItems = 40
	maxTables    = 3
	maxTableRows = 10
)

// Distill reduces rendered HTML to a lightly-structured text form: the title
// as an H1, the meta description, a bounded sample of headings, list items
// and tables, then the main text. Output is capped at maxChars.
func Distill(html string, maxChars int) (*ScrapeResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	doc.Find(strippedElements).Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	description, _ := doc.Find(`meta[name="description"]`).Attr("content")
	description = strings.TrimSpace(description)

	main := doc.Find("body")
	for _, sel := range mainSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			main = found.First()
			break
		}
	}

	var b strings.Builder
	if title != "" {
		b.WriteString("# " + title + "\n\n")
	}
	if description != "" {
		b.WriteString(description + "\n\n")
	}

	headings := 0
	main.Find("h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapseSpace(s.Text())
		if text == "" {
			return true
		}
		b.WriteString("## " + text + "\n")
		headings++
		return headings < maxHeadings
	})
	if headings > 0 {
		b.WriteString("\n")
	}

	items := 0
	main.Find("li").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapseSpace(s.Text())
		if text == "" {
			return true
		}
		b.WriteString("- " + text + "\n")
		items++
		return items < maxListItems
	})
	if items > 0 {
		b.WriteString("\n")
	}

	tables := 0
	main.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := 0
		table.Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
			var cells []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, collapseSpace(cell.Text()))
			})
			if len(cells) > 0 {
				b.WriteString(strings.Join(cells, " | ") + "\n")
				rows++
			}
			return rows < maxTableRows
		})
		if rows > 0 {
			b.WriteString("\n")
			tables++
		}
		return tables < maxTables
	})

	b.WriteString(collapseSpace(main.Text()))

	content := b.String()
	if maxChars > 0 && len(content) > maxChars {
		content = content[:maxChars]
	}

	return &ScrapeResult{
		Content:     content,
		Title:       title,
		Description: description,
	}, nil
}

// collapseSpace squeezes runs of whitespace into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
