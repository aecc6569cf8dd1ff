package feeds

import (
	"strings"
	"time"
	"unicode"

	"github.com/DeuxFois/papervault/internal/frontmatter"
)

// Columns returns the union of item keys in first-seen order.
func Columns(items []frontmatter.Map) []string {
	seen := map[string]bool{}
	var columns []string
	for _, item := range items {
		for _, key := range item.Keys() {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	return columns
}

// MarkdownTable renders items as a table with one column per key. Rows keep
// input order; missing keys render as empty cells.
func MarkdownTable(items []frontmatter.Map) string {
	columns := Columns(items)
	if len(columns) == 0 {
		return ""
	}

	var b strings.Builder
	headers := make([]string, len(columns))
	separators := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = escapeCell(headerLabel(c))
		separators[i] = "---"
	}
	writeRow(&b, headers)
	writeRow(&b, separators)
	for _, item := range items {
		cells := make([]string, len(columns))
		for i, c := range columns {
			if v, ok := item.Get(c); ok {
				cells[i] = escapeCell(v.AsString())
			}
		}
		writeRow(&b, cells)
	}
	return b.String()
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}

// headerLabel turns `published_at` into `Published At`.
func headerLabel(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func escapeCell(value string) string {
	value = strings.ReplaceAll(value, "\r\n", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", `\|`)
}

// RenderFeedNote builds a feed note: frontmatter describing the import
// followed by the item table.
func RenderFeedNote(name, source string, items []frontmatter.Map, updated time.Time) (string, error) {
	var meta frontmatter.Map
	meta.Set("type", frontmatter.String("feed"))
	meta.Set("title", frontmatter.String(name))
	if source != "" {
		meta.Set("source", frontmatter.String(source))
	}
	meta.Set("items", frontmatter.Number(float64(len(items))))
	meta.Set("updated", frontmatter.String(updated.Format(time.RFC3339)))

	body := "# " + name + "\n\n"
	if table := MarkdownTable(items); table != "" {
		body += table
	} else {
		body += "_No items._\n"
	}
	return frontmatter.Compose(meta, body)
}
