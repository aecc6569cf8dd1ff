package papers

import (
	"fmt"
	"strings"
)

// RenderIndex renders records as markdown: one heading and table per sector,
// in the order given. Output depends only on its input.
func RenderIndex(records []Record) string {
	var b strings.Builder
	b.WriteString("# Paper Index\n\n")
	if len(records) == 0 {
		b.WriteString("_No papers indexed yet._\n")
		return b.String()
	}

	groups := groupBySector(records)
	fmt.Fprintf(&b, "%d papers in %d sectors.\n", len(records), len(groups))
	for _, group := range groups {
		fmt.Fprintf(&b, "\n## %s\n\n", group.sector)
		b.WriteString("| Title | Authors | Year | Tags |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, r := range group.records {
			tags := r.Tags()
			for i, tag := range tags {
				tags[i] = "#" + tag
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				noteLink(r),
				escapeCell(strings.Join(r.Authors(), ", ")),
				escapeCell(r.Year()),
				escapeCell(strings.Join(tags, " ")),
			)
		}
	}
	return b.String()
}

type sectorGroup struct {
	sector  string
	records []Record
}

func groupBySector(records []Record) []sectorGroup {
	var groups []sectorGroup
	index := map[string]int{}
	for _, r := range records {
		i, ok := index[r.Sector]
		if !ok {
			i = len(groups)
			index[r.Sector] = i
			groups = append(groups, sectorGroup{sector: r.Sector})
		}
		groups[i].records = append(groups[i].records, r)
	}
	return groups
}

func noteLink(r Record) string {
	title := r.Title()
	if title == r.Basename {
		return "[[" + r.Basename + "]]"
	}
	return "[[" + r.Basename + `\|` + escapeCell(title) + "]]"
}

// escapeCell makes a value safe inside a markdown table cell.
func escapeCell(value string) string {
	value = strings.ReplaceAll(value, "\r\n", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", `\|`)
}
