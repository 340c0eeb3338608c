package web

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/adsift/internal/db"
	"github.com/hpungsan/adsift/internal/keywords"
)

// statusReport renders the live keyword state as markdown.
func statusReport(snap *keywords.Snapshot, mode string, latest *db.Run) string {
	var b strings.Builder

	b.WriteString("## Keyword set\n\n")
	if snap == nil {
		b.WriteString("The keyword set is still loading. Sponsored messages are already hidden; " +
			"keyword matching starts once the first build finishes.\n\n")
	} else {
		fmt.Fprintf(&b, "- Version: %d\n", snap.Version)
		fmt.Fprintf(&b, "- Keywords: %s\n", formatCount(snap.Set.Len()))
		fmt.Fprintf(&b, "- Published: %s\n", snap.PublishedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "- Fetch mode: %s\n\n", mode)

		if len(snap.Sources) > 0 {
			b.WriteString("| Source | Status | Keywords | Took |\n")
			b.WriteString("|---|---|---:|---:|\n")
			for _, s := range snap.Sources {
				fmt.Fprintf(&b, "| %s | %s | %d | %d ms |\n", mdCode(s.Source), s.Status, s.Keywords, s.DurationMS)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Latest fetch run\n\n")
	if latest == nil {
		b.WriteString("No fetch runs recorded.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "[%s](/history/%s) finished **%s** at %s with %d keywords in %d ms.\n",
		latest.ID, latest.ID, latest.Status, formatTime(latest.StartedAt), latest.Keywords, latest.DurationMS)
	if latest.Error != nil {
		fmt.Fprintf(&b, "\n> %s\n", mdEscape(*latest.Error))
	}
	return b.String()
}

// mdCode wraps s in a code span that is safe inside a table cell.
func mdCode(s string) string {
	s = strings.ReplaceAll(s, "`", "%60")
	s = strings.ReplaceAll(s, "|", `\|`)
	return "`" + s + "`"
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"<", `\<`, ">", `\>`, "#", `\#`, "|", `\|`, "\n", " ",
)

// mdEscape neutralizes markdown syntax in free text.
func mdEscape(s string) string {
	return mdEscaper.Replace(s)
}
