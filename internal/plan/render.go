package plan

import (
	"fmt"
	"strings"

	"github.com/OWNER/escalator/internal/timeutil"
)

// RenderEntries renders forecast entries as plain text, one offset
// heading per bucket.
func RenderEntries(entries []Entry) string {
	if len(entries) == 0 {
		return "nothing planned\n"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s:\n", timeutil.FormatApprox(e.Offset))
		for _, line := range e.Lines {
			fmt.Fprintf(&b, "  - %s\n", line)
		}
	}
	return b.String()
}

// RenderLog renders the merged log view as plain text with timestamps.
func RenderLog(records []Record) string {
	if len(records) == 0 {
		return "no log records\n"
	}
	var b strings.Builder
	for _, r := range records {
		author := ""
		if r.Author != nil {
			name := r.Author.Username
			if name == "" {
				name = r.Author.ID
			}
			author = " [" + name + "]"
		}
		fmt.Fprintf(&b, "%s%s %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"), author, r.Line)
	}
	return b.String()
}
