package jobs

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type Message struct {
	Title    string
	Body     string
	HasNew   bool
	NewCount int
	Total    int
}

// BuildMessage turns per-category summaries into a notification. With new
// postings only the categories that gained something are listed, otherwise
// every category is listed with its current size.
func BuildMessage(summaries []Summary, now time.Time) Message {
	printer := message.NewPrinter(language.English)

	totalNew, total := 0, 0
	for _, s := range summaries {
		totalNew += s.NewCount
		total += s.TotalCount
	}

	var lines []string
	for _, s := range summaries {
		if totalNew > 0 {
			if s.NewCount > 0 {
				lines = append(lines, printer.Sprintf("   • %s: +%d, %d total", s.Label, s.NewCount, s.TotalCount))
			}
		} else {
			lines = append(lines, printer.Sprintf("   • %s: %d total", s.Label, s.TotalCount))
		}
	}

	var b strings.Builder
	msg := Message{HasNew: totalNew > 0, NewCount: totalNew, Total: total}

	if msg.HasNew {
		msg.Title = "New postings found"
		b.WriteString(printer.Sprintf("Found %d new postings\n", totalNew))
		b.WriteString(printer.Sprintf("%d postings tracked\n", total))
		b.WriteString("Time: " + now.Format("15:04") + "\n\n")
		b.WriteString("By category:\n")
	} else {
		msg.Title = "No new postings"
		b.WriteString("Nothing new this time\n")
		b.WriteString(printer.Sprintf("%d postings tracked\n", total))
		b.WriteString("Time: " + now.Format("15:04") + "\n\n")
		b.WriteString("Current totals:\n")
	}
	b.WriteString(strings.Join(lines, "\n"))

	msg.Body = b.String()
	return msg
}
