package api

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/job-comb/app/database"
	"github.com/lysyi3m/job-comb/app/jobs"
)

// Generator renders a category's postings as an RSS 2.0 channel.
type Generator struct {
	baseURL string
	port    string
	version string
}

func NewGenerator(baseURL, port, version string) *Generator {
	return &Generator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		port:    port,
		version: version,
	}
}

func (g *Generator) Run(category *jobs.Category, records []database.PostingRecord) (string, error) {
	if category == nil {
		return "", fmt.Errorf("category is required")
	}

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	selfLink := g.selfLink(category.ID)

	g.writeElement(&buf, "title", category.Label, 4)
	g.writeElement(&buf, "link", selfLink, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Latest %s postings", category.Label), 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().In(time.Local)
	if len(records) > 0 {
		if published, ok := itemDate(records[0].Posting); ok {
			lastBuildDate = published
		}
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Job-Comb/%s", g.version), 4)

	for _, record := range records {
		g.writeItem(&buf, record)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) selfLink(categoryID string) string {
	if g.baseURL != "" {
		return fmt.Sprintf("%s/feeds/%s", g.baseURL, categoryID)
	}
	return fmt.Sprintf("http://localhost:%s/feeds/%s", g.port, categoryID)
}

func (g *Generator) writeItem(buf *bytes.Buffer, record database.PostingRecord) {
	posting := record.Posting

	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	buf.WriteString(html.EscapeString(record.Fingerprint))
	buf.WriteString("</guid>\n")

	title := posting.Title()
	if posting.New() {
		title = "[NEW] " + title
	}
	g.writeElement(buf, "title", title, 6)

	link := posting.String("pc_job_url")
	if !g.isURL(link) {
		link = posting.String("wap_job_url")
	}
	if g.isURL(link) {
		g.writeElement(buf, "link", link, 6)
	}

	description := posting.String("description")
	if description == "" {
		description = "No description available"
	}
	g.writeElement(buf, "description", description, 6)

	if requirement := posting.String("requirement"); requirement != "" {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(requirement, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	if published, ok := itemDate(posting); ok {
		g.writeElement(buf, "pubDate", published.Format(time.RFC1123Z), 6)
	}

	for _, key := range []string{"job_category", "city_list"} {
		for _, value := range strings.Split(posting.String(key), ",") {
			if value = strings.TrimSpace(value); value != "" {
				g.writeElement(buf, "category", value, 6)
			}
		}
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	buf.WriteString(html.EscapeString(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return (len(s) > 7 && s[:7] == "http://") || (len(s) > 8 && s[:8] == "https://")
}

// itemDate prefers the source publish time and falls back to first seen.
func itemDate(p jobs.Posting) (time.Time, bool) {
	if published, ok := p.PublishTime(); ok {
		return published, true
	}
	if p.FirstSeenAt != nil {
		return p.FirstSeenAt.In(time.Local), true
	}
	return time.Time{}, false
}
