package api

import (
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/job-comb/app/database"
	"github.com/lysyi3m/job-comb/app/jobs"
)

func boolRef(b bool) *bool {
	return &b
}

func TestGenerateRSS(t *testing.T) {
	generator := NewGenerator("", "8080", "test")

	category := &jobs.Category{ID: "campus", Label: "Campus"}
	firstSeen := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	records := []database.PostingRecord{
		{
			CategoryID:  "campus",
			Fingerprint: "fp-1",
			Posting: jobs.Posting{
				Fields: jobs.Fields{
					"title":        "Backend Engineer",
					"description":  "Build services",
					"requirement":  "Go & SQL",
					"publish_time": "2024-05-01 10:00:00",
					"pc_job_url":   "https://jobs.example.com/1",
					"job_category": "R&D",
					"city_list":    "Beijing, Shanghai",
				},
				FirstSeenAt: &firstSeen,
				IsNew:       boolRef(true),
			},
		},
		{
			CategoryID:  "campus",
			Fingerprint: "fp-2",
			Posting: jobs.Posting{
				Fields:      jobs.Fields{"title": "Designer"},
				FirstSeenAt: &firstSeen,
				IsNew:       boolRef(false),
			},
		},
	}

	rss, err := generator.Run(category, records)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(rss, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Error("RSS should contain XML declaration")
	}

	if !strings.Contains(rss, `xmlns:content="http://purl.org/rss/1.0/modules/content/"`) {
		t.Error("RSS should contain content namespace")
	}

	if !strings.Contains(rss, "<title>Campus</title>") {
		t.Error("RSS should contain category label as channel title")
	}

	if !strings.Contains(rss, `<atom:link href="http://localhost:8080/feeds/campus" rel="self" type="application/rss+xml" />`) {
		t.Error("RSS should contain atom:link self reference")
	}

	if !strings.Contains(rss, "<generator>Job-Comb/test</generator>") {
		t.Error("RSS should contain generator version")
	}

	if !strings.Contains(rss, "<title>[NEW] Backend Engineer</title>") {
		t.Error("New postings should be marked in the title")
	}

	if !strings.Contains(rss, "<title>Designer</title>") {
		t.Error("Seen postings should keep the plain title")
	}

	if !strings.Contains(rss, `<guid isPermaLink="false">fp-1</guid>`) {
		t.Error("RSS should use the fingerprint as guid")
	}

	if !strings.Contains(rss, "<link>https://jobs.example.com/1</link>") {
		t.Error("RSS should contain the posting link")
	}

	if !strings.Contains(rss, "<content:encoded><![CDATA[Go & SQL]]></content:encoded>") {
		t.Error("RSS should carry the requirement as content")
	}

	if !strings.Contains(rss, "<category>R&amp;D</category>") {
		t.Error("RSS should contain an escaped job category")
	}

	if !strings.Contains(rss, "<category>Beijing</category>") || !strings.Contains(rss, "<category>Shanghai</category>") {
		t.Error("RSS should split cities into categories")
	}

	if !strings.Contains(rss, "<description>No description available</description>") {
		t.Error("Postings without description should get a placeholder")
	}

	if strings.Count(rss, "<item>") != 2 {
		t.Errorf("Expected 2 items, got %d", strings.Count(rss, "<item>"))
	}
}

func TestGenerateUsesFirstSeenWithoutPublishTime(t *testing.T) {
	generator := NewGenerator("https://jobs.example.com/", "8080", "test")

	firstSeen := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	records := []database.PostingRecord{{
		Fingerprint: "fp-1",
		Posting: jobs.Posting{
			Fields:      jobs.Fields{"title": "Analyst"},
			FirstSeenAt: &firstSeen,
		},
	}}

	rss, err := generator.Run(&jobs.Category{ID: "intern", Label: "Intern"}, records)
	if err != nil {
		t.Fatal(err)
	}

	expected := "<pubDate>" + firstSeen.In(time.Local).Format(time.RFC1123Z) + "</pubDate>"
	if !strings.Contains(rss, expected) {
		t.Errorf("Expected %s in RSS", expected)
	}

	if !strings.Contains(rss, `<atom:link href="https://jobs.example.com/feeds/intern"`) {
		t.Error("Base URL should be used for the self link without a trailing slash")
	}
}

func TestGenerateWithEmptyRecords(t *testing.T) {
	generator := NewGenerator("", "8080", "test")

	rss, err := generator.Run(&jobs.Category{ID: "empty", Label: "Empty"}, nil)
	if err != nil {
		t.Fatalf("Expected no error with empty records, got: %v", err)
	}

	if strings.Contains(rss, "<item>") {
		t.Error("Empty RSS should not contain any items")
	}

	if !strings.Contains(rss, "</channel>") || !strings.Contains(rss, "</rss>") {
		t.Error("Empty RSS should still be closed properly")
	}
}

func TestGenerateWithSpecialCharacters(t *testing.T) {
	generator := NewGenerator("", "8080", "test")

	records := []database.PostingRecord{{
		Fingerprint: "fp",
		Posting: jobs.Posting{
			Fields: jobs.Fields{
				"title":       `Engineer <C++> & "Go"`,
				"requirement": "ends with ]]> marker",
			},
		},
	}}

	rss, err := generator.Run(&jobs.Category{ID: "x", Label: "X & Y"}, records)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(rss, "<title>X &amp; Y</title>") {
		t.Error("Channel title should be escaped")
	}

	if !strings.Contains(rss, "Engineer &lt;C++&gt; &amp; &#34;Go&#34;") {
		t.Error("Item title should be escaped")
	}

	if strings.Contains(rss, "ends with ]]> marker") {
		t.Error("CDATA terminator inside content should be split")
	}
}

func TestGenerateRequiresCategory(t *testing.T) {
	if _, err := NewGenerator("", "8080", "test").Run(nil, nil); err == nil {
		t.Error("Expected an error without a category")
	}
}

func TestIsURLMethod(t *testing.T) {
	generator := NewGenerator("", "8080", "test")

	tests := []struct {
		input    string
		expected bool
	}{
		{"", false},
		{"http://example.com", true},
		{"https://example.com", true},
		{"ftp://example.com", false},
		{"not-a-url", false},
		{"http://", false},
	}

	for _, test := range tests {
		result := generator.isURL(test.input)
		if result != test.expected {
			t.Errorf("For input '%s', expected %v, got %v", test.input, test.expected, result)
		}
	}
}
