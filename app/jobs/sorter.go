package jobs

import (
	"slices"
)

// Sort orders postings for display: new first, then most recently published.
// When any posting lacks the new flag only the publish time is used. The
// sort is stable and the input slice is left untouched.
func Sort(postings []Posting) []Posting {
	sorted := slices.Clone(postings)

	byNew := true
	for _, p := range sorted {
		if p.IsNew == nil {
			byNew = false
			break
		}
	}

	slices.SortStableFunc(sorted, func(a, b Posting) int {
		if byNew && *a.IsNew != *b.IsNew {
			if *a.IsNew {
				return -1
			}
			return 1
		}
		return comparePublishDesc(a, b)
	})

	return sorted
}

func comparePublishDesc(a, b Posting) int {
	ta, okA := a.PublishTime()
	tb, okB := b.PublishTime()
	switch {
	case okA && okB:
		return tb.Compare(ta)
	case okA:
		return -1
	case okB:
		return 1
	}
	return 0
}

// Summarize counts new and total postings of a snapshot.
func Summarize(categoryID, label string, postings []Posting) Summary {
	newCount := 0
	for _, p := range postings {
		if p.New() {
			newCount++
		}
	}
	return Summary{
		CategoryID: categoryID,
		Label:      label,
		NewCount:   newCount,
		TotalCount: len(postings),
	}
}
