package jobs

import (
	"time"
)

type Reconciler struct {
	now func() time.Time
}

func NewReconciler(now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{now: now}
}

// Run merges a freshly fetched batch into the prior snapshot of the same
// category. Postings are matched by fingerprint: unknown ones are flagged new
// and stamped with the current time, known ones keep their first-seen time.
// Nothing in the prior snapshot is ever dropped. An empty batch returns the
// prior snapshot untouched.
func (r *Reconciler) Run(prior Snapshot, fresh []Posting, label string) Result {
	if len(fresh) == 0 {
		return Result{
			Snapshot: prior,
			Summary: Summary{
				CategoryID: prior.CategoryID,
				Label:      label,
				NewCount:   0,
				TotalCount: len(prior.Postings),
			},
			Preserved: true,
		}
	}

	firstSeen := make(map[string]*time.Time, len(prior.Postings))
	for _, p := range prior.Postings {
		firstSeen[p.Fingerprint()] = p.FirstSeenAt
	}

	now := r.now()

	merged := make([]Posting, 0, len(prior.Postings)+len(fresh))
	for _, p := range prior.Postings {
		p.IsNew = boolPtr(false)
		merged = append(merged, p)
	}

	for _, p := range fresh {
		seenAt, known := firstSeen[p.Fingerprint()]
		if known {
			p.IsNew = boolPtr(false)
			p.FirstSeenAt = copyTime(seenAt)
		} else {
			p.IsNew = boolPtr(true)
			p.FirstSeenAt = copyTime(&now)
		}
		merged = append(merged, p)
	}

	merged = dedupeKeepLast(merged)

	snapshot := Snapshot{CategoryID: prior.CategoryID, Postings: merged}
	return Result{
		Snapshot: snapshot,
		Summary:  Summarize(prior.CategoryID, label, merged),
	}
}

// dedupeKeepLast keeps the last occurrence of every fingerprint at its own
// position.
func dedupeKeepLast(postings []Posting) []Posting {
	lastIndex := make(map[string]int, len(postings))
	fingerprints := make([]string, len(postings))
	for i, p := range postings {
		fp := p.Fingerprint()
		fingerprints[i] = fp
		lastIndex[fp] = i
	}

	result := make([]Posting, 0, len(lastIndex))
	for i, p := range postings {
		if lastIndex[fingerprints[i]] == i {
			result = append(result, p)
		}
	}
	return result
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
