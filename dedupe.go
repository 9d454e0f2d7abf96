package fathom

// DedupeResults keeps the first occurrence of each distinct text, preserving
// order. Searchers apply it between iterations and before summarization.
// The input slice is not modified.
func DedupeResults(results []RetrievalResult) []RetrievalResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]RetrievalResult, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.Text]; ok {
			continue
		}
		seen[r.Text] = struct{}{}
		out = append(out, r)
	}
	return out
}
