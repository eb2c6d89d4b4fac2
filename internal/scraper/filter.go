package scraper

// FilterNew returns the candidate URLs whose external identifiers are not
// yet stored, preserving candidate order, plus the count dropped as
// already present. The existing-ID set is fetched once per run — a single
// bulk read traded against a small window of staleness.
func FilterNew(candidates []string, existing map[string]struct{}) (fresh []string, alreadyPresent int) {
	for _, url := range candidates {
		if _, ok := existing[url]; ok {
			alreadyPresent++
			continue
		}
		fresh = append(fresh, url)
	}
	return fresh, alreadyPresent
}
