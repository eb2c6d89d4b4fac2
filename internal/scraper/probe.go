package scraper

import "github.com/PuerkitoBio/goquery"

// probeStrategy is one way of resolving a related element from a base
// selection. It returns an empty selection on a miss.
type probeStrategy func(base *goquery.Selection) *goquery.Selection

// probeFirst tries strategies in order and returns the first non-empty
// resolution, or nil when every strategy misses. Brittle-selector lookups
// go through this so fallbacks stay an ordered list instead of nested
// conditionals.
func probeFirst(base *goquery.Selection, strategies ...probeStrategy) *goquery.Selection {
	for _, strategy := range strategies {
		if found := strategy(base); found != nil && found.Length() > 0 {
			return found
		}
	}
	return nil
}
