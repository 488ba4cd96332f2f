// Package classify decides whether a feed item is regional news and, if so, which
// category and sub-region it belongs to. Everything here is a pure function of the
// keyword tables and the item text.
package classify

import "strings"

// Table is one scored label: a name and the keywords that vote for it.
type Table struct {
	Name     string
	Keywords []string
}

// Rules bundles the keyword tables. The zero value classifies nothing; use Default.
type Rules struct {
	Regional        []string
	Categories      []Table
	Regions         []Table
	DefaultCategory string
	DefaultRegion   string
}

// Result is the outcome for one item. Category and Subregion are empty when the
// item is out of scope.
type Result struct {
	InScope   bool
	Category  string
	Subregion string
}

// Default returns the built-in Sarawak rules.
func Default() Rules {
	return Rules{
		Regional:        regionalKeywords,
		Categories:      categoryTables,
		Regions:         regionTables,
		DefaultCategory: DefaultCategory,
		DefaultRegion:   DefaultRegion,
	}
}

// Classify runs the scope, category and sub-region decisions for one item.
func (r Rules) Classify(title, snippet string, alwaysRelevant bool) Result {
	text := normalize(title, snippet)

	if !alwaysRelevant && !containsAny(text, r.Regional) {
		return Result{}
	}

	return Result{
		InScope:   true,
		Category:  r.category(text),
		Subregion: r.subregion(text),
	}
}

// category picks the table with the most keyword hits. A tie at the top, or no hits
// at all, yields the default category.
func (r Rules) category(text string) string {
	best, bestScore, tied := "", 0, false
	for _, t := range r.Categories {
		score := countHits(text, t.Keywords)
		switch {
		case score > bestScore:
			best, bestScore, tied = t.Name, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if bestScore == 0 || tied {
		return r.DefaultCategory
	}
	return best
}

// subregion picks the locality with the most hits; ties go to the locality listed
// first in the table.
func (r Rules) subregion(text string) string {
	best, bestScore := r.DefaultRegion, 0
	for _, t := range r.Regions {
		if score := countHits(text, t.Keywords); score > bestScore {
			best, bestScore = t.Name, score
		}
	}
	return best
}

func normalize(title, snippet string) string {
	return strings.ToLower(title + " " + snippet)
}

// containsAny is a plain substring test, so short keywords also match inside
// longer words.
func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// countHits counts distinct keywords present in text.
func countHits(text string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if k != "" && strings.Contains(text, k) {
			n++
		}
	}
	return n
}
