package planner

import (
	"strings"
	"unicode"
)

// numericVocabulary marks questions that ask about quantities, comparisons,
// or trends. Such questions favor table and chart units.
var numericVocabulary = map[string]struct{}{
	"how many": {}, "how much": {},
	"average": {}, "mean": {}, "median": {}, "total": {}, "sum": {},
	"percent": {}, "percentage": {}, "ratio": {}, "rate": {},
	"growth": {}, "increase": {}, "decrease": {}, "decline": {}, "drop": {},
	"compare": {}, "compared": {}, "comparison": {}, "versus": {}, "vs": {},
	"trend": {}, "over time": {},
	"highest": {}, "lowest": {}, "largest": {}, "smallest": {},
	"most": {}, "least": {}, "more": {}, "fewer": {}, "less": {},
	"number": {}, "count": {}, "figure": {}, "figures": {},
	"q1": {}, "q2": {}, "q3": {}, "q4": {}, "quarter": {}, "quarterly": {},
}

// wantsNumeric reports whether the question uses numeric or comparison
// vocabulary, including literal digits or a percent sign.
func wantsNumeric(question string) bool {
	lower := strings.ToLower(question)
	if strings.ContainsRune(lower, '%') {
		return true
	}
	for _, r := range lower {
		if unicode.IsDigit(r) {
			return true
		}
	}

	// Check two-word phrases first, then single tokens.
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		if _, ok := numericVocabulary[w]; ok {
			return true
		}
		if i+1 < len(words) {
			if _, ok := numericVocabulary[w+" "+words[i+1]]; ok {
				return true
			}
		}
	}
	return false
}
