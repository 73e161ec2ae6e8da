// Package safety gates outbound message text before it is stored.
package safety

import "strings"

// ReasonPrefix opens every rejection reason produced by KeywordFilter.
const ReasonPrefix = "Message may contain patient-identifiable information: "

// defaultTerms are matched as lowercase substrings with no word-boundary check.
var defaultTerms = []string{
	"nhs number",
	"patient id",
	"mrn",
	"medical record",
	"hospital number",
	"diagnosis",
	"prescription",
	"medication",
	"treatment",
	"symptoms",
	"date of birth",
	"dob",
	"home address",
	"postcode",
}

// Verdict is the outcome of classifying a piece of text.
type Verdict struct {
	Safe   bool
	Reason string
}

// ContentClassifier decides whether text may be persisted and delivered.
// Implementations must be synchronous and free of side effects.
type ContentClassifier interface {
	Evaluate(text string) Verdict
}

// KeywordFilter rejects text containing any term from a fixed list.
type KeywordFilter struct {
	terms []string
}

// NewKeywordFilter returns a filter over the built-in term list.
func NewKeywordFilter() *KeywordFilter {
	return &KeywordFilter{terms: defaultTerms}
}

// Terms returns a copy of the term list in match order.
func (f *KeywordFilter) Terms() []string {
	out := make([]string, len(f.terms))
	copy(out, f.terms)
	return out
}

// Evaluate matches text case-insensitively against every term. The reason
// lists matched terms in list order, comma-joined.
func (f *KeywordFilter) Evaluate(text string) Verdict {
	lower := strings.ToLower(text)

	var matched []string
	for _, term := range f.terms {
		if strings.Contains(lower, term) {
			matched = append(matched, term)
		}
	}
	if len(matched) == 0 {
		return Verdict{Safe: true}
	}
	return Verdict{Safe: false, Reason: ReasonPrefix + strings.Join(matched, ", ")}
}

var _ ContentClassifier = (*KeywordFilter)(nil)
