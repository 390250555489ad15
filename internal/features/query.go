package features

import "policy-rag/internal/models"

// QueryProfile records which domain signals a question asks about.
type QueryProfile struct {
	MentionsAmounts    bool
	MentionsPolicyRefs bool
}

// QueryAnalyzer derives a QueryProfile from question text.
type QueryAnalyzer struct {
	extractor  *Extractor
	amountCues *TermMatcher
	policyCues *TermMatcher
}

func NewQueryAnalyzer(vocab models.Vocabulary) *QueryAnalyzer {
	return &QueryAnalyzer{
		extractor:  NewExtractor(vocab),
		amountCues: NewTermMatcher(vocab.AmountQueryCues),
		policyCues: NewTermMatcher(vocab.PolicyQueryCues),
	}
}

// Analyze reports whether the question mentions monetary amounts or policy numbers,
// either literally or through a cue phrase such as "how much".
func (a *QueryAnalyzer) Analyze(question string) QueryProfile {
	rec := a.extractor.Extract(question, false)
	return QueryProfile{
		MentionsAmounts:    rec.Amounts > 0 || rec.Percentages > 0 || a.amountCues.Matches(question),
		MentionsPolicyRefs: rec.HasPolicyReferences() || a.policyCues.Matches(question),
	}
}
