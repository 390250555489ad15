// Package features extracts insurance-specific lexical features from chunk
// and query text. Extraction is a pure function of the text and the
// vocabulary: identical input always yields an identical FeatureRecord.
package features

import (
	"regexp"
	"sort"
	"strings"

	"policy-rag/internal/models"
)

var (
	policyRefRe  = regexp.MustCompile(models.PolicyRefRegex)
	percentRe    = regexp.MustCompile(models.PercentageRegex)
	dateRe       = regexp.MustCompile(models.DateRegex)
	amountRe     = regexp.MustCompile(models.AmountRegex)
	listNumberRe = regexp.MustCompile(models.ListNumberRegex)
)

// TermMatcher counts case-insensitive word-prefix matches of a term list.
type TermMatcher struct {
	re *regexp.Regexp
}

// NewTermMatcher compiles terms into one alternation, longest term first so
// that multi-word phrases win over their single-word prefixes.
func NewTermMatcher(terms []string) *TermMatcher {
	cleaned := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		cleaned = append(cleaned, t)
	}
	if len(cleaned) == 0 {
		return &TermMatcher{}
	}
	sort.SliceStable(cleaned, func(i, j int) bool {
		if len(cleaned[i]) != len(cleaned[j]) {
			return len(cleaned[i]) > len(cleaned[j])
		}
		return cleaned[i] < cleaned[j]
	})
	quoted := make([]string, len(cleaned))
	for i, t := range cleaned {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(t), " ", `\s+`)
	}
	return &TermMatcher{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\w*`)}
}

// Count returns the number of non-overlapping matches in text.
func (m *TermMatcher) Count(text string) int {
	if m == nil || m.re == nil {
		return 0
	}
	return len(m.re.FindAllStringIndex(text, -1))
}

// Matches reports whether text contains at least one term.
func (m *TermMatcher) Matches(text string) bool {
	return m != nil && m.re != nil && m.re.MatchString(text)
}

// Extractor computes FeatureRecords.
type Extractor struct {
	coverage  *TermMatcher
	exclusion *TermMatcher
	legal     *TermMatcher
}

// NewExtractor builds an Extractor over the given vocabulary.
func NewExtractor(vocab models.Vocabulary) *Extractor {
	return &Extractor{
		coverage:  NewTermMatcher(vocab.CoverageTerms),
		exclusion: NewTermMatcher(vocab.ExclusionTerms),
		legal:     NewTermMatcher(vocab.LegalTerms),
	}
}

// Extract scans text once per pattern family and returns its features.
// isTable is copied into HasTableData.
func (e *Extractor) Extract(text string, isTable bool) models.FeatureRecord {
	rec := models.FeatureRecord{
		CoverageTerms:  e.coverage.Count(text),
		ExclusionTerms: e.exclusion.Count(text),
		LegalTerms:     e.legal.Count(text),
		WordCount:      len(strings.Fields(text)),
		HasTableData:   isTable,
	}

	rec.PolicyReferences = uniqueInOrder(policyRefRe.FindAllString(text, -1))

	// Blank out everything that is numeric but not an amount before counting amounts.
	rest := policyRefRe.ReplaceAllString(text, " ")
	rest = dateRe.ReplaceAllString(rest, " ")
	rec.Percentages = len(percentRe.FindAllStringIndex(rest, -1))
	rest = percentRe.ReplaceAllString(rest, " ")
	rest = listNumberRe.ReplaceAllString(rest, " ")
	rec.Amounts = len(amountRe.FindAllStringIndex(rest, -1))

	return rec
}

func uniqueInOrder(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}
