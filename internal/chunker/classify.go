package chunker

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"policy-rag/internal/features"
	"policy-rag/internal/models"
)

// Classifier assigns a SectionType by counting vocabulary matches per category.
type Classifier struct {
	matchers map[models.SectionType]*features.TermMatcher
}

// NewClassifier compiles the per-section vocabularies. Unknown section names are ignored.
func NewClassifier(vocab models.Vocabulary) *Classifier {
	c := &Classifier{matchers: make(map[models.SectionType]*features.TermMatcher, len(vocab.Sections))}
	for name, terms := range vocab.Sections {
		s, err := models.ParseSectionType(name)
		if err != nil || s == models.SectionGeneral {
			log.Warn().Str("section", name).Msg("Ignoring vocabulary for unknown section")
			continue
		}
		c.matchers[s] = features.NewTermMatcher(terms)
	}
	return c
}

// Scores returns the match count of every non-general section.
func (c *Classifier) Scores(text string) map[models.SectionType]int {
	scores := make(map[models.SectionType]int, len(models.SectionPriority))
	for _, s := range models.SectionPriority {
		scores[s] = c.matchers[s].Count(text)
	}
	return scores
}

// Classify returns the section with the most matches. Ties go to the section
// earlier in models.SectionPriority; no match at all yields SectionGeneral.
func (c *Classifier) Classify(text string) models.SectionType {
	best, bestScore := models.SectionGeneral, 0
	for _, s := range models.SectionPriority {
		if n := c.matchers[s].Count(text); n > bestScore {
			best, bestScore = s, n
		}
	}
	return best
}

const (
	maxHeaderWords = 10
	maxHeaderChars = 100
	minCapsLetters = 4
)

var numberedHeaderRe = regexp.MustCompile(models.NumberedHeaderRegex)

// HeaderDetector recognises section-header-like lines.
type HeaderDetector struct {
	known *regexp.Regexp
}

func NewHeaderDetector(vocab models.Vocabulary) *HeaderDetector {
	h := &HeaderDetector{}
	quoted := make([]string, 0, len(vocab.Headers))
	for _, hdr := range vocab.Headers {
		hdr = strings.TrimSpace(hdr)
		if hdr == "" {
			continue
		}
		quoted = append(quoted, strings.ReplaceAll(regexp.QuoteMeta(hdr), " ", `\s+`))
	}
	if len(quoted) == 0 {
		return h
	}
	h.known = regexp.MustCompile(`(?i)^(?:(?:section|part|article)\s+)?(?:\d+(?:\.\d+)*\s*[.:)-]?\s*|[ivx]+[.)]\s*|[a-z][.)]\s*)?(?:` +
		strings.Join(quoted, "|") + `)\s*[:.]?$`)
	return h
}

// IsHeader reports whether line looks like a section header: a short line that
// is upper-case, numbered like "2.1 Exclusions", or one of the known headers.
func (h *HeaderDetector) IsHeader(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > maxHeaderChars {
		return false
	}
	words := strings.Fields(line)
	if len(words) > maxHeaderWords {
		return false
	}
	if h.known != nil && h.known.MatchString(line) {
		return true
	}
	if isUpperCaseLine(line) {
		return true
	}
	return numberedHeaderRe.MatchString(line) && len(words) <= 8 && !strings.HasSuffix(line, ".")
}

func isUpperCaseLine(line string) bool {
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= minCapsLetters
}
