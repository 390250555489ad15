package models

const (
	NumberedHeaderRegex = `^\d+(\.\d+)*\.?\s+[A-Z]`
	TableMarkerRegex    = `(?i)^(table|schedule of benefits|schedule)\s*[\d:.-]*`
	PolicyRefRegex      = `\b[A-Z]{2,}[-/]?\d{6,}\b`
	PercentageRegex     = `\d+(?:\.\d+)?\s?%`
	DateRegex           = `\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`
	AmountRegex         = `(?i)(?:[$₹€£]\s?|\b(?:rs\.?|inr|usd|eur)\s?)?\b\d[\d,]*(?:\.\d+)?\b`
	ListNumberRegex     = `(?m)^\s*\d+(?:\.\d+)*[.)]\s`
	ContextSeparator    = "\n---\n"
	ThinkTag            = `(?s)<think>.*?</think>`
	NoContextAnswer     = "No relevant information found in the policy documents."
)

var (
	AnswerPromptTemplate = `You are an insurance policy assistant. Answer the question using only the policy excerpts below.
If the excerpts do not contain the answer, say so. Quote amounts, periods and conditions exactly.

<context>
%s
</context>

Question: %s
`
)
