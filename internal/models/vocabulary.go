package models

// Vocabulary holds the keyword lists used for section classification, header
// detection, feature extraction and query analysis. Terms are matched
// case-insensitively as word prefixes, so "exclu" also matches "excluded".
type Vocabulary struct {
	Sections        map[string][]string `yaml:"sections" koanf:"sections"`
	Headers         []string            `yaml:"headers" koanf:"headers"`
	CoverageTerms   []string            `yaml:"coverage_terms" koanf:"coverage_terms"`
	ExclusionTerms  []string            `yaml:"exclusion_terms" koanf:"exclusion_terms"`
	LegalTerms      []string            `yaml:"legal_terms" koanf:"legal_terms"`
	AmountQueryCues []string            `yaml:"amount_query_cues" koanf:"amount_query_cues"`
	PolicyQueryCues []string            `yaml:"policy_query_cues" koanf:"policy_query_cues"`
}

// DefaultVocabulary returns the built-in insurance vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Sections: map[string][]string{
			"coverage":    {"coverage", "cover", "covered", "insured", "benefit", "sum insured", "indemnif"},
			"exclusions":  {"exclusion", "exclud", "not covered", "not payable", "exception"},
			"definitions": {"definition", "defined", "means", "shall mean", "refers to"},
			"conditions":  {"condition", "terms", "provision", "obligation", "warrant"},
			"premium":     {"premium", "payment", "grace period", "instal", "cost"},
			"claims":      {"claim", "claimant", "notification", "intimation", "reimburse", "cashless"},
			"schedule":    {"schedule", "table of benefits", "summary", "sub-limit", "limit of"},
		},
		Headers: []string{
			"definitions", "exclusions", "coverage", "what is covered", "what is not covered",
			"benefits", "conditions", "general conditions", "special conditions", "terms and conditions",
			"premium", "premium payment", "claims", "claim procedure", "claims procedure",
			"schedule", "schedule of benefits", "endorsements", "policy schedule",
		},
		CoverageTerms: []string{
			"coverage", "covered", "sum insured", "benefit", "policyholder", "beneficiary",
			"endorsement", "rider", "indemnity", "deductible", "premium", "claim",
		},
		ExclusionTerms: []string{
			"exclusion", "excluded", "not covered", "exception", "limitation",
			"waiting period", "pre-existing",
		},
		LegalTerms: []string{
			"shall", "must", "required", "obligation", "liability", "hereby", "pursuant",
			"subrogation", "contestability", "incontestability", "underwriting",
		},
		AmountQueryCues: []string{
			"how much", "amount", "limit", "cost", "premium", "sum insured", "deductible",
			"percentage", "price", "fee", "maximum", "minimum",
		},
		PolicyQueryCues: []string{
			"policy number", "policy no", "reference number", "uin", "certificate number",
		},
	}
}
