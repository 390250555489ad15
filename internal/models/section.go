package models

import "fmt"

// SectionType is the policy-document role of a chunk.
type SectionType int

const (
	SectionGeneral SectionType = iota
	SectionCoverage
	SectionExclusions
	SectionDefinitions
	SectionConditions
	SectionPremium
	SectionClaims
	SectionSchedule
)

// SectionPriority is the tie-break order used by the classifier, highest first.
var SectionPriority = []SectionType{
	SectionCoverage,
	SectionExclusions,
	SectionDefinitions,
	SectionConditions,
	SectionPremium,
	SectionClaims,
	SectionSchedule,
}

var sectionNames = map[SectionType]string{
	SectionGeneral:     "general",
	SectionCoverage:    "coverage",
	SectionExclusions:  "exclusions",
	SectionDefinitions: "definitions",
	SectionConditions:  "conditions",
	SectionPremium:     "premium",
	SectionClaims:      "claims",
	SectionSchedule:    "schedule",
}

func (s SectionType) String() string {
	if name, ok := sectionNames[s]; ok {
		return name
	}
	return sectionNames[SectionGeneral]
}

// ParseSectionType maps a section name to its SectionType.
func ParseSectionType(name string) (SectionType, error) {
	for s, n := range sectionNames {
		if n == name {
			return s, nil
		}
	}
	return SectionGeneral, fmt.Errorf("unknown section type: %q", name)
}

// AllSectionTypes lists every section type, general last.
func AllSectionTypes() []SectionType {
	return append(append([]SectionType{}, SectionPriority...), SectionGeneral)
}

func (s SectionType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SectionType) UnmarshalText(b []byte) error {
	v, err := ParseSectionType(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
