package rag

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// EvalCase is one labelled question.
type EvalCase struct {
	Query            string   `yaml:"query" json:"query"`
	Category         string   `yaml:"category,omitempty" json:"category,omitempty"`
	ExpectedSections []string `yaml:"expected_sections" json:"expected_sections"`
	ExpectedKeywords []string `yaml:"expected_keywords" json:"expected_keywords"`
}

type EvalResult struct {
	Query        string  `json:"query"`
	Category     string  `json:"category,omitempty"`
	Precision    float64 `json:"precision"`
	Recall       float64 `json:"recall"`
	F1           float64 `json:"f1_score"`
	ResultsCount int     `json:"results_count"`
	TopScore     float64 `json:"top_score"`
}

type MetricSummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

type EvalReport struct {
	TotalQueries int           `json:"total_queries"`
	Precision    MetricSummary `json:"precision"`
	Recall       MetricSummary `json:"recall"`
	F1           MetricSummary `json:"f1_score"`
	Results      []EvalResult  `json:"detailed_results"`
}

// LoadEvalCases reads a YAML list of cases.
func LoadEvalCases(path string) ([]EvalCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading eval cases: %w", err)
	}
	var cases []EvalCase
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parsing eval cases %s: %w", path, err)
	}
	return cases, nil
}

// Evaluate runs every case through Query with topK results and scores the
// hits. A result is relevant when its section is expected or its content
// contains an expected keyword.
func (s *Service) Evaluate(ctx context.Context, cases []EvalCase, topK int) (EvalReport, error) {
	report := EvalReport{TotalQueries: len(cases), Results: make([]EvalResult, 0, len(cases))}
	for i, c := range cases {
		results, err := s.Query(ctx, c.Query, topK, nil)
		if err != nil {
			return report, fmt.Errorf("evaluating %q: %w", c.Query, err)
		}

		relevant := 0
		for _, r := range results {
			if isRelevant(r.Metadata.SectionType.String(), r.Content, c) {
				relevant++
			}
		}
		er := EvalResult{Query: c.Query, Category: c.Category, ResultsCount: len(results)}
		if len(results) > 0 {
			er.TopScore = results[0].SimilarityScore
			er.Precision = float64(relevant) / float64(len(results))
			er.Recall = min(float64(relevant)/float64(max(len(c.ExpectedSections)+len(c.ExpectedKeywords), 1)), 1)
			if er.Precision+er.Recall > 0 {
				er.F1 = 2 * er.Precision * er.Recall / (er.Precision + er.Recall)
			}
		}
		log.Debug().Int("case", i+1).Str("query", c.Query).Float64("f1", er.F1).Msg("Evaluated query")
		report.Results = append(report.Results, er)
	}

	report.Precision = summarize(report.Results, func(r EvalResult) float64 { return r.Precision })
	report.Recall = summarize(report.Results, func(r EvalResult) float64 { return r.Recall })
	report.F1 = summarize(report.Results, func(r EvalResult) float64 { return r.F1 })
	return report, nil
}

func isRelevant(section, content string, c EvalCase) bool {
	for _, s := range c.ExpectedSections {
		if strings.EqualFold(s, section) {
			return true
		}
	}
	lower := strings.ToLower(content)
	for _, kw := range c.ExpectedKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func summarize(results []EvalResult, metric func(EvalResult) float64) MetricSummary {
	if len(results) == 0 {
		return MetricSummary{}
	}
	m := MetricSummary{Min: metric(results[0]), Max: metric(results[0])}
	var sum float64
	for _, r := range results {
		v := metric(r)
		m.Min = min(m.Min, v)
		m.Max = max(m.Max, v)
		sum += v
	}
	m.Avg = sum / float64(len(results))
	return m
}
