package rag

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"policy-rag/internal/models"
)

// answerTopK is the number of chunks given to the model as context.
const answerTopK = 3

var thinkRe = regexp.MustCompile(models.ThinkTag)

// ErrNoAnswerer is returned by Ask when no inference model is configured.
var ErrNoAnswerer = errors.New("no inference model configured")

// Ask retrieves context for question and has the inference model answer it.
// With no matching chunks the model is not called and the answer says so.
func (s *Service) Ask(ctx context.Context, question string, onChunk func(string)) (*models.PromptResponse, error) {
	if s.answerer == nil {
		return nil, ErrNoAnswerer
	}
	results, err := s.Query(ctx, question, answerTopK, nil)
	if err != nil {
		return nil, err
	}
	resp := &models.PromptResponse{Query: question, Results: results}
	if len(results) == 0 {
		resp.Content = models.NoContextAnswer
		return resp, nil
	}

	prompt := fmt.Sprintf(models.AnswerPromptTemplate, BuildContext(results), question)
	answer, err := s.answerer.Answer(ctx, prompt, onChunk)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}
	resp.Content = strings.TrimSpace(thinkRe.ReplaceAllString(answer, ""))
	resp.Source = sources(results)
	log.Debug().Str("question", question).Str("source", resp.Source).Msg("Answer generated")
	return resp, nil
}

// BuildContext lays results out as Source/Section/Content blocks separated
// by "---" lines.
func BuildContext(results []models.QueryResult) string {
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "Source: %s\n", r.Metadata.SourceFile)
		fmt.Fprintf(&sb, "Section: %s\n", r.Metadata.SectionType)
		fmt.Fprintf(&sb, "Content: %s", r.Content)
		sb.WriteString(models.ContextSeparator)
	}
	return sb.String()
}

// sources lists the distinct files and pages the context came from.
func sources(results []models.QueryResult) string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range results {
		md := r.Metadata
		ref := fmt.Sprintf("%s p.%d", md.SourceFile, md.PageStart)
		if md.PageEnd > md.PageStart {
			ref = fmt.Sprintf("%s p.%d-%d", md.SourceFile, md.PageStart, md.PageEnd)
		}
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	return strings.Join(out, ", ")
}
