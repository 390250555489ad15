package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"policy-rag/internal/models"
)

type healthResponse struct {
	Status     string `json:"status"`
	IndexReady bool   `json:"index_ready"`
	Documents  int    `json:"documents"`
	Chunks     int    `json:"chunks"`
}

type queryRequest struct {
	Question    string `json:"question"`
	TopK        int    `json:"top_k"`
	SectionType string `json:"section_type,omitempty"`
	SourceFile  string `json:"source_file,omitempty"`
	ChunkKind   string `json:"chunk_kind,omitempty"`
}

type queryResponse struct {
	Question string               `json:"question"`
	Results  []models.QueryResult `json:"results"`
}

type askRequest struct {
	Questions []string `json:"questions"`
}

type askResponse struct {
	Answers []string `json:"answers"`
}

// handleHealth reports "degraded" when the index cannot be read.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.backend.Statistics(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("Health check could not read the index")
		writeJSON(w, http.StatusOK, healthResponse{Status: "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "healthy",
		IndexReady: true,
		Documents:  stats.TotalDocuments,
		Chunks:     stats.TotalChunks,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	filter, err := req.filter()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.backend.Query(r.Context(), req.Question, req.TopK, filter)
	if err != nil {
		log.Error().Err(err).Str("question", req.Question).Msg("Query failed")
		writeError(w, statusFor(err), err.Error())
		return
	}
	if results == nil {
		results = []models.QueryResult{}
	}
	writeJSON(w, http.StatusOK, queryResponse{Question: req.Question, Results: results})
}

func (req queryRequest) filter() (*models.Filter, error) {
	f := &models.Filter{SourceFile: req.SourceFile}
	if req.SectionType != "" {
		st, err := models.ParseSectionType(req.SectionType)
		if err != nil {
			return nil, err
		}
		f.SectionType = &st
	}
	switch models.BlockKind(req.ChunkKind) {
	case "", models.KindText, models.KindTable:
		f.ChunkKind = models.BlockKind(req.ChunkKind)
	default:
		return nil, fmt.Errorf("invalid chunk_kind: %q", req.ChunkKind)
	}
	if f.IsEmpty() {
		return nil, nil
	}
	return f, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.backend.Statistics(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Reading statistics failed")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleAsk answers each question in order from its own retrieved context.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Questions) == 0 {
		writeError(w, http.StatusBadRequest, "questions are required")
		return
	}

	answers := make([]string, 0, len(req.Questions))
	for i, q := range req.Questions {
		log.Info().Int("question", i+1).Str("text", q).Msg("Answering question")
		resp, err := s.backend.Ask(r.Context(), q, nil)
		if err != nil {
			log.Error().Err(err).Str("question", q).Msg("Answer generation failed")
			writeError(w, statusFor(err), err.Error())
			return
		}
		answers = append(answers, resp.Content)
	}
	writeJSON(w, http.StatusOK, askResponse{Answers: answers})
}
