package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"finassist/internal/domain"
	"finassist/internal/logging"
	"finassist/internal/service"
	"finassist/internal/stream"
)

type caseRequest struct {
	CaseID string `json:"case_id"`
}

type messageRequest struct {
	CaseID  string `json:"case_id"`
	Message string `json:"message"`
}

type sendMessageRequest struct {
	Sender  domain.Sender `json:"sender"`
	Content string        `json:"content"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type outcomeRequest struct {
	Resolution    string   `json:"resolution"`
	ResourcesUsed []string `json:"resources_used"`
	Success       bool     `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// handleError maps err to a response. Only not-found and invalid input are
// described to the caller.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrCaseNotFound):
		writeDetail(w, http.StatusNotFound, "Case not found")
	case errors.Is(err, domain.ErrResourceNotFound):
		writeDetail(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, domain.ErrInvalidRecord):
		writeDetail(w, http.StatusBadRequest, "Invalid request")
	default:
		logging.Error(s.logger, "request failed", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return goerr.Wrap(errors.Join(domain.ErrInvalidRecord, err), "failed to decode request body")
	}
	return nil
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.assistant.ListCases(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

func (s *Server) createCase(w http.ResponseWriter, r *http.Request) {
	var req service.NewCase
	if err := decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	c, err := s.assistant.CreateCase(r.Context(), req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "case": c})
}

func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.assistant.GetCase(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request) {
	out, err := s.assistant.Analytics(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) documents(w http.ResponseWriter, r *http.Request) {
	docs, err := s.assistant.Documents(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	msg, err := s.assistant.SendMessage(r.Context(), chi.URLParam(r, "caseID"), req.Sender, req.Content)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}

func (s *Server) notes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.assistant.Notes(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notesRequest{Notes: notes})
}

func (s *Server) saveNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	if err := s.assistant.SaveNotes(r.Context(), chi.URLParam(r, "caseID"), req.Notes); err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) recordOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	o := domain.Outcome{
		CaseID:        chi.URLParam(r, "caseID"),
		Resolution:    req.Resolution,
		ResourcesUsed: req.ResourcesUsed,
		Success:       req.Success,
	}
	if err := s.assistant.RecordOutcome(r.Context(), o); err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) similarCases(w http.ResponseWriter, r *http.Request) {
	matches, err := s.assistant.SimilarCases(r.Context(), chi.URLParam(r, "caseID"), intQuery(r, "n", 3))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// upload accepts a multipart file. Text is extracted from plain-text
// uploads only; other files are stored without text.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("case_id")
	if caseID == "" {
		writeDetail(w, http.StatusBadRequest, "case_id required")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	var text string
	if isText(header.Filename, header.Header.Get("Content-Type")) && utf8.Valid(data) {
		text = string(data)
	}

	up, err := s.assistant.AttachDocument(r.Context(), caseID, header.Filename, text)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":                true,
		"document_id":            up.DocumentID,
		"extracted_text_preview": up.Preview,
		"digest":                 up.Digest,
	})
}

func isText(filename, contentType string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mt, "text/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".csv":
		return true
	}
	return false
}

func (s *Server) recommend(w http.ResponseWriter, r *http.Request) {
	var req caseRequest
	if err := decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	recs, err := s.assistant.Recommend(r.Context(), req.CaseID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) recommendStream(w http.ResponseWriter, r *http.Request) {
	var req caseRequest
	if err := decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	sink, err := stream.NewSSE(w)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.assistant.StreamRecommend(r.Context(), req.CaseID, sink)
}

func (s *Server) triage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	res, err := s.assistant.Triage(r.Context(), req.CaseID, req.Message)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) triageStream(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	sink, err := stream.NewSSE(w)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.assistant.StreamTriage(r.Context(), req.CaseID, req.Message, sink)
}

func (s *Server) assist(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	hints, err := s.assistant.AssistConversation(r.Context(), req.CaseID, req.Message)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"suggestions": hints})
}

func (s *Server) suggest(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	out, err := s.assistant.SuggestResponse(r.Context(), req.CaseID, req.Message)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) insights(w http.ResponseWriter, r *http.Request) {
	out, err := s.assistant.Insights(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"insights": out})
}

func (s *Server) patterns(w http.ResponseWriter, r *http.Request) {
	out, err := s.assistant.DetectPatterns(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeDetail(w, http.StatusBadRequest, "q required")
		return
	}
	matches, err := s.assistant.Search(r.Context(), q, intQuery(r, "k", 5))
	if err != nil {
		if errors.Is(err, domain.ErrRetrievalUnavailable) {
			logging.Warn(s.logger, "search unavailable", err)
			writeDetail(w, http.StatusServiceUnavailable, "Search unavailable")
			return
		}
		s.handleError(w, r, err)
		return
	}
	type hit struct {
		ID       string         `json:"id"`
		Distance float64        `json:"distance"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}
	out := make([]hit, len(matches))
	for i, m := range matches {
		out[i] = hit{ID: m.ID, Distance: m.Distance, Metadata: m.Metadata}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) debugSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.assistant.DebugSearch(r.Context()))
}

func intQuery(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return min(v, 50)
}
