package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goodtune/voicetally/internal/command"
	"github.com/goodtune/voicetally/internal/notify"
	"github.com/goodtune/voicetally/internal/presence"
	"github.com/goodtune/voicetally/internal/storage"
	"github.com/goodtune/voicetally/internal/usage"
)

const (
	maxBodyBytes       = 64 << 10
	maxGitHubBodyBytes = 1 << 20
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type transitionResponse struct {
	Outcome string `json:"outcome,omitempty"`
	Month   string `json:"month,omitempty"`
	Seconds int64  `json:"seconds"`
	Handled bool   `json:"handled"`
}

type commandResponse struct {
	Reply   string `json:"reply,omitempty"`
	Handled bool   `json:"handled"`
}

type totalsResponse struct {
	MonthlyTotals map[string]int64 `json:"monthly_totals"`
	UserID        string           `json:"user_id"`
}

type monthResponse struct {
	UserID    string `json:"user_id"`
	Month     string `json:"month"`
	Formatted string `json:"formatted"`
	Seconds   int64  `json:"seconds"`
}

type reportResponse struct {
	*usage.Report
	Text string `json:"text"`
}

type dispatchResponse struct {
	Dispatched bool `json:"dispatched"`
}

type githubResponse struct {
	Relayed bool `json:"relayed"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) voiceEvent(w http.ResponseWriter, r *http.Request) {
	var update presence.VoiceStateUpdate
	if !s.decode(w, r, &update) {
		return
	}

	handled, result, err := s.deps.Presence.Handle(r.Context(), update)
	if err != nil {
		s.handleError(w, err)
		return
	}

	resp := transitionResponse{Handled: handled}
	if handled {
		resp.Outcome = result.Outcome.String()
		resp.Month = result.Month
		resp.Seconds = result.Seconds
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runCommand(w http.ResponseWriter, r *http.Request) {
	var inv command.Invocation
	if !s.decode(w, r, &inv) {
		return
	}

	reply, handled, err := s.deps.Commands.Handle(r.Context(), inv)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Reply: reply, Handled: handled})
}

func (s *Server) userTotals(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	totals, err := s.deps.Query.AllTotals(r.Context(), userID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totalsResponse{UserID: userID, MonthlyTotals: totals})
}

func (s *Server) userMonth(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	month, err := usage.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		s.handleError(w, err)
		return
	}

	seconds, err := s.deps.Query.TotalFor(r.Context(), userID, month)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, monthResponse{
		UserID:    userID,
		Month:     month,
		Seconds:   seconds,
		Formatted: usage.FormatDuration(seconds),
	})
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Generator.Generate(r.Context(), chi.URLParam(r, "month"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Report: report, Text: report.Render()})
}

func (s *Server) dispatchReport(w http.ResponseWriter, r *http.Request) {
	dispatched, err := s.deps.Reports.RunOnce(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dispatchResponse{Dispatched: dispatched})
}

func (s *Server) githubEvent(w http.ResponseWriter, r *http.Request) {
	if s.deps.GitHub == nil {
		writeError(w, http.StatusNotFound, "not_found", "github relay is disabled")
		return
	}

	// GitHub deliveries carry far more than the relayed fields
	var payload notify.IssueCommentPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGitHubBodyBytes)).Decode(&payload); err != nil {
		s.logger.Debug().Err(err).Msg("Invalid GitHub delivery")
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	if !payload.Relayable(event) {
		s.logger.Debug().Str("event", event).Str("action", payload.Action).Msg("GitHub delivery ignored")
		writeJSON(w, http.StatusOK, githubResponse{Relayed: false})
		return
	}

	s.deps.GitHub.Send(notify.IssueCommentMessage(payload))
	s.logger.Info().
		Str("user", payload.Comment.User.Login).
		Str("issue", payload.Issue.HTMLURL).
		Msg("GitHub issue comment relayed")
	writeJSON(w, http.StatusOK, githubResponse{Relayed: true})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Invalid request body")
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// errorMapping pairs a sentinel error with its HTTP status and error code.
type errorMapping struct {
	sentinel error
	code     string
	status   int
}

var errorMappings = []errorMapping{
	{sentinel: usage.ErrInvalidMonth, status: http.StatusBadRequest, code: "invalid_month"},
	{sentinel: usage.ErrInvalidTransition, status: http.StatusBadRequest, code: "invalid_transition"},
	{sentinel: storage.ErrNotFound, status: http.StatusNotFound, code: "not_found"},
	{sentinel: storage.ErrUnavailable, status: http.StatusServiceUnavailable, code: "storage_unavailable"},
}

func (s *Server) handleError(w http.ResponseWriter, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			s.logger.Warn().Err(err).Int("status", m.status).Msg("Request failed")
			writeError(w, m.status, m.code, m.sentinel.Error())
			return
		}
	}
	s.logger.Error().Err(err).Msg("Internal error")
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
