package api

import (
	"encoding/json"
	"net/http"
	"time"

	"familydash/internal/apperr"

	"go.uber.org/zap"
)

type healthResponse struct {
	OK    bool      `json:"ok"`
	Title string    `json:"title"`
	TS    time.Time `json:"ts"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type chatHealthResponse struct {
	OK        bool   `json:"ok"`
	Connected bool   `json:"connected"`
	Endpoint  string `json:"endpoint"`
}

type chatResponse struct {
	OK    bool   `json:"ok"`
	Reply string `json:"reply"`
}

type toggleRequest struct {
	EntityID string `json:"entity_id"`
}

type actionRequest struct {
	Label string `json:"label"`
}

type chatRequest struct {
	Message string `json:"message"`
}

// handleHealth reports whether Home Assistant answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Ping(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		OK:    true,
		Title: s.settings.Title,
		TS:    s.clock.Now().UTC(),
	})
}

// handleDashboard returns a fresh snapshot; it always answers 200
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snapshot := s.aggregator.Build(r.Context(), s.loader.Dashboard())
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	s.decode(w, r, &req)

	if err := s.dispatcher.Toggle(r.Context(), req.EntityID); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	s.decode(w, r, &req)

	if err := s.dispatcher.Run(r.Context(), s.loader.Dashboard(), req.Label); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// handleChatHealth never fails; an unreachable backend is reported as such
func (s *Server) handleChatHealth(w http.ResponseWriter, r *http.Request) {
	status := s.chat.Health(r.Context())
	writeJSON(w, http.StatusOK, chatHealthResponse{
		OK:        status.Connected,
		Connected: status.Connected,
		Endpoint:  status.Endpoint,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	s.decode(w, r, &req)

	reply, err := s.chat.Send(r.Context(), req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{OK: true, Reply: reply})
}

// decode reads a JSON body into v. A missing, oversized or malformed body
// leaves v at its zero value, so validation reports the missing field.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Debug("Ignoring unreadable request body",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)

	fields := []zap.Field{
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if e, ok := apperr.As(err); ok {
		fields = append(fields, zap.Stringer("kind", e.Kind))
		if e.Payload != nil {
			fields = append(fields, zap.Any("payload", e.Payload))
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", fields...)
	} else {
		s.logger.Warn("Request rejected", fields...)
	}

	writeJSON(w, status, errorResponse{OK: false, Error: apperr.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
