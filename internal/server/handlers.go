package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"callbot/internal/domain"
	"callbot/internal/service"
)

const (
	sessionHeader = "X-Session-ID"
	internalError = "internal error"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// chatResponse keeps the field names web dialers already read.
type chatResponse struct {
	Query      string `json:"query"`
	Response   string `json:"response"`
	StatusCode int    `json:"status_code"`
	SessionID  string `json:"session_id"`
}

type exitResponse struct {
	Response string `json:"response"`
}

type configureResponse struct {
	Status       string `json:"status"`
	FirstMessage string `json:"first_message"`
	Chunks       int    `json:"chunks"`
	Summary      string `json:"summary,omitempty"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Chunks   int    `json:"chunks"`
	Sessions int    `json:"sessions"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (s *Server) handleTranscribeAndChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "multipart field \"file\" is required"})
		return
	}
	defer file.Close()

	reply, err := s.assistant.HandleAudio(r.Context(), sessionID(r), header.Filename, file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeReply(w, reply)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid JSON body"})
		return
	}
	id := sessionID(r)
	if id == "" {
		id = req.SessionID
	}
	reply, err := s.assistant.Respond(r.Context(), id, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeReply(w, reply)
}

// handleConfigure replaces the persona and, when a knowledgeBase file is
// attached, rebuilds the index from it.
func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid form"})
		return
	}

	persona := s.assistant.Persona()
	if v, ok := formValue(r, "firstMessage"); ok {
		persona.FirstMessage = v
	}
	if v, ok := formValue(r, "systemPrompt"); ok {
		persona.SystemPrompt = v
	}

	resp := configureResponse{Status: "configured", FirstMessage: persona.FirstMessage}
	file, header, err := r.FormFile("knowledgeBase")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid knowledgeBase upload"})
		return
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid knowledgeBase upload"})
			return
		}
		report, err := s.knowledge.RebuildFromBytes(r.Context(), header.Filename, data)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Chunks = report.Chunks
		resp.Summary = report.Summary
	}

	s.assistant.SetPersona(persona)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFirstMessage(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"first_message": s.assistant.Persona().FirstMessage})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.assistant.Sessions().Lookup(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Detail: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.assistant.Sessions().Delete(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, errorBody{Detail: "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Sessions: s.assistant.Sessions().Len()}
	if report, ok := s.knowledge.LastReport(); ok {
		resp.Chunks = report.Chunks
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError maps a stage failure to a status. Causes stay in the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Detail: "upload too large"})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})
	case errors.Is(err, domain.ErrDocumentExtraction):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: "could not extract text from document"})
	default:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: internalError})
	}
}

// writeReply renders a turn. An ended call answers 301 with the farewell,
// which is what dialers watch for to hang up.
func writeReply(w http.ResponseWriter, reply service.Reply) {
	if reply.Ended {
		writeJSON(w, http.StatusMovedPermanently, exitResponse{Response: reply.Response})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Query:      reply.Query,
		Response:   reply.Response,
		StatusCode: http.StatusOK,
		SessionID:  reply.SessionID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(sessionHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.FormValue("session_id"))
}

func formValue(r *http.Request, key string) (string, bool) {
	if r.MultipartForm != nil {
		if vs, ok := r.MultipartForm.Value[key]; ok && len(vs) > 0 {
			return vs[0], true
		}
	}
	if vs, ok := r.PostForm[key]; ok && len(vs) > 0 {
		return vs[0], true
	}
	return "", false
}
