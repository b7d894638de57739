package server

import "net/http"

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /transcribe_and_chat", s.rateLimited(s.handleTranscribeAndChat))
	mux.HandleFunc("POST /chat", s.rateLimited(s.handleChat))
	mux.HandleFunc("POST /configure", s.handleConfigure)
	mux.HandleFunc("GET /first_message", s.handleFirstMessage)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}
