package server

import (
	"log/slog"
	"net/http"
)

func (s *Server) logError(r *http.Request, err error) {
	slog.Error(err.Error(), "request_method", r.Method, "request_url", r.URL.String())
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, status int, message any) {
	if err := s.writeJSON(w, envelop{"error": message}, status, nil); err != nil {
		s.logError(r, err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	s.logError(r, err)
	message := "the server encountered a problem and could not process your request"
	s.errorResponse(w, r, http.StatusInternalServerError, message)
}

func (s *Server) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	s.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (s *Server) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	message := "the requested resource could not be found"
	s.errorResponse(w, r, http.StatusNotFound, message)
}

func (s *Server) failedValidationResponse(w http.ResponseWriter, r *http.Request, errors map[string]string) {
	s.errorResponse(w, r, http.StatusUnprocessableEntity, errors)
}

func (s *Server) permissionDeniedResponse(w http.ResponseWriter, r *http.Request) {
	message := "you do not have permission to perform this action"
	s.errorResponse(w, r, http.StatusForbidden, message)
}

func (s *Server) invalidCredentialResponse(w http.ResponseWriter, r *http.Request) {
	message := "invalid authentication credentials"
	s.errorResponse(w, r, http.StatusUnauthorized, message)
}

func (s *Server) invalidAuthenticationTokenResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	message := "invalid or expired authentication token"
	s.errorResponse(w, r, http.StatusUnauthorized, message)
}

func (s *Server) authenticationRequiredResponse(w http.ResponseWriter, r *http.Request) {
	message := "you must be authenticated to access this resource"
	s.errorResponse(w, r, http.StatusUnauthorized, message)
}
