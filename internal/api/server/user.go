package server

import (
	"net/http"

	"github.com/edusphere/courseline/internal/api/utility"
)

func (s *Server) GetCurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	u := utility.ContextGetUser(r.Context())
	if err := s.writeJSON(w, envelop{"user": u}, http.StatusOK, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}
