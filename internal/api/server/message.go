package server

import (
	"errors"
	"net/http"

	"github.com/edusphere/courseline/internal/api/utility"
	"github.com/edusphere/courseline/internal/domain"
)

func (s *Server) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	u := utility.ContextGetUser(r.Context())
	conversationID := r.PathValue("id")
	v := r.URL.Query()
	ev := domain.NewErrValidation()
	offset := s.readInt(v, "offset", 0, ev)
	limit := s.readInt(v, "limit", 20, ev)
	if ev.HasErrors() {
		s.failedValidationResponse(w, r, ev.Errors)
		return
	}
	page, err := s.Facade.FetchMessages(r.Context(), u.ID, conversationID, offset, limit)
	if err != nil {
		var ve *domain.ErrValidation
		switch {
		case errors.As(err, &ve):
			s.failedValidationResponse(w, r, ve.Errors)
		case errors.Is(err, domain.ErrRecordNotFound):
			s.notFoundResponse(w, r)
		case errors.Is(err, domain.ErrPermissionDenied):
			s.permissionDeniedResponse(w, r)
		default:
			s.serverErrorResponse(w, r, err)
		}
		return
	}
	if err = s.writeJSON(w, envelop{"messages": page.Messages, "hasMore": page.HasMore}, http.StatusOK, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) DeleteMessagesHandler(w http.ResponseWriter, r *http.Request) {
	u := utility.ContextGetUser(r.Context())
	var input struct {
		MessageIDs []string           `json:"messageIds"`
		Scope      domain.DeleteScope `json:"scope"`
	}
	if err := s.readJSON(w, r, &input); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}
	if err := s.Facade.DeleteMessages(r.Context(), u.ID, input.MessageIDs, input.Scope); err != nil {
		var ve *domain.ErrValidation
		switch {
		case errors.As(err, &ve):
			s.failedValidationResponse(w, r, ve.Errors)
		case errors.Is(err, domain.ErrRecordNotFound):
			s.notFoundResponse(w, r)
		case errors.Is(err, domain.ErrPermissionDenied):
			s.permissionDeniedResponse(w, r)
		default:
			s.serverErrorResponse(w, r, err)
		}
		return
	}
	if err := s.writeJSON(w, envelop{"deleted": input.MessageIDs, "scope": input.Scope}, http.StatusOK, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}
