package server

import (
	"errors"
	"net/http"

	"github.com/edusphere/courseline/internal/api/utility"
	"github.com/edusphere/courseline/internal/domain"
)

func (s *Server) GetConversationsHandler(w http.ResponseWriter, r *http.Request) {
	u := utility.ContextGetUser(r.Context())
	v := r.URL.Query()
	ev := domain.NewErrValidation()
	filter := domain.ConversationFilter{
		CourseID:      s.readString(v, "courseId", ""),
		CounterpartID: s.readString(v, "counterpartId", ""),
		Search:        s.readString(v, "search", ""),
	}
	filter.Page = s.readInt(v, "page", 1, ev)
	filter.PageSize = s.readInt(v, "limit", 20, ev)
	if ev.HasErrors() {
		s.failedValidationResponse(w, r, ev.Errors)
		return
	}
	page, err := s.Facade.GetConversations(r.Context(), u, filter)
	if err != nil {
		var ve *domain.ErrValidation
		switch {
		case errors.As(err, &ve):
			s.failedValidationResponse(w, r, ve.Errors)
		default:
			s.serverErrorResponse(w, r, err)
		}
		return
	}
	response := envelop{
		"conversations": page.Conversations,
		"totalPages":    page.Metadata.TotalPages,
		"metadata":      page.Metadata,
	}
	if err = s.writeJSON(w, response, http.StatusOK, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}
