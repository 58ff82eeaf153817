package server

import (
	"net/http"

	"github.com/justinas/alice"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	// Middlewares
	base := alice.New(s.recoverPanic, s.authenticate)
	authenticated := alice.New(s.requireAuthenticatedUser)
	// User Routes
	mux.Handle("GET /v1/users/current", authenticated.ThenFunc(s.GetCurrentUserHandler))
	// Conversation Routes
	mux.Handle("GET /v1/conversations", authenticated.ThenFunc(s.GetConversationsHandler))
	mux.Handle("GET /v1/conversations/{id}/messages", authenticated.ThenFunc(s.GetMessagesHandler))
	// Message Routes
	mux.Handle("DELETE /v1/messages", authenticated.ThenFunc(s.DeleteMessagesHandler))
	// Websocket Routes
	mux.Handle("/v1/chat", authenticated.ThenFunc(s.WebsocketSubscribeHandler))

	return base.Then(mux)
}
