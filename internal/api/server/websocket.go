package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/edusphere/courseline/internal/api/utility"
	"github.com/edusphere/courseline/internal/domain"
)

var ErrAlreadySubscribed = errors.New("already subscribed")

const registerTimeout = 30 * time.Second

func (s *Server) WebsocketSubscribeHandler(w http.ResponseWriter, r *http.Request) {
	u := utility.ContextGetUser(r.Context())

	conn, err := s.subscribe(w, r, u)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadySubscribed):
			s.errorResponse(w, r, http.StatusConflict, "a live connection already exists for this account")
		default:
			slog.Error(err.Error())
		}
		return
	}

	s.addSubscriber(u)
	transitioned, err := s.Presence.MarkOnline(r.Context(), u.ID)
	if err != nil {
		slog.Error("mark online", "userId", u.ID, "err", err.Error())
	}
	if transitioned {
		s.broadcastStatusChange(r.Context(), u, true)
	}
	defer s.unsubscribe(u, conn)

	// buffered because if there is any error we'll return so we don't want the other write to block
	errChan := make(chan error, 1)
	reqCtx, cancel := context.WithCancel(r.Context())
	defer cancel()
	s.BackgroundTask.Run(func(shtdwnCtx context.Context) {
		errChan <- s.handleClientEvents(shtdwnCtx, reqCtx, conn, u)
	})
	s.BackgroundTask.Run(func(shtdwnCtx context.Context) {
		errChan <- s.handleServerEvents(shtdwnCtx, reqCtx, conn, u)
	})

	if err = <-errChan; err != nil {
		// an error from either background task means the connection is done,
		// cancel reqCtx so the other task can exit listening on it
		cancel()
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
			websocket.CloseStatus(err) == websocket.StatusAbnormalClosure ||
			websocket.CloseStatus(err) == websocket.StatusGoingAway ||
			errors.Is(err, io.EOF) ||
			errors.Is(err, context.Canceled) {
			return
		}
		slog.Error(err.Error())
	}
}

// subscribe accepts the connection and runs the register handshake. The
// client's first frame must be a register event naming the authenticated
// user, anything else closes the connection.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request, u *domain.User) (*websocket.Conn, error) {
	var mu sync.Mutex
	var conn *websocket.Conn

	s.SubsMu.Lock()
	_, subscribed := s.Subscribers[u.ID] // one live connection per user
	s.SubsMu.Unlock()
	if subscribed {
		return nil, ErrAlreadySubscribed
	}
	u.Events = make(domain.EventChan, s.subscriberMessageBuffer)
	u.CloseSlow = func() {
		mu.Lock()
		defer mu.Unlock()
		if conn != nil {
			conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with events")
		}
	}
	c, err := websocket.Accept(w, r, s.wsAcceptOpts)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	conn = c
	mu.Unlock()

	if err = s.awaitRegister(r.Context(), conn, u); err != nil {
		conn.Close(websocket.StatusPolicyViolation, "registration failed")
		return nil, err
	}
	return conn, nil
}

func (s *Server) awaitRegister(ctx context.Context, conn *websocket.Conn, u *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()
	var e domain.Event
	if err := wsjson.Read(ctx, conn, &e); err != nil {
		return err
	}
	if e.Name != domain.EventRegister {
		return errors.New("first event must be register")
	}
	var p domain.RegisterPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if p.UserID != u.ID {
		return errors.New("register userId does not match the authenticated user")
	}
	ev := domain.NewErrValidation()
	domain.ValidateRole(p.UserType, ev)
	ev.Evaluate(p.UserType == u.Role, "userType", "does not match the authenticated user's role")
	if ev.HasErrors() {
		return ev
	}
	return nil
}

func (s *Server) handleClientEvents(shutdownCtx, reqCtx context.Context, conn *websocket.Conn, u *domain.User) error {
	for {
		var e domain.Event
		// read errors out as soon as the client shuts the connection
		if err := wsjson.Read(shutdownCtx, conn, &e); err != nil {
			return err
		}
		var err error
		switch e.Name {
		case domain.EventJoinChat:
			err = s.onJoinChat(reqCtx, u, &e)
		case domain.EventLeaveChat:
			err = s.onLeaveChat(u, &e)
		case domain.EventSendMessage:
			err = s.onSendMessage(reqCtx, u, &e)
		case domain.EventMarkMessagesRead:
			err = s.onMarkMessagesRead(reqCtx, u, &e)
		case domain.EventTyping:
			err = s.onTyping(u, &e)
		case domain.EventDeleteMessage:
			err = s.onDeleteMessage(reqCtx, u, &e)
		default:
			slog.Warn("unknown client event", "event", e.Name, "userId", u.ID)
		}
		if err != nil {
			return err
		}
		select {
		case <-reqCtx.Done():
			return nil
		case <-shutdownCtx.Done():
			return nil
		default:
		}
	}
}

func (s *Server) handleServerEvents(shutdownCtx, reqCtx context.Context, conn *websocket.Conn, u *domain.User) error {
	for {
		select {
		case e := <-u.Events:
			if err := s.publishLimiter.Wait(reqCtx); err != nil {
				return nil
			}
			if err := writeWithTimeout(conn, 2*time.Second, e); err != nil {
				return err
			}
		case <-reqCtx.Done():
			return nil
		case <-shutdownCtx.Done():
			return nil
		}
	}
}

func (s *Server) onJoinChat(ctx context.Context, u *domain.User, e *domain.Event) error {
	var p domain.JoinChatPayload
	if err := e.Decode(&p); err != nil {
		slog.Warn(err.Error(), "userId", u.ID)
		return nil
	}
	convo, err := s.Facade.GetConversation(ctx, p.ConversationID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if convo.LearnerID != u.ID && convo.InstructorID != u.ID {
		slog.Warn("join rejected, not a participant", "userId", u.ID, "conversationId", p.ConversationID)
		return nil
	}
	s.rooms.Join(p.ConversationID, u.ID)
	return nil
}

func (s *Server) onLeaveChat(u *domain.User, e *domain.Event) error {
	var p domain.JoinChatPayload
	if err := e.Decode(&p); err != nil {
		slog.Warn(err.Error(), "userId", u.ID)
		return nil
	}
	s.rooms.Leave(p.ConversationID, u.ID)
	return nil
}

func (s *Server) onSendMessage(ctx context.Context, u *domain.User, e *domain.Event) error {
	var p domain.SendMessagePayload
	if err := e.Decode(&p); err != nil {
		return s.ack(u, e.ID, domain.SendMessageResponse{Error: "malformed sendMessage payload"})
	}
	msg, convo, err := s.Facade.SendMessage(ctx, u, p)
	if err != nil {
		var ev *domain.ErrValidation
		switch {
		case errors.As(err, &ev):
			return s.ack(u, e.ID, domain.SendMessageResponse{Error: validationSummary(ev)})
		case errors.Is(err, domain.ErrPermissionDenied):
			return s.ack(u, e.ID, domain.SendMessageResponse{Error: "not a participant of this conversation"})
		case errors.Is(err, domain.ErrRecordNotFound):
			return s.ack(u, e.ID, domain.SendMessageResponse{Error: "conversation or receiver not found"})
		default:
			return err
		}
	}
	if err = s.ack(u, e.ID, domain.SendMessageResponse{
		Success:        true,
		Message:        msg,
		ConversationID: *convo.ID,
	}); err != nil {
		return err
	}

	recv, err := domain.NewEvent(domain.EventReceiveMessage, "", domain.ReceiveMessagePayload{
		Message:        msg,
		ConversationID: *convo.ID,
	})
	if err != nil {
		return err
	}
	s.publishToRoom(*convo.ID, recv, u.ID)

	s.pushConversationView(ctx, *convo.ID, convo.LearnerID)
	s.pushConversationView(ctx, *convo.ID, convo.InstructorID)
	return nil
}

// pushConversationView sends the recipient their own side of the
// conversation; counterpart fields differ per participant, so the
// payload is resolved per recipient.
func (s *Server) pushConversationView(ctx context.Context, conversationID, userID string) {
	view, err := s.Facade.ConversationForUser(ctx, conversationID, userID)
	if err != nil {
		slog.Error("resolve conversation view", "userId", userID, "conversationId", conversationID, "err", err.Error())
		return
	}
	upd, err := domain.NewEvent(domain.EventConversationUpdated, "", domain.ConversationUpdatedPayload{Conversation: view})
	if err != nil {
		slog.Error(err.Error())
		return
	}
	s.publish(userID, upd)
}

func (s *Server) onMarkMessagesRead(ctx context.Context, u *domain.User, e *domain.Event) error {
	var p domain.MarkMessagesReadPayload
	if err := e.Decode(&p); err != nil {
		slog.Warn(err.Error(), "userId", u.ID)
		return nil
	}
	readAt, err := s.Facade.MarkMessagesRead(ctx, p.ConversationID, u.ID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) || errors.Is(err, domain.ErrPermissionDenied) {
			slog.Warn("markMessagesRead rejected", "userId", u.ID, "err", err.Error())
			return nil
		}
		return err
	}
	read, err := domain.NewEvent(domain.EventMessagesRead, "", domain.MessagesReadPayload{
		ConversationID: p.ConversationID,
		ReaderID:       u.ID,
		ReadAt:         readAt,
	})
	if err != nil {
		return err
	}
	s.publishToRoom(p.ConversationID, read, u.ID)
	// the reader's own counter is zero now, push their refreshed summary
	s.pushConversationView(ctx, p.ConversationID, u.ID)
	return nil
}

func (s *Server) onTyping(u *domain.User, e *domain.Event) error {
	var p domain.TypingPayload
	if err := e.Decode(&p); err != nil {
		slog.Warn(err.Error(), "userId", u.ID)
		return nil
	}
	// joining already proved participation, outsiders never reach a room
	if !s.rooms.IsMember(p.ConversationID, u.ID) {
		slog.Warn("typing rejected, not in the room", "userId", u.ID, "conversationId", p.ConversationID)
		return nil
	}
	typing, err := domain.NewEvent(domain.EventUserTyping, "", domain.UserTypingPayload{
		UserID:   u.ID,
		IsTyping: p.IsTyping,
	})
	if err != nil {
		return err
	}
	s.publishToRoom(p.ConversationID, typing, u.ID)
	return nil
}

// onDeleteMessage is the notification following a persisted delete over
// REST, it broadcasts the tombstones to the room. The store call replays
// the delete, which is a no-op on already-tombstoned messages, so a
// forged notification for live messages still has to pass the ownership
// and window checks before anything fans out.
func (s *Server) onDeleteMessage(ctx context.Context, u *domain.User, e *domain.Event) error {
	var p domain.DeleteMessagePayload
	if err := e.Decode(&p); err != nil {
		slog.Warn(err.Error(), "userId", u.ID)
		return nil
	}
	if err := s.Facade.DeleteMessages(ctx, u.ID, p.MessageIDs, domain.DeleteScopeEveryone); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrRecordNotFound) {
			slog.Warn("deleteMessage rejected", "userId", u.ID, "err", err.Error())
			return nil
		}
		return err
	}
	deleted, err := domain.NewEvent(domain.EventMessageDeleted, "", domain.MessageDeletedPayload{MessageIDs: p.MessageIDs})
	if err != nil {
		return err
	}
	// the requester sees the tombstones too
	s.publishToRoom(p.ConversationID, deleted, "")
	return nil
}

// ack echoes the sendMessage correlation id back to the sender.
func (s *Server) ack(u *domain.User, correlationID string, resp domain.SendMessageResponse) error {
	e, err := domain.NewEvent(domain.EventAck, correlationID, resp)
	if err != nil {
		return err
	}
	s.publish(u.ID, e)
	return nil
}

// publish delivers an event to a subscribed user, dropping the connection
// if its buffer is full.
func (s *Server) publish(userID string, e *domain.Event) {
	s.SubsMu.Lock()
	u, ok := s.Subscribers[userID]
	s.SubsMu.Unlock()
	if !ok {
		return
	}
	select {
	case u.Events <- e:
	default:
		u.CloseSlow()
	}
}

func (s *Server) publishToRoom(conversationID string, e *domain.Event, except string) {
	for _, id := range s.rooms.Members(conversationID) {
		if id == except {
			continue
		}
		s.publish(id, e)
	}
}

// broadcastStatusChange notifies every counterpart the user shares a
// conversation with, not just the rooms they currently have open.
func (s *Server) broadcastStatusChange(ctx context.Context, u *domain.User, online bool) {
	e, err := domain.StatusChangedEvent(u, online)
	if err != nil {
		slog.Error(err.Error())
		return
	}
	ids, err := s.Facade.CounterpartIDs(ctx, u.ID)
	if err != nil {
		slog.Error("resolve counterparts", "userId", u.ID, "err", err.Error())
		return
	}
	for _, id := range ids {
		s.publish(id, e)
	}
}

func (s *Server) unsubscribe(u *domain.User, conn *websocket.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.rooms.LeaveAll(u.ID)
	s.removeSubscriber(u)
	conn.CloseNow()
	var transitioned bool
	var err error
	for range 5 { // very unlikely to fail
		if transitioned, err = s.Presence.MarkOffline(ctx, u.ID); err == nil {
			break
		}
	}
	if err != nil {
		slog.Error("mark offline", "userId", u.ID, "err", err.Error())
		return
	}
	if transitioned {
		s.broadcastStatusChange(ctx, u, false)
	}
}

func (s *Server) addSubscriber(u *domain.User) {
	s.SubsMu.Lock()
	s.Subscribers[u.ID] = u
	s.SubsMu.Unlock()
}

func (s *Server) removeSubscriber(u *domain.User) {
	s.SubsMu.Lock()
	delete(s.Subscribers, u.ID)
	s.SubsMu.Unlock()
}

func writeWithTimeout(conn *websocket.Conn, t time.Duration, e *domain.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), t)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}

func validationSummary(ev *domain.ErrValidation) string {
	for field, msg := range ev.Errors {
		return field + " " + msg
	}
	return "validation failed"
}
