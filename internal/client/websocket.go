package client

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	csync "github.com/edusphere/courseline/internal/client/sync"
	"github.com/edusphere/courseline/internal/domain"
)

type WsConnState int

const (
	Disconnected WsConnState = iota
	Connecting
	Connected
)

type WsConnMonitor = csync.StateMonitor[WsConnState]

func newWsConnMonitor() *WsConnMonitor {
	return csync.NewStatus[WsConnState](Disconnected)
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	ackTimeout     = 5 * time.Second
)

// maintainWsConnection dials, registers, then pumps events until the
// connection drops; every redial re-registers before anything else so
// the server rebinds this user's subscription.
func (c *Client) maintainWsConnection(shtdwnCtx context.Context) {
	backoff := initialBackoff
	for {
		select {
		case <-shtdwnCtx.Done():
			return
		default:
		}
		if !c.LoggedIn() {
			select {
			case <-time.After(backoff):
			case <-shtdwnCtx.Done():
				return
			}
			continue
		}
		if c.CurrentUsr == nil {
			if err := c.ensureCurrentUser(); err != nil {
				slog.Error("resolve current user", "err", getMostNestedError(err).Error())
				select {
				case <-time.After(backoff):
				case <-shtdwnCtx.Done():
					return
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
		}
		c.WsConnState.WriteToChan(Connecting)
		conn, err := c.dialAndRegister(shtdwnCtx)
		if err != nil {
			c.WsConnState.WriteToChan(Disconnected)
			slog.Error("chat connection", "err", getMostNestedError(err).Error())
			select {
			case <-time.After(backoff):
			case <-shtdwnCtx.Done():
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff
		c.WsConnState.WriteToChan(Connected)
		c.rejoinActiveChat()
		c.pumpEvents(shtdwnCtx, conn)
		c.WsConnState.WriteToChan(Disconnected)
		c.failPendingAcks()
	}
}

func (c *Client) dialAndRegister(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	opts := &websocket.DialOptions{
		CompressionMode: websocket.CompressionContextTakeover,
		HTTPHeader:      http.Header{"Authorization": []string{"Bearer " + c.AuthToken}},
	}
	conn, resp, err := websocket.Dial(dialCtx, subscribeTo, opts)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	register, err := domain.NewEvent(domain.EventRegister, "", domain.RegisterPayload{
		UserID:   c.CurrentUsr.ID,
		UserType: c.CurrentUsr.Role,
	})
	if err != nil {
		conn.CloseNow()
		return nil, err
	}
	if err = wsjson.Write(dialCtx, conn, register); err != nil {
		conn.CloseNow()
		return nil, err
	}
	return conn, nil
}

// pumpEvents owns the connection, one reader and one writer goroutine,
// and returns once either side fails or shutdown begins.
func (c *Client) pumpEvents(shtdwnCtx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(shtdwnCtx)
	defer cancel()
	defer conn.CloseNow()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		for {
			select {
			case e := <-c.out:
				if err := wsjson.Write(connCtx, conn, e); err != nil {
					return
				}
			case <-connCtx.Done():
				conn.Close(websocket.StatusNormalClosure, "client exited courseline")
				return
			}
		}
	}()

	for {
		var e domain.Event
		if err := wsjson.Read(connCtx, conn, &e); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				connCtx.Err() == nil {
				slog.Error("chat read", "err", err.Error())
			}
			cancel()
			<-writerDone
			return
		}
		c.dispatch(&e)
	}
}

func (c *Client) dispatch(e *domain.Event) {
	switch e.Name {
	case domain.EventAck:
		var resp domain.SendMessageResponse
		if err := e.Decode(&resp); err != nil {
			slog.Error(err.Error())
			return
		}
		c.resolveAck(e.ID, &resp)
	case domain.EventReceiveMessage:
		var p domain.ReceiveMessagePayload
		if err := e.Decode(&p); err != nil {
			slog.Error(err.Error())
			return
		}
		c.onReceiveMessage(&p)
	case domain.EventConversationUpdated:
		var p domain.ConversationUpdatedPayload
		if err := e.Decode(&p); err != nil {
			slog.Error(err.Error())
			return
		}
		c.onConversationUpdated(p.Conversation)
	case domain.EventMessagesRead:
		var p domain.MessagesReadPayload
		if err := e.Decode(&p); err != nil {
			slog.Error(err.Error())
			return
		}
		c.onMessagesRead(&p)
	case domain.EventUserTyping:
		var p domain.UserTypingPayload
		if err := e.Decode(&p); err != nil {
			slog.Error(err.Error())
			return
		}
		c.Typing.Write(p)
	case domain.EventLearnerStatusChanged:
		var p domain.LearnerStatusPayload
		if err := e.Decode(&p); err != nil {
			slog.Error(err.Error())
			return
		}
		c.onCounterpartStatus(p.LearnerID, p.IsOnline)
	case domain.EventInstructorStatusChanged:
		var p domain.InstructorStatusPayload
		if err := e.Decode(&p); err != nil {
			slog.Error(err.Error())
			return
		}
		c.onCounterpartStatus(p.InstructorID, p.IsOnline)
	case domain.EventMessageDeleted:
		var p domain.MessageDeletedPayload
		if err := e.Decode(&p); err != nil {
			slog.Error(err.Error())
			return
		}
		c.onMessagesDeleted(p.MessageIDs)
	default:
		slog.Warn("unknown server event", "event", e.Name)
	}
}

// send hands an event to the connection writer, failing fast while
// disconnected instead of queueing.
func (c *Client) send(e *domain.Event) error {
	if c.WsConnState.Get() != Connected {
		return ErrNotConnected
	}
	select {
	case c.out <- e:
		return nil
	case <-time.After(2 * time.Second):
		return ErrNotConnected
	}
}

func (c *Client) registerAck(correlationID string) chan *domain.SendMessageResponse {
	ch := make(chan *domain.SendMessageResponse, 1)
	c.acksMu.Lock()
	c.pendingAcks[correlationID] = ch
	c.acksMu.Unlock()
	return ch
}

func (c *Client) resolveAck(correlationID string, resp *domain.SendMessageResponse) {
	c.acksMu.Lock()
	ch, ok := c.pendingAcks[correlationID]
	if ok {
		delete(c.pendingAcks, correlationID)
	}
	c.acksMu.Unlock()
	if ok {
		ch <- resp
	}
}

func (c *Client) dropAck(correlationID string) {
	c.acksMu.Lock()
	delete(c.pendingAcks, correlationID)
	c.acksMu.Unlock()
}

// failPendingAcks resolves every in-flight send as failed once the
// connection drops, their outcome on the server is unknowable now.
func (c *Client) failPendingAcks() {
	c.acksMu.Lock()
	for id, ch := range c.pendingAcks {
		delete(c.pendingAcks, id)
		ch <- &domain.SendMessageResponse{Error: ErrNotConnected.Error()}
	}
	c.acksMu.Unlock()
}
