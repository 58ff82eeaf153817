package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/edusphere/courseline/internal/domain"
	"github.com/google/uuid"
)

const chatPageSize = 25

var ErrDeleteWindowPassed = errors.New("some selected messages can no longer be deleted for everyone")

// chatState models the one conversation the user has open. Messages are
// keyed by id so an acked send and the same message arriving as a push
// collapse into one entry.
type chatState struct {
	mu           sync.Mutex
	conversation *domain.Conversation
	byID         map[string]*domain.Message
	order        []*domain.Message // ascending by CreatedAt
	hasMore      bool
	selecting    bool
	selected     map[string]struct{}
}

func newChatState() *chatState {
	return &chatState{
		byID:     make(map[string]*domain.Message),
		selected: make(map[string]struct{}),
	}
}

func (cs *chatState) reset(convo *domain.Conversation) {
	cs.mu.Lock()
	cs.conversation = convo
	cs.byID = make(map[string]*domain.Message)
	cs.order = cs.order[:0]
	cs.hasMore = false
	cs.selecting = false
	cs.selected = make(map[string]struct{})
	cs.mu.Unlock()
}

func (cs *chatState) activeID() (string, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.conversation == nil || cs.conversation.ID == nil {
		return "", false
	}
	return *cs.conversation.ID, true
}

// merge inserts a message in timestamp order, reporting whether it was
// new. Re-merging an id the ack already placed is a no-op.
func (cs *chatState) merge(msg *domain.Message) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.byID[msg.ID]; ok {
		return false
	}
	cs.byID[msg.ID] = msg
	at, _ := slices.BinarySearchFunc(cs.order, msg, func(a, b *domain.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	cs.order = slices.Insert(cs.order, at, msg)
	return true
}

// prepend adds an older page to the front, skipping ids already loaded,
// and returns how many survived so the view can anchor its scroll.
func (cs *chatState) prepend(msgs []*domain.Message) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	fresh := make([]*domain.Message, 0, len(msgs))
	for _, msg := range msgs {
		if _, ok := cs.byID[msg.ID]; ok {
			continue
		}
		cs.byID[msg.ID] = msg
		fresh = append(fresh, msg)
	}
	cs.order = slices.Insert(cs.order, 0, fresh...)
	return len(fresh)
}

func (cs *chatState) snapshot() []*domain.Message {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return slices.Clone(cs.order)
}

func (cs *chatState) applyRead(readerID string, readAt time.Time) {
	cs.mu.Lock()
	for _, msg := range cs.order {
		if msg.SenderID != readerID && !msg.IsRead {
			msg.IsRead = true
			msg.ReadAt = ptr(readAt)
		}
	}
	cs.mu.Unlock()
}

func (cs *chatState) applyTombstones(ids []string) {
	cs.mu.Lock()
	for _, id := range ids {
		if msg, ok := cs.byID[id]; ok {
			msg.Tombstone()
		}
	}
	cs.mu.Unlock()
}

func (cs *chatState) remove(ids []string) {
	cs.mu.Lock()
	for _, id := range ids {
		delete(cs.byID, id)
	}
	cs.order = slices.DeleteFunc(cs.order, func(msg *domain.Message) bool {
		_, gone := cs.byID[msg.ID]
		return !gone
	})
	cs.mu.Unlock()
}

// OpenChat makes the conversation active and loads its newest page, from
// the server when connected and from the local cache otherwise. A
// virtual conversation has no id, no history and no room yet.
func (c *Client) OpenChat(convo *domain.Conversation) error {
	c.chat.reset(convo)
	if convo.ID == nil {
		return nil
	}
	msgs, hasMore, err := c.loadMessages(*convo.ID, 0)
	if err != nil {
		return err
	}
	c.chat.mu.Lock()
	c.chat.hasMore = hasMore
	c.chat.mu.Unlock()
	for _, msg := range msgs {
		c.chat.merge(msg)
	}
	c.joinRoom(*convo.ID)
	return nil
}

func (c *Client) CloseChat() {
	if id, ok := c.chat.activeID(); ok {
		e, err := domain.NewEvent(domain.EventLeaveChat, "", domain.JoinChatPayload{ConversationID: id})
		if err == nil {
			_ = c.send(e) // already gone if disconnected
		}
	}
	c.chat.reset(nil)
}

func (c *Client) ActiveMessages() []*domain.Message {
	return c.chat.snapshot()
}

// LoadOlderMessages fetches the page before the oldest loaded message
// and reports how many new messages were prepended. The offset is the
// loaded count, and the id filter drops rows that shifted between pages.
func (c *Client) LoadOlderMessages() (int, error) {
	id, ok := c.chat.activeID()
	if !ok {
		return 0, nil
	}
	c.chat.mu.Lock()
	offset := len(c.chat.order)
	hasMore := c.chat.hasMore
	c.chat.mu.Unlock()
	if !hasMore {
		return 0, nil
	}
	msgs, more, err := c.loadMessages(id, offset)
	if err != nil {
		return 0, err
	}
	c.chat.mu.Lock()
	c.chat.hasMore = more
	c.chat.mu.Unlock()
	return c.chat.prepend(msgs), nil
}

// SendMessage delivers the draft over the event channel and waits for
// the ack. The draft is the caller's to keep until this returns nil, a
// failed or unacknowledged send loses nothing.
func (c *Client) SendMessage(draft domain.MessageDraft) (*domain.Message, error) {
	c.chat.mu.Lock()
	convo := c.chat.conversation
	c.chat.mu.Unlock()
	if convo == nil {
		return nil, ErrApplication
	}
	if c.WsConnState.Get() != Connected {
		return nil, ErrNotConnected
	}

	correlationID := uuid.New().String()
	payload := domain.SendMessagePayload{
		ReceiverID:     convo.Counterpart.ID,
		ConversationID: convo.ID,
		Message:        draft,
		CourseID:       convo.Course.ID,
	}
	e, err := domain.NewEvent(domain.EventSendMessage, correlationID, payload)
	if err != nil {
		return nil, err
	}
	ackCh := c.registerAck(correlationID)
	if err = c.send(e); err != nil {
		c.dropAck(correlationID)
		return nil, err
	}

	var resp *domain.SendMessageResponse
	select {
	case resp = <-ackCh:
	case <-time.After(ackTimeout):
		c.dropAck(correlationID)
		return nil, ErrAckTimeout
	}
	if !resp.Success {
		if resp.Error == ErrNotConnected.Error() {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("message rejected: %s", resp.Error)
	}

	wasVirtual := convo.ID == nil
	c.chat.mu.Lock()
	if c.chat.conversation != nil && c.chat.conversation.ID == nil {
		c.chat.conversation.ID = ptr(resp.ConversationID)
	}
	c.chat.mu.Unlock()
	if wasVirtual {
		// the first ack hands back the canonical id, bind to its room now
		c.joinRoom(resp.ConversationID)
	}
	c.chat.merge(resp.Message)
	if err = c.repo.SaveMsg(resp.Message); err != nil {
		slog.Error(err.Error())
	}
	return resp.Message, nil
}

// MarkChatRead reports the open conversation as read. The store zeroes
// the viewer's counter and the read receipt reaches the counterpart via
// the room.
func (c *Client) MarkChatRead() error {
	id, ok := c.chat.activeID()
	if !ok {
		return nil
	}
	e, err := domain.NewEvent(domain.EventMarkMessagesRead, "", domain.MarkMessagesReadPayload{ConversationID: id})
	if err != nil {
		return err
	}
	if err = c.send(e); err != nil {
		return err
	}
	if c.CurrentUsr != nil {
		now := time.Now()
		c.chat.applyRead(c.CurrentUsr.ID, now)
		_ = c.repo.MarkConversationRead(id, c.CurrentUsr.ID, now)
		c.zeroOwnUnread(id)
	}
	return nil
}

// Selection mode ------------------------------------------------------

func (c *Client) StartSelection() {
	c.chat.mu.Lock()
	c.chat.selecting = true
	c.chat.mu.Unlock()
}

func (c *Client) Selecting() bool {
	c.chat.mu.Lock()
	defer c.chat.mu.Unlock()
	return c.chat.selecting
}

func (c *Client) ToggleSelected(messageID string) {
	c.chat.mu.Lock()
	defer c.chat.mu.Unlock()
	if !c.chat.selecting {
		return
	}
	if _, ok := c.chat.selected[messageID]; ok {
		delete(c.chat.selected, messageID)
	} else if _, loaded := c.chat.byID[messageID]; loaded {
		c.chat.selected[messageID] = struct{}{}
	}
}

func (c *Client) ClearSelection() {
	c.chat.mu.Lock()
	c.chat.selecting = false
	c.chat.selected = make(map[string]struct{})
	c.chat.mu.Unlock()
}

func (c *Client) SelectedIDs() []string {
	c.chat.mu.Lock()
	defer c.chat.mu.Unlock()
	ids := make([]string, 0, len(c.chat.selected))
	for id := range c.chat.selected {
		ids = append(ids, id)
	}
	return ids
}

// CanDeleteSelectedForEveryone is the client-side pre-check, every
// selected message must be the user's own and inside the delete window.
// The store re-verifies against its own clock, skew can still flip the
// verdict.
func (c *Client) CanDeleteSelectedForEveryone() bool {
	if c.CurrentUsr == nil {
		return false
	}
	c.chat.mu.Lock()
	defer c.chat.mu.Unlock()
	if len(c.chat.selected) == 0 {
		return false
	}
	now := time.Now()
	for id := range c.chat.selected {
		msg, ok := c.chat.byID[id]
		if !ok || !msg.DeletableForEveryone(c.CurrentUsr.ID, now) {
			return false
		}
	}
	return true
}

// DeleteSelected removes the selected messages in the given scope. The
// whole batch succeeds or nothing changes, a rejection leaves the
// selection exactly as it was.
func (c *Client) DeleteSelected(scope domain.DeleteScope) error {
	ids := c.SelectedIDs()
	if len(ids) == 0 {
		return nil
	}
	switch scope {
	case domain.DeleteScopeMe:
		if err := c.deleteMessagesREST(ids, scope); err != nil {
			return err
		}
		c.chat.remove(ids)
		if err := c.repo.DeleteMsgs(ids...); err != nil {
			slog.Error(err.Error())
		}
		c.ClearSelection()
		return nil
	case domain.DeleteScopeEveryone:
		if !c.CanDeleteSelectedForEveryone() {
			return ErrDeleteWindowPassed
		}
		id, ok := c.chat.activeID()
		if !ok {
			return ErrApplication
		}
		// the store's verdict is authoritative, a rejection past the
		// local pre-check (clock skew) comes back here as an error and
		// the selection stays untouched
		if err := c.deleteMessagesREST(ids, scope); err != nil {
			return err
		}
		if err := c.repo.TombstoneMsgs(ids...); err != nil {
			slog.Error(err.Error())
		}
		c.chat.applyTombstones(ids)
		c.ClearSelection()
		c.notifyMessagesDeleted(id, ids)
		return nil
	default:
		return ErrApplication
	}
}

// notifyMessagesDeleted tells the room about an already-persisted
// delete so connected participants tombstone without a refetch. Best
// effort, anyone offline sees the tombstones on their next fetch.
func (c *Client) notifyMessagesDeleted(conversationID string, ids []string) {
	e, err := domain.NewEvent(domain.EventDeleteMessage, "", domain.DeleteMessagePayload{
		ConversationID: conversationID,
		MessageIDs:     ids,
	})
	if err != nil {
		slog.Error(err.Error())
		return
	}
	if err = c.send(e); err != nil && err != ErrNotConnected {
		slog.Error(err.Error())
	}
}

func (c *Client) deleteMessagesREST(ids []string, scope domain.DeleteScope) error {
	body, err := json.Marshal(map[string]any{"messageIds": ids, "scope": scope})
	if err != nil {
		return err
	}
	r, err := http.NewRequest(http.MethodDelete, deleteMessages, bytes.NewReader(body))
	if err != nil {
		slog.Error(err.Error())
		return ErrApplication
	}
	r.Header.Set("Authorization", "Bearer "+c.AuthToken)
	r.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(r)
	if err != nil {
		slog.Error(err.Error())
		return getMostNestedError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		readBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("delete rejected: status %d: %s", resp.StatusCode, readBody)
	}
	return nil
}

// Event handlers wired from dispatch ----------------------------------

func (c *Client) onReceiveMessage(p *domain.ReceiveMessagePayload) {
	if p.Message == nil {
		return
	}
	if err := c.repo.SaveMsg(p.Message); err != nil {
		slog.Error(err.Error())
	}
	if id, ok := c.chat.activeID(); ok && id == p.ConversationID {
		c.chat.merge(p.Message)
	}
}

func (c *Client) onMessagesRead(p *domain.MessagesReadPayload) {
	_ = c.repo.MarkConversationRead(p.ConversationID, p.ReaderID, p.ReadAt)
	if id, ok := c.chat.activeID(); ok && id == p.ConversationID {
		c.chat.applyRead(p.ReaderID, p.ReadAt)
	}
}

func (c *Client) onMessagesDeleted(ids []string) {
	if err := c.repo.TombstoneMsgs(ids...); err != nil {
		slog.Error(err.Error())
	}
	c.chat.applyTombstones(ids)
	// a confirmed delete-for-everyone also closes the selection
	c.chat.mu.Lock()
	if c.chat.selecting {
		confirmed := true
		for id := range c.chat.selected {
			if !slices.Contains(ids, id) {
				confirmed = false
				break
			}
		}
		if confirmed && len(c.chat.selected) > 0 {
			c.chat.selecting = false
			c.chat.selected = make(map[string]struct{})
		}
	}
	c.chat.mu.Unlock()
}

// joinRoom subscribes this connection to the conversation's fan-out.
func (c *Client) joinRoom(conversationID string) {
	e, err := domain.NewEvent(domain.EventJoinChat, "", domain.JoinChatPayload{ConversationID: conversationID})
	if err != nil {
		slog.Error(err.Error())
		return
	}
	if err = c.send(e); err != nil && err != ErrNotConnected {
		slog.Error(err.Error())
	}
}

// rejoinActiveChat re-binds the open conversation's room after a
// reconnect, the server forgot the membership with the old connection.
func (c *Client) rejoinActiveChat() {
	if id, ok := c.chat.activeID(); ok {
		c.joinRoom(id)
	}
}

// loadMessages returns one ascending page, REST when connected and the
// SQLite cache otherwise.
func (c *Client) loadMessages(conversationID string, offset int) ([]*domain.Message, bool, error) {
	if c.WsConnState.Get() == Connected {
		return c.fetchMessagesREST(conversationID, offset)
	}
	msgs, total, err := c.repo.GetMsgsPage(conversationID, offset, chatPageSize)
	if err != nil {
		return nil, false, err
	}
	slices.Reverse(msgs) // cache pages newest-first, the thread reads ascending
	return msgs, offset+len(msgs) < total, nil
}

func (c *Client) fetchMessagesREST(conversationID string, offset int) ([]*domain.Message, bool, error) {
	url := fmt.Sprintf(getMessagesFmt+"?offset=%d&limit=%d", conversationID, offset, chatPageSize)
	r, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		slog.Error(err.Error())
		return nil, false, ErrApplication
	}
	r.Header.Set("Authorization", "Bearer "+c.AuthToken)
	resp, err := http.DefaultClient.Do(r)
	if err != nil {
		slog.Error(err.Error())
		return nil, false, getMostNestedError(err)
	}
	defer resp.Body.Close()
	readBody, _ := io.ReadAll(resp.Body)
	var res struct {
		Messages []*domain.Message `json:"messages"`
		HasMore  bool              `json:"hasMore"`
	}
	if err = json.Unmarshal(readBody, &res); err != nil {
		slog.Error(err.Error())
		return nil, false, ErrApplication
	}
	for _, msg := range res.Messages {
		if err = c.repo.SaveMsg(msg); err != nil {
			slog.Error(err.Error())
		}
	}
	return res.Messages, res.HasMore, nil
}
