package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/edusphere/courseline/internal/domain"
)

// convosMu guards the working copy of the conversation list between the
// dispatch goroutine and the reconnect refetch.
var convosMu sync.Mutex

// populateConversationsAccordingToWsConnState refreshes the conversation
// list on every connection state change, from the server once Connected
// and from the local db while Disconnected.
func (c *Client) populateConversationsAccordingToWsConnState(shtdwnCtx context.Context) {
	for {
		s := c.WsConnState.WaitForStateChange()
		if shtdwnCtx.Err() != nil {
			return
		}
		switch s {
		case Connected:
			convos, code, err := c.getConversations()
			if err != nil { // fetch from db, stale counters beat an empty screen
				convos, err = c.repo.GetConversations()
				if err != nil {
					slog.Error(err.Error())
					continue
				}
			}
			if code == http.StatusUnauthorized {
				continue // user will be redirected to log-in
			}
			c.saveConvosAndWriteToChan(convos)
		case Disconnected:
			convos, err := c.repo.GetConversations()
			if err != nil {
				slog.Error(err.Error())
				continue
			}
			// presence is unknowable while offline
			for _, convo := range convos {
				convo.IsOnline = false
			}
			c.saveConvosAndWriteToChan(convos)
		}
	}
}

func (c *Client) getConversations() ([]*domain.Conversation, int, error) {
	r, err := http.NewRequest(http.MethodGet, getConversations, nil)
	if err != nil {
		slog.Error(err.Error())
		return nil, 0, ErrApplication
	}
	r.Header.Set("Authorization", "Bearer "+c.AuthToken)
	resp, err := http.DefaultClient.Do(r)
	if err != nil {
		slog.Error(err.Error())
		return nil, http.StatusServiceUnavailable, getMostNestedError(err)
	}
	defer resp.Body.Close()
	readBody, _ := io.ReadAll(resp.Body)
	var res struct {
		Conversations []*domain.Conversation `json:"conversations"`
	}
	if err = json.Unmarshal(readBody, &res); err != nil {
		slog.Error(err.Error())
		return nil, 0, ErrApplication
	}
	return res.Conversations, resp.StatusCode, nil
}

// onConversationUpdated merges the authoritative conversation into the
// list by id and resorts, the updated thread surfaces on top. Counters
// come as-is from the store, the client never computes them.
func (c *Client) onConversationUpdated(convo *domain.Conversation) {
	if convo == nil || convo.ID == nil {
		return
	}
	convosMu.Lock()
	convos := slices.Clone(c.Conversations.Get())
	idx := slices.IndexFunc(convos, func(existing *domain.Conversation) bool {
		return existing.ID != nil && *existing.ID == *convo.ID
	})
	if idx >= 0 {
		// the update omits counterpart details the list already has
		if convo.Counterpart.Name == "" {
			convo.Counterpart = convos[idx].Counterpart
		}
		if convo.Course.Name == "" {
			convo.Course = convos[idx].Course
		}
		convo.IsOnline = convos[idx].IsOnline
		convos[idx] = convo
	} else {
		convos = append(convos, convo)
	}
	sortConvos(convos)
	c.writeAndCacheLocked(convos)
	convosMu.Unlock()
}

// zeroOwnUnread clears the viewer's own counter on the list entry, so
// reading a chat reflects immediately instead of waiting for the
// server's refreshed summary.
func (c *Client) zeroOwnUnread(conversationID string) {
	if c.CurrentUsr == nil {
		return
	}
	convosMu.Lock()
	defer convosMu.Unlock()
	convos := slices.Clone(c.Conversations.Get())
	idx := slices.IndexFunc(convos, func(existing *domain.Conversation) bool {
		return existing.ID != nil && *existing.ID == conversationID
	})
	if idx < 0 || convos[idx].UnreadFor(c.CurrentUsr.Role) == 0 {
		return
	}
	updated := *convos[idx]
	if c.CurrentUsr.Role == domain.RoleInstructor {
		updated.InstructorUnreadCount = 0
	} else {
		updated.LearnerUnreadCount = 0
	}
	convos[idx] = &updated
	c.Conversations.Write(convos)
}

func (c *Client) onCounterpartStatus(userID string, online bool) {
	convosMu.Lock()
	convos := slices.Clone(c.Conversations.Get())
	for _, convo := range convos {
		if convo.Counterpart.ID == userID {
			convo.IsOnline = online
		}
	}
	c.Conversations.Write(convos)
	convosMu.Unlock()
}

func (c *Client) saveConvosAndWriteToChan(convos []*domain.Conversation) {
	convosMu.Lock()
	sortConvos(convos)
	c.writeAndCacheLocked(convos)
	convosMu.Unlock()
}

func (c *Client) writeAndCacheLocked(convos []*domain.Conversation) {
	c.Conversations.Write(convos)
	_ = c.repo.DeleteAllConversations()
	_ = c.repo.SaveConversations(convos...) // ignore the error
}

// sortConvos orders by last activity descending, never-messaged threads
// sink to the bottom.
func sortConvos(convos []*domain.Conversation) {
	slices.SortStableFunc(convos, func(a, b *domain.Conversation) int {
		if b.LastMessageAt == nil && a.LastMessageAt == nil {
			return 0
		}
		if b.LastMessageAt == nil {
			return -1
		}
		if a.LastMessageAt == nil {
			return 1
		}
		return b.LastMessageAt.Compare(*a.LastMessageAt)
	})
}

// SendTyping is fire and forget, a lost typing signal is harmless.
func (c *Client) SendTyping(conversationID string, isTyping bool) {
	e, err := domain.NewEvent(domain.EventTyping, "", domain.TypingPayload{
		ConversationID: conversationID,
		IsTyping:       isTyping,
	})
	if err != nil {
		slog.Error(err.Error())
		return
	}
	if err = c.send(e); err != nil && err != ErrNotConnected {
		slog.Error(err.Error())
	}
}
