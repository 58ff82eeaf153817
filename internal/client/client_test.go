package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edusphere/courseline/internal/client/repository"
	csync "github.com/edusphere/courseline/internal/client/sync"
	"github.com/edusphere/courseline/internal/domain"
)

// testClientWithDB builds a client over a throwaway sqlite cache with
// the connection reported as live, close enough to a logged-in session
// for everything that never touches a real socket.
func testClientWithDB(t *testing.T, role string) *Client {
	t.Helper()
	db, err := repository.OpenDB(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err = db.RunMigrations(); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	c := &Client{
		CurrentUsr:    &domain.User{ID: "self", Role: role},
		repo:          repository.NewLocalRepository(db),
		WsConnState:   csync.NewStatus[WsConnState](Connected),
		Conversations: csync.NewBroadcaster[Convos](),
		chat:          newChatState(),
		drafts:        newDraftState(),
		out:           make(chan *domain.Event, 16),
		pendingAcks:   make(map[string]chan *domain.SendMessageResponse),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Conversations.Broadcast(ctx)
	return c
}

func TestMarkChatReadZeroesOwnListCounter(t *testing.T) {
	c := testClientWithDB(t, domain.RoleLearner)
	convoID := "conv-1"
	c.chat.reset(&domain.Conversation{ID: ptr(convoID)})

	token, ch := c.Conversations.Subscribe()
	defer c.Conversations.Unsubscribe(token)
	c.Conversations.Write(Convos{{ID: ptr(convoID), LearnerUnreadCount: 3, InstructorUnreadCount: 1}})
	<-ch // seeded list

	if err := c.MarkChatRead(); err != nil {
		t.Fatalf("MarkChatRead: %v", err)
	}

	updated := <-ch
	if len(updated) != 1 {
		t.Fatalf("list length %d, want 1", len(updated))
	}
	if got := updated[0].LearnerUnreadCount; got != 0 {
		t.Fatalf("reader's own counter = %d, want 0 without waiting for a refetch", got)
	}
	if got := updated[0].InstructorUnreadCount; got != 1 {
		t.Fatalf("counterpart's counter = %d, it is not the reader's to touch", got)
	}
}

func TestDeleteForEveryoneRejectionSurfacesError(t *testing.T) {
	c := testClientWithDB(t, domain.RoleLearner)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": "permission denied"}`))
	}))
	t.Cleanup(ts.Close)
	orig := deleteMessages
	deleteMessages = ts.URL + "/v1/messages"
	t.Cleanup(func() { deleteMessages = orig })

	c.chat.reset(&domain.Conversation{ID: ptr("convo-1")})
	c.chat.merge(msgAt("m1", "self", time.Now().Add(-time.Minute)))
	c.StartSelection()
	c.ToggleSelected("m1")

	if err := c.DeleteSelected(domain.DeleteScopeEveryone); err == nil {
		t.Fatal("a store rejection must come back as an error, not a silent no-op")
	}
	if !c.Selecting() || len(c.SelectedIDs()) != 1 {
		t.Fatal("a rejected delete must leave the selection intact")
	}
	if msgs := c.ActiveMessages(); msgs[0].IsDeletedForEveryone || msgs[0].Content == "" {
		t.Fatal("a rejected delete must not tombstone locally")
	}
	select {
	case <-c.out:
		t.Fatal("nothing persisted, so nothing to notify the room about")
	default:
	}
}

func TestDeleteForEveryonePersistsThenNotifiesRoom(t *testing.T) {
	c := testClientWithDB(t, domain.RoleLearner)
	var gotMethod string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Write([]byte(`{"deleted": ["m1"], "scope": "EVERYONE"}`))
	}))
	t.Cleanup(ts.Close)
	orig := deleteMessages
	deleteMessages = ts.URL + "/v1/messages"
	t.Cleanup(func() { deleteMessages = orig })

	c.chat.reset(&domain.Conversation{ID: ptr("convo-1")})
	c.chat.merge(msgAt("m1", "self", time.Now().Add(-time.Minute)))
	c.StartSelection()
	c.ToggleSelected("m1")

	if err := c.DeleteSelected(domain.DeleteScopeEveryone); err != nil {
		t.Fatalf("DeleteSelected: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Fatalf("persisted over %q, want the DELETE call first", gotMethod)
	}
	if msgs := c.ActiveMessages(); !msgs[0].IsDeletedForEveryone || msgs[0].Content != "" {
		t.Fatal("a persisted delete must tombstone locally")
	}
	if c.Selecting() {
		t.Fatal("a persisted delete must close selection mode")
	}
	select {
	case e := <-c.out:
		if e.Name != domain.EventDeleteMessage {
			t.Fatalf("queued %q, want the deleteMessage room notification", e.Name)
		}
	default:
		t.Fatal("the room notification must follow the persisted delete")
	}
}

func TestConversationUpdatedInsertsNewThreadWithCounterpart(t *testing.T) {
	c := testClientWithDB(t, domain.RoleLearner)
	token, ch := c.Conversations.Subscribe()
	defer c.Conversations.Unsubscribe(token)

	now := time.Now().UTC()
	c.onConversationUpdated(&domain.Conversation{
		ID:            ptr("conv-9"),
		Course:        domain.Course{ID: "course-1", Name: "Algebra"},
		Counterpart:   domain.Counterpart{ID: "peer", Name: "Dana"},
		LastMessageAt: ptr(now),
	})

	got := <-ch
	if len(got) != 1 {
		t.Fatalf("list length %d, want the new thread upserted", len(got))
	}
	if got[0].Counterpart.Name != "Dana" || got[0].Course.Name != "Algebra" {
		t.Fatalf("new thread carries counterpart %q / course %q, details must survive the upsert",
			got[0].Counterpart.Name, got[0].Course.Name)
	}

	// the presence overlay matches on the counterpart id
	c.onCounterpartStatus("peer", true)
	got = <-ch
	if !got[0].IsOnline {
		t.Fatal("presence flip must reach the freshly inserted thread")
	}
}
