package client

import (
	"testing"
	"time"

	"github.com/edusphere/courseline/internal/domain"
)

func msgAt(id, senderID string, at time.Time) *domain.Message {
	return &domain.Message{
		ID:             id,
		ConversationID: "convo-1",
		SenderID:       senderID,
		Content:        "m-" + id,
		CreatedAt:      at,
	}
}

func testClientWithChat(selfID string) *Client {
	return &Client{
		CurrentUsr: &domain.User{ID: selfID, Role: domain.RoleLearner},
		chat:       newChatState(),
		drafts:     newDraftState(),
	}
}

func TestChatMergeIsIdempotentByID(t *testing.T) {
	cs := newChatState()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	m := msgAt("a", "self", base)

	if !cs.merge(m) {
		t.Fatal("first merge must report the message as new")
	}
	// the same message arrives again as a room push after the ack
	if cs.merge(msgAt("a", "self", base)) {
		t.Fatal("re-merging a known id must be a no-op")
	}
	if got := len(cs.snapshot()); got != 1 {
		t.Fatalf("ack/push race produced %d entries, want 1", got)
	}
}

func TestChatMergeKeepsChronologicalOrder(t *testing.T) {
	cs := newChatState()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	cs.merge(msgAt("b", "self", base.Add(2*time.Minute)))
	cs.merge(msgAt("a", "peer", base))
	cs.merge(msgAt("c", "self", base.Add(5*time.Minute)))

	snap := cs.snapshot()
	for i := 1; i < len(snap); i++ {
		if snap[i].CreatedAt.Before(snap[i-1].CreatedAt) {
			t.Fatalf("out of order at %d: %v after %v", i, snap[i].CreatedAt, snap[i-1].CreatedAt)
		}
	}
}

func TestChatPrependFiltersOverlapAndCounts(t *testing.T) {
	cs := newChatState()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	cs.merge(msgAt("c", "peer", base.Add(2*time.Minute)))
	cs.merge(msgAt("d", "self", base.Add(3*time.Minute)))

	// an older page slid by one because a new message arrived server
	// side, so it overlaps with what is already loaded
	older := []*domain.Message{
		msgAt("a", "peer", base),
		msgAt("b", "self", base.Add(time.Minute)),
		msgAt("c", "peer", base.Add(2*time.Minute)),
	}
	prepended := cs.prepend(older)
	if prepended != 2 {
		t.Fatalf("prepended %d, want 2 after overlap filtering", prepended)
	}
	snap := cs.snapshot()
	if len(snap) != 4 {
		t.Fatalf("thread has %d messages, want 4 without duplicates", len(snap))
	}
	wantOrder := []string{"a", "b", "c", "d"}
	for i, id := range wantOrder {
		if snap[i].ID != id {
			t.Fatalf("position %d holds %q, want %q", i, snap[i].ID, id)
		}
	}
}

func TestChatApplyTombstones(t *testing.T) {
	cs := newChatState()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	cs.merge(msgAt("a", "self", base))
	cs.merge(msgAt("b", "peer", base.Add(time.Minute)))

	cs.applyTombstones([]string{"a", "missing"})

	snap := cs.snapshot()
	if len(snap) != 2 {
		t.Fatalf("tombstone removed a message from the thread, %d left", len(snap))
	}
	if snap[0].Content != "" || !snap[0].IsDeletedForEveryone {
		t.Fatalf("message a not tombstoned: %+v", snap[0])
	}
	if snap[1].Content == "" || snap[1].IsDeletedForEveryone {
		t.Fatalf("message b wrongly tombstoned: %+v", snap[1])
	}
}

func TestChatApplyReadFlipsOnlyCounterpartAuthored(t *testing.T) {
	cs := newChatState()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	mine := msgAt("a", "self", base)
	theirs := msgAt("b", "peer", base.Add(time.Minute))
	cs.merge(mine)
	cs.merge(theirs)

	readAt := base.Add(2 * time.Minute)
	cs.applyRead("peer", readAt) // the counterpart read the thread

	if !mine.IsRead || mine.ReadAt == nil || !mine.ReadAt.Equal(readAt) {
		t.Fatalf("own message not flipped by counterpart's receipt: %+v", mine)
	}
	if theirs.IsRead {
		t.Fatal("counterpart's own message must not flip on their receipt")
	}
}

func TestChatRemoveDropsMessages(t *testing.T) {
	cs := newChatState()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	cs.merge(msgAt("a", "self", base))
	cs.merge(msgAt("b", "self", base.Add(time.Minute)))
	cs.merge(msgAt("c", "peer", base.Add(2*time.Minute)))

	cs.remove([]string{"a", "c"})

	snap := cs.snapshot()
	if len(snap) != 1 || snap[0].ID != "b" {
		t.Fatalf("remaining %v, want just b", snap)
	}
}

func TestCanDeleteSelectedForEveryone(t *testing.T) {
	c := testClientWithChat("self")
	now := time.Now()
	c.chat.merge(msgAt("recent", "self", now.Add(-time.Minute)))
	c.chat.merge(msgAt("stale", "self", now.Add(-domain.DeleteWindow-time.Minute)))
	c.chat.merge(msgAt("theirs", "peer", now.Add(-time.Minute)))

	c.StartSelection()

	c.ToggleSelected("recent")
	if !c.CanDeleteSelectedForEveryone() {
		t.Fatal("own message inside the window must be deletable for everyone")
	}

	c.ToggleSelected("stale")
	if c.CanDeleteSelectedForEveryone() {
		t.Fatal("a stale message in the selection must fail the pre-check")
	}
	c.ToggleSelected("stale")

	c.ToggleSelected("theirs")
	if c.CanDeleteSelectedForEveryone() {
		t.Fatal("someone else's message in the selection must fail the pre-check")
	}
}

func TestSelectionSurvivesFailedPreCheck(t *testing.T) {
	c := testClientWithChat("self")
	now := time.Now()
	c.chat.merge(msgAt("stale", "self", now.Add(-domain.DeleteWindow-time.Minute)))

	c.StartSelection()
	c.ToggleSelected("stale")

	if err := c.DeleteSelected(domain.DeleteScopeEveryone); err != ErrDeleteWindowPassed {
		t.Fatalf("expected ErrDeleteWindowPassed, got %v", err)
	}
	if got := c.SelectedIDs(); len(got) != 1 || got[0] != "stale" {
		t.Fatalf("rejection cleared the selection: %v", got)
	}
	if !c.Selecting() {
		t.Fatal("rejection must leave selection mode active")
	}
}

func TestToggleSelectedIgnoresUnloadedIDs(t *testing.T) {
	c := testClientWithChat("self")
	c.StartSelection()
	c.ToggleSelected("ghost")
	if got := c.SelectedIDs(); len(got) != 0 {
		t.Fatalf("selected unloaded id: %v", got)
	}
}
