package client

import (
	"testing"
	"time"

	"github.com/edusphere/courseline/internal/domain"
)

func convoAt(id string, lastMessageAt *time.Time) *domain.Conversation {
	return &domain.Conversation{
		ID:            ptr(id),
		Counterpart:   domain.Counterpart{ID: "peer-" + id},
		LastMessageAt: lastMessageAt,
	}
}

func TestSortConvosNewestActivityFirst(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	convos := []*domain.Conversation{
		convoAt("old", ptr(base)),
		convoAt("silent", nil),
		convoAt("fresh", ptr(base.Add(time.Hour))),
	}

	sortConvos(convos)

	if *convos[0].ID != "fresh" || *convos[1].ID != "old" {
		t.Fatalf("order %q, %q; want fresh then old", *convos[0].ID, *convos[1].ID)
	}
	if *convos[2].ID != "silent" {
		t.Fatal("never-messaged conversation must sink to the bottom")
	}
}

func TestSortConvosIsStableForSilentThreads(t *testing.T) {
	convos := []*domain.Conversation{
		convoAt("first", nil),
		convoAt("second", nil),
	}
	sortConvos(convos)
	if *convos[0].ID != "first" || *convos[1].ID != "second" {
		t.Fatal("silent threads must keep their relative order")
	}
}

func TestDraftKeyBeforeAndAfterPersist(t *testing.T) {
	convo := &domain.Conversation{
		Course:      domain.Course{ID: "course-1"},
		Counterpart: domain.Counterpart{ID: "peer-1"},
	}
	virtual := draftKey(convo)
	if virtual != "course-1/peer-1" {
		t.Fatalf("virtual key %q, want the course/counterpart pair", virtual)
	}
	convo.ID = ptr("convo-1")
	if got := draftKey(convo); got != "convo-1" {
		t.Fatalf("persisted key %q, want the canonical id", got)
	}
}
