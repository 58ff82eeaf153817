package server

import (
	"slices"
	"testing"
)

func TestRoomsJoinAndMembers(t *testing.T) {
	r := newRooms()
	r.Join("convo-1", "alice")
	r.Join("convo-1", "bob")
	r.Join("convo-2", "alice")

	got := r.Members("convo-1")
	slices.Sort(got)
	if !slices.Equal(got, []string{"alice", "bob"}) {
		t.Fatalf("members %v, want [alice bob]", got)
	}
	if got := r.Members("convo-2"); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("members %v, want [alice]", got)
	}
}

func TestRoomsJoinIsIdempotent(t *testing.T) {
	r := newRooms()
	r.Join("convo-1", "alice")
	r.Join("convo-1", "alice")
	if got := r.Members("convo-1"); len(got) != 1 {
		t.Fatalf("double join produced %d members, want 1", len(got))
	}
}

func TestRoomsLeave(t *testing.T) {
	r := newRooms()
	r.Join("convo-1", "alice")
	r.Join("convo-1", "bob")
	r.Leave("convo-1", "alice")

	if got := r.Members("convo-1"); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("members %v after leave, want [bob]", got)
	}
	// leaving a room never joined is a no-op
	r.Leave("convo-9", "bob")
	if got := r.Members("convo-1"); len(got) != 1 {
		t.Fatalf("unrelated leave changed membership: %v", got)
	}
}

func TestRoomsLeaveAllDetachesEveryRoom(t *testing.T) {
	r := newRooms()
	r.Join("convo-1", "alice")
	r.Join("convo-2", "alice")
	r.Join("convo-2", "bob")

	r.LeaveAll("alice")

	if got := r.Members("convo-1"); len(got) != 0 {
		t.Fatalf("convo-1 members %v, want empty", got)
	}
	if got := r.Members("convo-2"); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("convo-2 members %v, want [bob]", got)
	}
}

func TestRoomsMembersReturnsSnapshot(t *testing.T) {
	r := newRooms()
	r.Join("convo-1", "alice")
	snap := r.Members("convo-1")
	r.Join("convo-1", "bob")
	if len(snap) != 1 {
		t.Fatalf("snapshot mutated by later join: %v", snap)
	}
}

func TestRoomsIsMember(t *testing.T) {
	r := newRooms()
	r.Join("convo-1", "alice")

	if !r.IsMember("convo-1", "alice") {
		t.Fatal("alice joined convo-1 and must be a member")
	}
	if r.IsMember("convo-1", "mallory") {
		t.Fatal("mallory never joined convo-1")
	}
	if r.IsMember("convo-2", "alice") {
		t.Fatal("membership must not leak across rooms")
	}

	r.Leave("convo-1", "alice")
	if r.IsMember("convo-1", "alice") {
		t.Fatal("leaving must drop membership")
	}
}
