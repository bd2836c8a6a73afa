package websocket

import "testing"

func TestPresence_RegisterAndMembers(t *testing.T) {
	pr := NewPresence()

	pr.Register("p1", &Participant{UserID: "u1", UserName: "Alice"})
	pr.Register("p1", &Participant{UserID: "u2", UserName: "Bob"})

	members := pr.Members("p1")
	if len(members) != 2 {
		t.Fatalf("member count: got %d, want 2", len(members))
	}
	if members[0].UserID != "u1" || members[1].UserID != "u2" {
		t.Errorf("member order not insertion order: got %s, %s", members[0].UserID, members[1].UserID)
	}
}

func TestPresence_JoinLeaveSizeInvariant(t *testing.T) {
	pr := NewPresence()

	joins := []string{"u1", "u2", "u3", "u4"}
	for _, id := range joins {
		pr.Register("p1", &Participant{UserID: id})
	}
	pr.Unregister("p1", "u2")
	pr.Unregister("p1", "u4")

	if got := len(pr.Members("p1")); got != 2 {
		t.Errorf("member count after 4 joins and 2 leaves: got %d, want 2", got)
	}
}

func TestPresence_ReconnectReplaces(t *testing.T) {
	pr := NewPresence()

	pr.Register("p1", &Participant{UserID: "u1", UserName: "Alice"})
	pr.Register("p1", &Participant{UserID: "u2", UserName: "Bob"})
	pr.Register("p1", &Participant{UserID: "u1", UserName: "Alice II"})

	members := pr.Members("p1")
	if len(members) != 1+1 {
		t.Fatalf("reconnect duplicated entry: got %d members, want 2", len(members))
	}
	if members[0].UserID != "u1" || members[0].UserName != "Alice II" {
		t.Errorf("reconnect did not replace in place: got %s/%s", members[0].UserID, members[0].UserName)
	}
}

func TestPresence_UnregisterAbsentIsNoop(t *testing.T) {
	pr := NewPresence()

	pr.Register("p1", &Participant{UserID: "u1"})
	pr.Unregister("p1", "nope")
	pr.Unregister("other", "u1")

	if got := len(pr.Members("p1")); got != 1 {
		t.Errorf("member count after no-op unregisters: got %d, want 1", got)
	}
}

func TestPresence_EmptyRoomForgotten(t *testing.T) {
	pr := NewPresence()

	pr.Register("p1", &Participant{UserID: "u1"})
	if pr.Empty("p1") {
		t.Error("room reported empty with a member present")
	}

	pr.Unregister("p1", "u1")
	if !pr.Empty("p1") {
		t.Error("room not empty after last member left")
	}
	if got := len(pr.Members("p1")); got != 0 {
		t.Errorf("members of forgotten room: got %d, want 0", got)
	}
}

func TestPresence_MembersIsSnapshot(t *testing.T) {
	pr := NewPresence()

	pr.Register("p1", &Participant{UserID: "u1", UserName: "Alice"})
	snapshot := pr.Members("p1")

	pr.Register("p1", &Participant{UserID: "u1", UserName: "Renamed"})
	if snapshot[0].UserName != "Alice" {
		t.Errorf("snapshot mutated by later register: got %s, want Alice", snapshot[0].UserName)
	}
}
