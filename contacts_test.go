package main

import "testing"

func TestAddContactRequestAndAccept(t *testing.T) {
	h := newTestHub(t)
	alice, aliceFt := registerAndLogin(t, h, "alice", "pw1pw1pw1")
	bob, bobFt := registerAndLogin(t, h, "bob", "pw2pw2pw2")

	h.handleAddContactRequest(alice, Envelope{Username: "bob"})
	if msg := aliceFt.last(); msg["type"] != TypeAddContactSuccess {
		t.Fatalf("expected add_contact_success, got %+v", msg)
	}
	if msg := bobFt.last(); msg["type"] != TypeIncomingContact || msg["fromUsername"] != "alice" {
		t.Fatalf("expected incoming_contact_request from alice, got %+v", msg)
	}

	h.handleContactRequestResponse(bob, Envelope{FromUsername: "alice", Response: "accepted"})

	found := false
	for _, m := range bobFt.messages() {
		if m["type"] == TypeContactList {
			users, _ := m["users"].([]any)
			for _, u := range users {
				row := u.(map[string]any)
				if row["username"] == "alice" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatalf("expected bob's contact_list to include alice after acceptance")
	}
}

func TestAddContactRequestDuplicateRejected(t *testing.T) {
	h := newTestHub(t)
	alice, aliceFt := registerAndLogin(t, h, "alice", "pw1pw1pw1")
	_, _ = registerAndLogin(t, h, "bob", "pw2pw2pw2")

	h.handleAddContactRequest(alice, Envelope{Username: "bob"})
	if msg := aliceFt.last(); msg["type"] != TypeAddContactSuccess {
		t.Fatalf("expected first request to succeed, got %+v", msg)
	}

	h.handleAddContactRequest(alice, Envelope{Username: "bob"})
	if msg := aliceFt.last(); msg["type"] != TypeAddContactFailure {
		t.Fatalf("expected duplicate request to fail, got %+v", msg)
	}
}

func TestAddContactRequestSelfRejected(t *testing.T) {
	h := newTestHub(t)
	alice, aliceFt := registerAndLogin(t, h, "alice", "pw1pw1pw1")

	h.handleAddContactRequest(alice, Envelope{Username: "alice"})
	msg := aliceFt.last()
	if msg["type"] != TypeAddContactFailure {
		t.Fatalf("expected add_contact_failure for self-request, got %+v", msg)
	}
}

func TestContactRequestDeclineRemovesEdge(t *testing.T) {
	h := newTestHub(t)
	alice, _ := registerAndLogin(t, h, "alice", "pw1pw1pw1")
	bob, _ := registerAndLogin(t, h, "bob", "pw2pw2pw2")

	h.handleAddContactRequest(alice, Envelope{Username: "bob"})
	h.handleContactRequestResponse(bob, Envelope{FromUsername: "alice", Response: "declined"})

	aliceUser, _ := h.st.GetUserByUsername("alice")
	bobUser, _ := h.st.GetUserByUsername("bob")
	if _, err := h.st.GetContactEdge(aliceUser.ID, bobUser.ID); err == nil {
		t.Fatalf("expected contact edge removed after decline")
	}
}

func TestSearchUsersExcludesCaller(t *testing.T) {
	h := newTestHub(t)
	alice, aliceFt := registerAndLogin(t, h, "alice", "pw1pw1pw1")
	_, _ = registerAndLogin(t, h, "alicia", "pw2pw2pw2")

	h.handleSearchUsers(alice, Envelope{Query: "ali"})
	msg := aliceFt.last()
	if msg["type"] != TypeSearchResults {
		t.Fatalf("expected search_results, got %+v", msg)
	}
	results, _ := msg["results"].([]any)
	for _, r := range results {
		row := r.(map[string]any)
		if row["username"] == "alice" {
			t.Fatalf("search results should exclude the caller")
		}
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly alicia in results, got %+v", results)
	}
}
