package main

import "testing"

func TestPrivateMessageEchoAndRelayBothOnline(t *testing.T) {
	h := newTestHub(t)
	alice, aliceFt := registerAndLogin(t, h, "alice", "pw1pw1pw1")
	_, bobFt := registerAndLogin(t, h, "bob", "pw2pw2pw2")

	h.handlePrivateMessage(alice, Envelope{ToUser: "bob", Payload: "hi", TempID: "t-1"})

	echo := aliceFt.last()
	if echo["type"] != TypePrivateMessage || echo["temp_id"] != "t-1" || echo["payload"] != "hi" {
		t.Fatalf("unexpected echo: %+v", echo)
	}

	relay := bobFt.last()
	if relay["type"] != TypePrivateMessage || relay["payload"] != "hi" {
		t.Fatalf("unexpected relay: %+v", relay)
	}
	if _, hasTemp := relay["temp_id"]; hasTemp {
		t.Fatalf("relay should not carry temp_id: %+v", relay)
	}
}

func TestPrivateMessageOfflineRecipientStillPersists(t *testing.T) {
	h := newTestHub(t)
	alice, aliceFt := registerAndLogin(t, h, "alice", "pw1pw1pw1")
	bobConn, _ := newTestConn()
	h.handleRegister(bobConn, Envelope{Username: "bob", Password: "pw2pw2pw2"})

	h.handlePrivateMessage(alice, Envelope{ToUser: "bob", Payload: "hi offline", TempID: "t-2"})

	echo := aliceFt.last()
	if echo["type"] != TypePrivateMessage {
		t.Fatalf("expected echo even with offline recipient: %+v", echo)
	}

	bobConn2, bobFt2 := registerAndLoginExisting(t, h, "bob", "pw2pw2pw2")
	_ = bobConn2
	var unread map[string]any
	for _, m := range bobFt2.messages() {
		if m["type"] == TypeUnreadCounts {
			unread = m
		}
	}
	if unread == nil {
		t.Fatalf("expected unread_counts on login, messages: %+v", bobFt2.messages())
	}
}

// registerAndLoginExisting logs in a user that is already registered.
func registerAndLoginExisting(t *testing.T, h *Hub, username, password string) (*Connection, *fakeTransport) {
	t.Helper()
	conn, ft := newTestConn()
	h.handleLogin(conn, Envelope{Username: username, Password: password})
	return conn, ft
}

func TestMessageDeliveredRequiresRecipient(t *testing.T) {
	h := newTestHub(t)
	alice, _ := registerAndLogin(t, h, "alice", "pw1pw1pw1")
	bob, bobFt := registerAndLogin(t, h, "bob", "pw2pw2pw2")

	h.handlePrivateMessage(alice, Envelope{ToUser: "bob", Payload: "hi", TempID: "t-1"})
	var msgID int64
	for _, m := range bobFt.messages() {
		if m["type"] == TypePrivateMessage {
			msgID = int64(m["id"].(float64))
		}
	}

	// Alice (the sender, not the recipient) tries to mark it delivered.
	h.handleMessageDelivered(alice, Envelope{ID: msgID})

	m, err := h.st.GetMessage(msgID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if m.IsDelivered {
		t.Fatalf("sender should not be able to mark their own message delivered")
	}

	h.handleMessageDelivered(bob, Envelope{ID: msgID})
	m, _ = h.st.GetMessage(msgID)
	if !m.IsDelivered {
		t.Fatalf("expected recipient's delivered receipt to apply")
	}
}

func TestEditMessageOnlyAuthor(t *testing.T) {
	h := newTestHub(t)
	alice, aliceFt := registerAndLogin(t, h, "alice", "pw1pw1pw1")
	bob, _ := registerAndLogin(t, h, "bob", "pw2pw2pw2")

	h.handlePrivateMessage(alice, Envelope{ToUser: "bob", Payload: "original", TempID: "t-1"})
	var msgID int64
	for _, m := range aliceFt.messages() {
		if m["type"] == TypePrivateMessage {
			msgID = int64(m["id"].(float64))
		}
	}

	h.handleEditMessage(bob, Envelope{ID: msgID, Payload: "hijacked"})
	m, _ := h.st.GetMessage(msgID)
	if m.Payload != "original" {
		t.Fatalf("non-author edit should not apply, got payload %q", m.Payload)
	}

	h.handleEditMessage(alice, Envelope{ID: msgID, Payload: "edited"})
	m, _ = h.st.GetMessage(msgID)
	if m.Payload != "edited" || !m.IsEdited {
		t.Fatalf("author edit should apply, got %+v", m)
	}
}

func TestGetHistoryCursorAndOrdering(t *testing.T) {
	h := newTestHub(t)
	alice, _ := registerAndLogin(t, h, "alice", "pw1pw1pw1")
	bob, bobFt := registerAndLogin(t, h, "bob", "pw2pw2pw2")

	for i := 0; i < 3; i++ {
		h.handlePrivateMessage(alice, Envelope{ToUser: "bob", Payload: "m"})
	}

	h.handleGetHistory(bob, Envelope{WithUser: "alice"})
	msg := bobFt.last()
	if msg["type"] != TypeHistoryData {
		t.Fatalf("expected history_data with no cursor, got %+v", msg)
	}
	history, _ := msg["history"].([]any)
	if len(history) != 3 {
		t.Fatalf("expected 3 history rows, got %d", len(history))
	}
	firstID := history[0].(map[string]any)["id"].(float64)
	lastID := history[2].(map[string]any)["id"].(float64)
	if firstID >= lastID {
		t.Fatalf("expected chronological order, got first id %v, last id %v", firstID, lastID)
	}

	h.handleGetHistory(bob, Envelope{WithUser: "alice", BeforeID: 100})
	msg = bobFt.last()
	if msg["type"] != TypeOldHistoryData {
		t.Fatalf("expected old_history_data with a cursor, got %+v", msg)
	}
}

func TestTypingRelayOnlyToOnlineRecipient(t *testing.T) {
	h := newTestHub(t)
	alice, _ := registerAndLogin(t, h, "alice", "pw1pw1pw1")
	_, bobFt := registerAndLogin(t, h, "bob", "pw2pw2pw2")

	h.handleTyping(alice, Envelope{ToUser: "bob"})
	msg := bobFt.last()
	if msg["type"] != TypeTyping || msg["fromUser"] != "alice" {
		t.Fatalf("unexpected typing relay: %+v", msg)
	}
}
