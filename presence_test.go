package main

import (
	"testing"
	"time"
)

func pastTime() time.Time { return time.Unix(0, 0) }

func TestBroadcastUserListReachesAllBoundConnections(t *testing.T) {
	h := newTestHub(t)
	_, aliceFt := registerAndLogin(t, h, "alice", "pw1pw1pw1")
	_, bobFt := registerAndLogin(t, h, "bob", "pw2pw2pw2")

	foundAliceList := false
	for _, m := range bobFt.messages() {
		if m["type"] == TypeUserList {
			users, _ := m["users"].([]any)
			for _, u := range users {
				if u == "alice" {
					foundAliceList = true
				}
			}
		}
	}
	if !foundAliceList {
		t.Fatalf("expected bob to observe alice in a user_list broadcast, got %+v", bobFt.messages())
	}
	_ = aliceFt
}

func TestSecondLoginRebindsWithoutClosingPriorConnection(t *testing.T) {
	h := newTestHub(t)
	first, _ := registerAndLogin(t, h, "alice", "pw1pw1pw1")

	second, secondFt := newTestConn()
	h.handleLogin(second, Envelope{Username: "alice", Password: "pw1pw1pw1"})
	if second.Username() != "alice" {
		t.Fatalf("expected second login to bind, got %+v", secondFt.messages())
	}

	conn, ok := h.lookup("alice")
	if !ok || conn != second {
		t.Fatalf("expected presence registry to point at the newest connection")
	}

	// The prior connection is not forcibly closed or unbound locally (§9
	// open question, resolved as "rebind, don't force-close").
	if first.Username() != "alice" {
		t.Fatalf("prior connection's own bound username should be untouched")
	}
}

func TestUnbindByConnUpdatesLastSeenAndPresence(t *testing.T) {
	h := newTestHub(t)
	conn, _ := registerAndLogin(t, h, "alice", "pw1pw1pw1")

	h.unbindByConn(conn)

	if _, ok := h.lookup("alice"); ok {
		t.Fatalf("expected alice removed from presence registry")
	}
	if conn.Username() != "" {
		t.Fatalf("expected connection's bound username cleared")
	}

	u, err := h.st.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u.LastSeen == "" {
		t.Fatalf("expected last_seen to be set after unbind")
	}
}

func TestTokenCacheExpiry(t *testing.T) {
	h := newTestHub(t)
	h.tokenSet("alice", "tok", pastTime())
	if _, ok := h.tokenGet("alice"); ok {
		t.Fatalf("expected expired cached token to be rejected")
	}
}
