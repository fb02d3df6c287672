package main

import "testing"

func TestDispatchUnknownCommandRepliesError(t *testing.T) {
	h := newTestHub(t)
	conn, ft := registerAndLogin(t, h, "alice", "pw1pw1pw1")

	h.dispatch(conn, nil, Envelope{Type: "does_not_exist"})
	msg := ft.last()
	if msg["type"] != TypeError {
		t.Fatalf("expected error reply, got %+v", msg)
	}
}

func TestDispatchRejectsUnboundConnectionForProtectedCommand(t *testing.T) {
	h := newTestHub(t)
	conn, ft := newTestConn()

	h.dispatch(conn, nil, Envelope{Type: TypePrivateMessage, ToUser: "bob", Payload: "hi"})
	if len(ft.messages()) != 0 {
		t.Fatalf("expected no reply for unbound connection, got %+v", ft.messages())
	}
}

func TestDispatchAllowsUnauthenticatedCommands(t *testing.T) {
	h := newTestHub(t)
	conn, ft := newTestConn()

	h.dispatch(conn, nil, Envelope{Type: TypeRegister, Username: "alice", Password: "pw1pw1pw1"})
	if msg := ft.last(); msg["type"] != TypeRegisterSuccess {
		t.Fatalf("expected register_success via dispatch, got %+v", msg)
	}
}

func TestDispatchRefusesFromUserImpersonation(t *testing.T) {
	h := newTestHub(t)
	alice, aliceFt := registerAndLogin(t, h, "alice", "pw1pw1pw1")
	_, bobFt := registerAndLogin(t, h, "bob", "pw2pw2pw2")

	before := len(aliceFt.messages())
	bobBefore := len(bobFt.messages())
	h.dispatch(alice, nil, Envelope{Type: TypePrivateMessage, FromUser: "bob", ToUser: "bob", Payload: "spoofed"})

	if len(aliceFt.messages()) != before {
		t.Fatalf("expected spoofed fromUser request to be refused silently")
	}
	if len(bobFt.messages()) != bobBefore {
		t.Fatalf("expected no relay from a refused impersonation attempt")
	}
}

func TestHandshakeRoundTripViaDispatch(t *testing.T) {
	h := newTestHub(t)
	conn, ft := newTestConn()
	cs, err := NewCryptoSession()
	if err != nil {
		t.Fatalf("NewCryptoSession: %v", err)
	}
	peer, _ := NewCryptoSession()

	h.dispatch(conn, cs, Envelope{Type: TypeHandshake, Key: b64(peer.publicKey[:])})

	msg := ft.last()
	if msg["type"] != TypeHandshake {
		t.Fatalf("expected handshake reply, got %+v", msg)
	}
	if !cs.Ready() {
		t.Fatalf("expected crypto session to be ready after handshake")
	}
}
