package main

import (
	"encoding/json"
	"sync"
	"testing"

	"duskrelay/store"
)

// fakeTransport captures every payload written to it, letting tests assert
// on outbound messages without a real socket.
type fakeTransport struct {
	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeTransport) readPayload() ([]byte, error) { return nil, nil }
func (f *fakeTransport) writePayload(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), b...)
	f.sent = append(f.sent, cp)
	return nil
}
func (f *fakeTransport) writeCleartext(b []byte) error { return f.writePayload(b) }
func (f *fakeTransport) close() error                  { return nil }
func (f *fakeTransport) remoteAddr() string            { return "test-conn" }

func (f *fakeTransport) messages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.sent))
	for _, raw := range f.sent {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeTransport) last() map[string]any {
	msgs := f.messages()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func newTestConn() (*Connection, *fakeTransport) {
	ft := &fakeTransport{}
	return newConnection(ft), ft
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewHub(st)
}

// registerAndLogin is a test helper that registers a user and logs them in
// through a fresh connection, returning the bound connection/transport.
func registerAndLogin(t *testing.T, h *Hub, username, password string) (*Connection, *fakeTransport) {
	t.Helper()
	conn, ft := newTestConn()
	h.handleRegister(conn, Envelope{Username: username, Password: password})
	h.handleLogin(conn, Envelope{Username: username, Password: password})
	if conn.Username() != username {
		t.Fatalf("expected %s bound, got %q (last msg %+v)", username, conn.Username(), ft.last())
	}
	return conn, ft
}
