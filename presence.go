package main

import (
	"log"
	"sync"
	"time"

	"duskrelay/store"
)

// ActiveCall is the in-memory entry for a call whose status is ringing or
// connected (§3, "Active-call entry"). It is removed on any terminal
// transition or when either participant disconnects.
type ActiveCall struct {
	CallID     string
	Caller     string
	Callee     string
	CallerConn *Connection
	CalleeConn *Connection // nil until the callee is known to be bound
	CallerIP   string
	CallerPort int
}

// tokenEntry is the in-memory cache of an issued auth token (advisory; the
// store is authoritative on cold paths per §9).
type tokenEntry struct {
	token     string
	expiresAt time.Time
}

// Hub owns every piece of global mutable state: the presence forward/reverse
// maps, the active-call table, and the token cache. It also holds the store
// handle so that every mutation that must be durable can be paired with a
// store write before the in-memory change is observed by other handlers.
type Hub struct {
	st *store.Store

	mu     sync.RWMutex
	online map[string]*Connection // username -> connection
	byConn map[*Connection]string // connection -> username

	calls map[string]*ActiveCall // call_id -> entry

	tokMu  sync.RWMutex
	tokens map[string]tokenEntry // username -> cached token
}

// NewHub constructs a Hub backed by st.
func NewHub(st *store.Store) *Hub {
	return &Hub{
		st:     st,
		online: make(map[string]*Connection),
		byConn: make(map[*Connection]string),
		calls:  make(map[string]*ActiveCall),
		tokens: make(map[string]tokenEntry),
	}
}

// bind installs both presence directions for conn. The caller is
// responsible for broadcasting the updated online set once any
// connection-specific pushes (contact list, pending requests, unread
// counts) have been sent, per the ordering required by §4.6.
func (h *Hub) bind(username string, conn *Connection) {
	h.mu.Lock()
	if prev, ok := h.online[username]; ok {
		// A second login for an already-bound username rebinds but does not
		// forcibly close the prior connection (§9 open question, resolved:
		// preserve current behavior).
		delete(h.byConn, prev)
	}
	h.online[username] = conn
	h.byConn[conn] = username
	h.mu.Unlock()

	conn.bind(username)
}

// lookup returns the connection bound to username, if any.
func (h *Hub) lookup(username string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.online[username]
	return c, ok
}

// lookupUsername returns the username bound to conn, if any.
func (h *Hub) lookupUsername(conn *Connection) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	u, ok := h.byConn[conn]
	return u, ok
}

// onlineSnapshot returns the current online usernames.
func (h *Hub) onlineSnapshot() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.online))
	for u := range h.online {
		out = append(out, u)
	}
	return out
}

// broadcastUserList sends the current online set to every bound connection
// (§4.5). Best-effort: send errors are logged, not propagated.
func (h *Hub) broadcastUserList() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.online))
	for _, c := range h.online {
		conns = append(conns, c)
	}
	users := make([]string, 0, len(h.online))
	for u := range h.online {
		users = append(users, u)
	}
	h.mu.RUnlock()

	msg := UserListMsg{Type: TypeUserList, Users: users}
	for _, c := range conns {
		if err := c.Send(msg); err != nil {
			log.Printf("[presence] broadcast user_list to %s: %v", c.Username(), err)
		}
	}
}

// unbindByConn removes conn from the presence registry, persists its
// last-seen time, terminates every call it participated in, and
// broadcasts the updated online set (§4.5, §4.9 disconnect sweep).
func (h *Hub) unbindByConn(conn *Connection) {
	h.mu.Lock()
	username, ok := h.byConn[conn]
	if ok {
		delete(h.byConn, conn)
		// Only clear the forward entry if it still points at this
		// connection — a rebind may have already replaced it.
		if h.online[username] == conn {
			delete(h.online, username)
		}
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	conn.unbind()

	if err := h.st.TouchLastSeen(username, time.Now()); err != nil {
		log.Printf("[presence] touch last_seen for %s: %v", username, err)
	}

	h.sweepCallsForConn(conn)
	h.broadcastUserList()
}

// tokenGet returns a cached token entry for username, if present and
// unexpired.
func (h *Hub) tokenGet(username string) (tokenEntry, bool) {
	h.tokMu.RLock()
	defer h.tokMu.RUnlock()
	e, ok := h.tokens[username]
	if !ok || time.Now().After(e.expiresAt) {
		return tokenEntry{}, false
	}
	return e, true
}

// tokenSet caches a freshly issued or validated token.
func (h *Hub) tokenSet(username, token string, expiresAt time.Time) {
	h.tokMu.Lock()
	h.tokens[username] = tokenEntry{token: token, expiresAt: expiresAt}
	h.tokMu.Unlock()
}

// tokenClear removes a cached token (logout).
func (h *Hub) tokenClear(username string) {
	h.tokMu.Lock()
	delete(h.tokens, username)
	h.tokMu.Unlock()
}
