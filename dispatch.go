package main

import "log"

// handlerFunc is the signature every dispatch table entry implements (§4.4).
type handlerFunc func(h *Hub, conn *Connection, e Envelope)

// unauthenticatedCommands may run before login, exactly the set named in
// §4.4 (handshake is dispatched separately and never reaches this check).
var unauthenticatedCommands = map[string]bool{
	TypeRegister:   true,
	TypeLogin:      true,
	TypeTokenLogin: true,
}

// handlers maps a command type string to its implementation. Adding a
// command means adding one entry here; it cannot affect any other command.
var handlers = map[string]handlerFunc{
	TypeRegister:          func(h *Hub, c *Connection, e Envelope) { h.handleRegister(c, e) },
	TypeLogin:             func(h *Hub, c *Connection, e Envelope) { h.handleLogin(c, e) },
	TypeTokenLogin:        func(h *Hub, c *Connection, e Envelope) { h.handleTokenLogin(c, e) },
	TypeLogoutRequest:     func(h *Hub, c *Connection, e Envelope) { h.handleLogoutRequest(c, e) },
	TypeUpdateProfile:     func(h *Hub, c *Connection, e Envelope) { h.handleUpdateProfile(c, e) },
	TypeSearchUsers:       func(h *Hub, c *Connection, e Envelope) { h.handleSearchUsers(c, e) },
	TypeAddContactRequest: func(h *Hub, c *Connection, e Envelope) { h.handleAddContactRequest(c, e) },
	TypeContactResponse:   func(h *Hub, c *Connection, e Envelope) { h.handleContactRequestResponse(c, e) },
	TypePrivateMessage:    func(h *Hub, c *Connection, e Envelope) { h.handlePrivateMessage(c, e) },
	TypeGetHistory:        func(h *Hub, c *Connection, e Envelope) { h.handleGetHistory(c, e) },
	TypeDeleteMessage:     func(h *Hub, c *Connection, e Envelope) { h.handleDeleteMessage(c, e) },
	TypeEditMessage:       func(h *Hub, c *Connection, e Envelope) { h.handleEditMessage(c, e) },
	TypeTyping:            func(h *Hub, c *Connection, e Envelope) { h.handleTyping(c, e) },
	TypeMessageDelivered:  func(h *Hub, c *Connection, e Envelope) { h.handleMessageDelivered(c, e) },
	TypeMessageRead:       func(h *Hub, c *Connection, e Envelope) { h.handleMessageRead(c, e) },
	TypeCallRequest:       func(h *Hub, c *Connection, e Envelope) { h.handleCallRequest(c, e) },
	TypeCallAccepted:      func(h *Hub, c *Connection, e Envelope) { h.handleCallAccepted(c, e) },
	TypeCallRejected:      func(h *Hub, c *Connection, e Envelope) { h.handleCallRejected(c, e) },
	TypeCallEnd:           func(h *Hub, c *Connection, e Envelope) { h.handleCallEnd(c, e) },
	TypeGetCallHistory:    func(h *Hub, c *Connection, e Envelope) { h.handleGetCallHistory(c, e) },
}

// dispatch resolves e.Type against the handler table and enforces the
// binding requirement and fromUser-impersonation rule from §4.4. cs is nil
// for the message transport, where handshake is a no-op.
func (h *Hub) dispatch(conn *Connection, cs *CryptoSession, e Envelope) {
	if e.Type == TypeHandshake {
		h.handleHandshake(conn, cs, e)
		return
	}

	if !unauthenticatedCommands[e.Type] && conn.Username() == "" {
		// every other command requires an existing binding (§4.4)
		return
	}

	if e.FromUser != "" && conn.Username() != "" && e.FromUser != conn.Username() {
		log.Printf("[dispatch] %s claimed fromUser=%s but is bound as %s (refused)", conn.RemoteAddr(), e.FromUser, conn.Username())
		return
	}

	fn, ok := handlers[e.Type]
	if !ok {
		sendFailure(conn, TypeError, "Unknown command: "+e.Type)
		return
	}
	fn(h, conn, e)
}

// handleHandshake implements §4.3. cs is nil on the message transport,
// where handshake frames are ignored per §4.1.
func (h *Hub) handleHandshake(conn *Connection, cs *CryptoSession, e Envelope) {
	if cs == nil {
		return
	}
	serverKey, err := cs.Handshake(e.Key)
	if err != nil {
		log.Printf("[dispatch] handshake from %s: %v", conn.RemoteAddr(), err)
		return
	}
	_ = conn.SendCleartext(Envelope{Type: TypeHandshake, Key: serverKey})
}
