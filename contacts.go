package main

import (
	"database/sql"
	"log"
	"time"

	"duskrelay/store"
)

// pushContactList sends a fresh contact_list to conn for username (§4.8
// "List").
func (h *Hub) pushContactList(conn *Connection, username string) {
	u, err := h.st.GetUserByUsername(username)
	if err != nil {
		log.Printf("[contacts] lookup %s: %v", username, err)
		return
	}
	neighbors, err := h.st.AcceptedContacts(u.ID)
	if err != nil {
		log.Printf("[contacts] accepted contacts for %s: %v", username, err)
		return
	}
	rows := make([]ContactRow, 0, len(neighbors))
	for _, n := range neighbors {
		rows = append(rows, ContactRow{
			Username:      n.Username,
			DisplayName:   n.DisplayName,
			LastSeen:      n.LastSeen,
			StatusMessage: n.StatusMessage,
			AvatarURL:     n.AvatarURL,
		})
	}
	_ = conn.Send(ContactListMsg{Type: TypeContactList, Users: rows})
}

// pushPendingList sends the pending-request list to conn for username
// (§4.8 "Pending list").
func (h *Hub) pushPendingList(conn *Connection, username string) {
	u, err := h.st.GetUserByUsername(username)
	if err != nil {
		log.Printf("[contacts] lookup %s: %v", username, err)
		return
	}
	pending, err := h.st.PendingContacts(u.ID)
	if err != nil {
		log.Printf("[contacts] pending contacts for %s: %v", username, err)
		return
	}
	rows := make([]PendingRow, 0, len(pending))
	for _, p := range pending {
		rows = append(rows, PendingRow{
			FromUsername:    p.Username,
			FromDisplayname: p.DisplayName,
			FromAvatarUrl:   p.AvatarURL,
		})
	}
	_ = conn.Send(PendingListMsg{Type: TypePendingList, Requests: rows})
}

// handleAddContactRequest implements §4.8 "Add request".
func (h *Hub) handleAddContactRequest(conn *Connection, e Envelope) {
	me := conn.Username()
	if me == "" || e.Username == "" {
		return
	}
	if e.Username == me {
		sendFailure(conn, TypeAddContactFailure, "cannot add yourself")
		return
	}

	meUser, err := h.st.GetUserByUsername(me)
	if err != nil {
		sendFailure(conn, TypeAddContactFailure, "Database error")
		return
	}
	target, err := h.st.GetUserByUsername(e.Username)
	if err == sql.ErrNoRows {
		sendFailure(conn, TypeAddContactFailure, "No such user")
		return
	}
	if err != nil {
		sendFailure(conn, TypeAddContactFailure, "Database error")
		return
	}

	if edge, err := h.st.GetContactEdge(meUser.ID, target.ID); err == nil {
		switch edge.Status {
		case store.ContactPending:
			sendFailure(conn, TypeAddContactFailure, "Request already pending")
		case store.ContactAccepted:
			sendFailure(conn, TypeAddContactFailure, "Already a contact")
		case store.ContactBlocked:
			sendFailure(conn, TypeAddContactFailure, "Blocked")
		}
		return
	} else if err != sql.ErrNoRows {
		sendFailure(conn, TypeAddContactFailure, "Database error")
		return
	}

	if err := h.st.CreateContactEdge(meUser.ID, target.ID, store.ContactPending, time.Now()); err != nil {
		sendFailure(conn, TypeAddContactFailure, "Database error")
		return
	}

	if targetConn, ok := h.lookup(target.Username); ok {
		_ = targetConn.Send(IncomingContactMsg{
			Type:            TypeIncomingContact,
			FromUsername:    meUser.Username,
			FromDisplayname: meUser.DisplayName,
			FromAvatarUrl:   meUser.AvatarURL,
		})
	}

	_ = conn.Send(Envelope{Type: TypeAddContactSuccess})
}

// handleContactRequestResponse implements §4.8 "Response".
func (h *Hub) handleContactRequestResponse(conn *Connection, e Envelope) {
	me := conn.Username()
	if me == "" || e.FromUsername == "" {
		return
	}

	meUser, err := h.st.GetUserByUsername(me)
	if err != nil {
		return
	}
	requester, err := h.st.GetUserByUsername(e.FromUsername)
	if err != nil {
		return
	}

	edge, err := h.st.GetContactEdge(meUser.ID, requester.ID)
	if err != nil || edge.Status != store.ContactPending {
		return
	}

	switch e.Response {
	case "accepted":
		if err := h.st.UpdateContactStatus(meUser.ID, requester.ID, store.ContactAccepted); err != nil {
			log.Printf("[contacts] accept %s/%s: %v", me, e.FromUsername, err)
			return
		}
		h.pushContactList(conn, me)
		if requesterConn, ok := h.lookup(requester.Username); ok {
			h.pushContactList(requesterConn, requester.Username)
		}
		h.broadcastUserList()
	case "declined":
		if err := h.st.DeleteContactEdge(meUser.ID, requester.ID); err != nil {
			log.Printf("[contacts] decline %s/%s: %v", me, e.FromUsername, err)
		}
	default:
		// any other value is a no-op per §4.8
	}
}

// handleSearchUsers implements §4.8 "Search".
func (h *Hub) handleSearchUsers(conn *Connection, e Envelope) {
	me := conn.Username()
	if me == "" {
		return
	}
	users, err := h.st.SearchUsers(e.Query, me, 20)
	if err != nil {
		log.Printf("[contacts] search %q: %v", e.Query, err)
		return
	}
	rows := make([]SearchRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, SearchRow{
			Username:      u.Username,
			DisplayName:   u.DisplayName,
			AvatarURL:     u.AvatarURL,
			StatusMessage: u.StatusMessage,
		})
	}
	_ = conn.Send(SearchResultsMsg{Type: TypeSearchResults, Results: rows})
}
