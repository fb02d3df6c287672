package main

import (
	"log"
	"time"

	"duskrelay/store"
)

const historyPageSize = 20

// pushUnreadCounts sends the unread summary to conn for username, computed
// once at login (§4.7 "Unread summary").
func (h *Hub) pushUnreadCounts(conn *Connection, username string) {
	counts, err := h.st.UnreadCounts(username)
	if err != nil {
		log.Printf("[messaging] unread counts for %s: %v", username, err)
		return
	}
	rows := make([]UnreadRow, 0, len(counts))
	for from, count := range counts {
		rows = append(rows, UnreadRow{Username: from, Count: count})
	}
	_ = conn.Send(UnreadCountsMsg{Type: TypeUnreadCounts, Unread: rows})
}

func toMessageView(m store.Message) MessageView {
	return MessageView{
		ID:            m.ID,
		FromUser:      m.FromUser,
		ToUser:        m.ToUser,
		Payload:       m.Payload,
		Timestamp:     m.Timestamp,
		IsDelivered:   m.IsDelivered,
		IsRead:        m.IsRead,
		IsEdited:      m.IsEdited,
		ReplyToID:     m.ReplyToID,
		ForwardedFrom: m.ForwardedFrom,
		FileID:        m.FileID,
		FileName:      m.FileName,
		FileURL:       m.FileURL,
	}
}

// handlePrivateMessage implements §4.7 "Send".
func (h *Hub) handlePrivateMessage(conn *Connection, e Envelope) {
	from := conn.Username()
	if from == "" || e.ToUser == "" {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	id, err := h.st.InsertMessage(store.Message{
		FromUser:      from,
		ToUser:        e.ToUser,
		Payload:       e.Payload,
		Timestamp:     now,
		ReplyToID:     e.ReplyToID,
		ForwardedFrom: e.ForwardedFrom,
		FileID:        e.FileID,
		FileName:      e.FileName,
		FileURL:       e.FileURL,
	})
	if err != nil {
		log.Printf("[messaging] insert message %s->%s: %v", from, e.ToUser, err)
		sendFailure(conn, TypeError, "Database error")
		return
	}

	view := MessageView{
		Type:          TypePrivateMessage,
		ID:            id,
		FromUser:      from,
		ToUser:        e.ToUser,
		Payload:       e.Payload,
		Timestamp:     now,
		ReplyToID:     e.ReplyToID,
		ForwardedFrom: e.ForwardedFrom,
		FileID:        e.FileID,
		FileName:      e.FileName,
		FileURL:       e.FileURL,
	}

	echo := view
	echo.TempID = e.TempID
	_ = conn.Send(echo)

	if recipientConn, ok := h.lookup(e.ToUser); ok {
		relay := view
		relay.TempID = ""
		_ = recipientConn.Send(relay)
	}
}

// handleMessageDelivered and handleMessageRead implement §4.7 "Receipts",
// tightened per §9's open question: the caller must be the message's
// recipient before a flag is flipped.
func (h *Hub) handleMessageDelivered(conn *Connection, e Envelope) {
	h.handleReceipt(conn, e, TypeMessageDelivered, func(m store.Message) bool { return m.IsDelivered }, h.st.SetDelivered)
}

func (h *Hub) handleMessageRead(conn *Connection, e Envelope) {
	h.handleReceipt(conn, e, TypeMessageRead, func(m store.Message) bool { return m.IsRead }, h.st.SetRead)
}

func (h *Hub) handleReceipt(conn *Connection, e Envelope, typ string, already func(store.Message) bool, set func(int64) error) {
	me := conn.Username()
	if me == "" {
		return
	}
	m, err := h.st.GetMessage(e.ID)
	if err != nil {
		return
	}
	if m.ToUser != me {
		// Security event per §4.4: caller is not this message's recipient.
		log.Printf("[messaging] receipt %s: %s is not the recipient of message %d", typ, me, e.ID)
		return
	}
	if !already(m) {
		if err := set(e.ID); err != nil {
			log.Printf("[messaging] %s message %d: %v", typ, e.ID, err)
			return
		}
	}
	if senderConn, ok := h.lookup(m.FromUser); ok {
		_ = senderConn.Send(Envelope{Type: typ, ID: e.ID})
	}
}

// handleEditMessage implements §4.7 "Edit".
func (h *Hub) handleEditMessage(conn *Connection, e Envelope) {
	me := conn.Username()
	if me == "" {
		return
	}
	m, err := h.st.GetMessage(e.ID)
	if err != nil {
		return
	}
	if m.FromUser != me {
		return
	}
	if err := h.st.EditMessage(e.ID, e.Payload); err != nil {
		log.Printf("[messaging] edit message %d: %v", e.ID, err)
		return
	}

	toAuthor := Envelope{Type: TypeEditMessage, ID: e.ID, Payload: e.Payload, WithUser: m.ToUser}
	_ = conn.Send(toAuthor)
	if recipientConn, ok := h.lookup(m.ToUser); ok {
		toRecipient := Envelope{Type: TypeEditMessage, ID: e.ID, Payload: e.Payload, WithUser: m.FromUser}
		_ = recipientConn.Send(toRecipient)
	}
}

// handleDeleteMessage implements §4.7 "Delete".
func (h *Hub) handleDeleteMessage(conn *Connection, e Envelope) {
	me := conn.Username()
	if me == "" {
		return
	}
	m, err := h.st.GetMessage(e.ID)
	if err != nil {
		return
	}
	if m.FromUser != me {
		return
	}
	if err := h.st.DeleteMessage(e.ID); err != nil {
		log.Printf("[messaging] delete message %d: %v", e.ID, err)
		return
	}

	_ = conn.Send(Envelope{Type: TypeDeleteMessage, ID: e.ID, WithUser: m.ToUser})
	if recipientConn, ok := h.lookup(m.ToUser); ok {
		_ = recipientConn.Send(Envelope{Type: TypeDeleteMessage, ID: e.ID, WithUser: m.FromUser})
	}
}

// handleGetHistory implements §4.7 "History".
func (h *Hub) handleGetHistory(conn *Connection, e Envelope) {
	me := conn.Username()
	if me == "" || e.WithUser == "" {
		return
	}
	rows, err := h.st.History(me, e.WithUser, e.BeforeID, historyPageSize)
	if err != nil {
		log.Printf("[messaging] history %s/%s: %v", me, e.WithUser, err)
		return
	}

	// rows are newest-first; reverse to chronological order for the response.
	views := make([]MessageView, len(rows))
	for i, m := range rows {
		views[len(rows)-1-i] = toMessageView(m)
	}

	typ := TypeHistoryData
	if e.BeforeID != 0 {
		typ = TypeOldHistoryData
	}
	_ = conn.Send(HistoryDataMsg{Type: typ, WithUser: e.WithUser, History: views})
}

// handleTyping implements §4.7 "Typing": stateless relay, never persisted.
func (h *Hub) handleTyping(conn *Connection, e Envelope) {
	me := conn.Username()
	if me == "" || e.ToUser == "" {
		return
	}
	if recipientConn, ok := h.lookup(e.ToUser); ok {
		_ = recipientConn.Send(Envelope{Type: TypeTyping, FromUser: me})
	}
}
