package main

import (
	"log"
	"math"
	"time"

	"duskrelay/store"
)

const callHistoryPageSize = 50

// handleCallRequest implements §4.9 "call_request".
func (h *Hub) handleCallRequest(conn *Connection, e Envelope) {
	caller := conn.Username()
	if caller == "" || e.To == "" || e.CallID == "" {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := h.st.CreateCall(store.Call{
		CallID:         e.CallID,
		CallerUsername: caller,
		CalleeUsername: e.To,
		StartTime:      now,
		CallerIP:       e.CallerIP,
		CallerPort:     e.CallerPort,
	}); err != nil {
		log.Printf("[calls] create call %s: %v", e.CallID, err)
		return
	}

	calleeConn, calleeBound := h.lookup(e.To)

	h.mu.Lock()
	h.calls[e.CallID] = &ActiveCall{
		CallID:     e.CallID,
		Caller:     caller,
		Callee:     e.To,
		CallerConn: conn,
		CalleeConn: calleeConn,
		CallerIP:   e.CallerIP,
		CallerPort: e.CallerPort,
	}
	h.mu.Unlock()

	if !calleeBound {
		// Target offline: immediately terminal, caller learns via timeout.
		h.terminateCall(e.CallID, "missed", "")
		return
	}

	_ = calleeConn.Send(Envelope{
		Type:       TypeCallRequest,
		From:       caller,
		CallID:     e.CallID,
		CallerIP:   e.CallerIP,
		CallerPort: e.CallerPort,
	})
}

// handleCallAccepted implements §4.9 "call_accepted".
func (h *Hub) handleCallAccepted(conn *Connection, e Envelope) {
	callee := conn.Username()
	if callee == "" || e.CallID == "" {
		return
	}

	h.mu.Lock()
	ac, ok := h.calls[e.CallID]
	if ok && ac.Callee == callee {
		ac.CalleeConn = conn
	}
	h.mu.Unlock()
	if !ok || ac.Callee != callee {
		return
	}

	now := time.Now()
	if err := h.st.MarkConnected(e.CallID, now.UTC().Format(time.RFC3339), e.CalleeIP, e.CalleePort); err != nil {
		log.Printf("[calls] mark connected %s: %v", e.CallID, err)
		return
	}

	if callerConn, ok := h.lookup(ac.Caller); ok {
		_ = callerConn.Send(Envelope{
			Type:       TypeCallAccepted,
			From:       callee,
			CallID:     e.CallID,
			CalleeIP:   e.CalleeIP,
			CalleePort: e.CalleePort,
		})
	}
}

// handleCallRejected implements §4.9 "call_rejected".
func (h *Hub) handleCallRejected(conn *Connection, e Envelope) {
	callee := conn.Username()
	if callee == "" || e.CallID == "" {
		return
	}

	h.mu.RLock()
	ac, ok := h.calls[e.CallID]
	h.mu.RUnlock()
	if !ok || ac.Callee != callee {
		return
	}

	h.terminateCall(e.CallID, "rejected", callee)
}

// handleCallEnd implements §4.9 "call_end".
func (h *Hub) handleCallEnd(conn *Connection, e Envelope) {
	me := conn.Username()
	if me == "" || e.CallID == "" {
		return
	}

	h.mu.RLock()
	ac, ok := h.calls[e.CallID]
	h.mu.RUnlock()
	if !ok || (ac.Caller != me && ac.Callee != me) {
		return
	}

	h.terminateCall(e.CallID, "completed", me)
}

// terminateCall transitions a call to a terminal status, persists end_time
// and duration, removes the active entry, and notifies the other
// participant if still bound. notifyFrom is the "from" field on the
// call_end/call_rejected notification; pass "" to suppress notification
// (used when the callee was never reachable, per §4.9 "target offline").
func (h *Hub) terminateCall(callID, status, notifyFrom string) {
	h.mu.Lock()
	ac, ok := h.calls[callID]
	if ok {
		delete(h.calls, callID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	record, err := h.st.GetCall(callID)
	duration := 0
	if err == nil && record.ConnectTime != "" {
		if ct, perr := time.Parse(time.RFC3339, record.ConnectTime); perr == nil {
			duration = int(math.Round(time.Since(ct).Seconds()))
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := h.st.MarkTerminal(callID, status, now, duration); err != nil {
		log.Printf("[calls] mark terminal %s/%s: %v", callID, status, err)
	}

	if notifyFrom == "" {
		return
	}

	var peerUsername string
	if notifyFrom == ac.Caller {
		peerUsername = ac.Callee
	} else {
		peerUsername = ac.Caller
	}

	if peerConn, ok := h.lookup(peerUsername); ok {
		typ := TypeCallEnd
		if status == "rejected" {
			typ = TypeCallRejected
		}
		_ = peerConn.Send(Envelope{Type: typ, CallID: callID, From: notifyFrom})
	}
}

// sweepCallsForConn terminates every active call the departing connection
// participated in, as part of the disconnect sweep (§4.5, §4.9).
func (h *Hub) sweepCallsForConn(conn *Connection) {
	h.mu.RLock()
	var affected []string
	var asCaller []string
	for id, ac := range h.calls {
		if ac.CallerConn == conn || ac.CalleeConn == conn {
			affected = append(affected, id)
			if ac.CallerConn == conn {
				asCaller = append(asCaller, ac.Caller)
			} else {
				asCaller = append(asCaller, ac.Callee)
			}
		}
	}
	h.mu.RUnlock()

	for i, id := range affected {
		h.terminateCall(id, "completed", asCaller[i])
	}
}

// handleGetCallHistory implements §4.9 "History / stats".
func (h *Hub) handleGetCallHistory(conn *Connection, e Envelope) {
	me := conn.Username()
	if me == "" {
		return
	}
	calls, err := h.st.CallHistory(me, callHistoryPageSize)
	if err != nil {
		log.Printf("[calls] history for %s: %v", me, err)
		return
	}
	rows := make([]CallRow, 0, len(calls))
	for _, c := range calls {
		callType := "incoming"
		if c.CallerUsername == me {
			callType = "outgoing"
		}
		rows = append(rows, CallRow{
			CallID:          c.CallID,
			CallerUsername:  c.CallerUsername,
			CalleeUsername:  c.CalleeUsername,
			Status:          c.Status,
			StartTime:       c.StartTime,
			ConnectTime:     c.ConnectTime,
			EndTime:         c.EndTime,
			DurationSeconds: c.DurationSeconds,
			CallType:        callType,
		})
	}
	_ = conn.Send(CallHistoryMsg{Type: TypeCallHistory, Calls: rows})
}
