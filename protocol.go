package main

// Envelope is the JSON command object exchanged over both transports. Every
// inbound object must carry Type; every other field is optional and only
// populated by the commands that use it. Outbound messages that would
// otherwise collide on a shared field name (user_list vs. contact_list both
// carry a "users" array of different shapes) get their own dedicated struct
// below instead of being folded into Envelope.
type Envelope struct {
	Type string `json:"type"`

	// Handshake (C3).
	Key string `json:"key,omitempty"`

	// Auth (C6).
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	Token         string `json:"token,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	Reason        string `json:"reason,omitempty"`

	// Contact graph (C8).
	FromUsername string `json:"fromUsername,omitempty"`
	Response     string `json:"response,omitempty"`
	Query        string `json:"query,omitempty"`

	// Messaging (C7).
	FromUser      string `json:"fromUser,omitempty"`
	ToUser        string `json:"toUser,omitempty"`
	Payload       string `json:"payload,omitempty"`
	ID            int64  `json:"id,omitempty"`
	ReplyToID     int64  `json:"reply_to_id,omitempty"`
	TempID        string `json:"temp_id,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
	IsDelivered   bool   `json:"is_delivered"`
	IsRead        bool   `json:"is_read"`
	IsEdited      bool   `json:"is_edited"`
	ForwardedFrom string `json:"forwarded_from,omitempty"`
	FileID        string `json:"file_id,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	FileURL       string `json:"file_url,omitempty"`
	WithUser      string `json:"with_user,omitempty"`
	BeforeID      int64  `json:"before_id,omitempty"`

	// Call signalling (C9).
	CallID     string `json:"call_id,omitempty"`
	To         string `json:"to,omitempty"`
	From       string `json:"from,omitempty"`
	CallerIP   string `json:"caller_ip,omitempty"`
	CallerPort int    `json:"caller_port,omitempty"`
	CalleeIP   string `json:"callee_ip,omitempty"`
	CalleePort int    `json:"callee_port,omitempty"`
}

// UserListMsg is the presence broadcast (C5).
type UserListMsg struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// ContactRow is one entry of a contact_list response.
type ContactRow struct {
	Username      string `json:"username"`
	DisplayName   string `json:"displayname"`
	LastSeen      string `json:"last_seen"`
	StatusMessage string `json:"statusmessage"`
	AvatarURL     string `json:"avatar_url"`
}

// ContactListMsg is the response to a contact-list refresh (C8).
type ContactListMsg struct {
	Type  string       `json:"type"`
	Users []ContactRow `json:"users"`
}

// PendingRow is one entry of a pending_requests_list response.
type PendingRow struct {
	FromUsername    string `json:"fromUsername"`
	FromDisplayname string `json:"fromDisplayname"`
	FromAvatarUrl   string `json:"fromAvatarUrl"`
}

// PendingListMsg is the response listing pending contact requests (C8).
type PendingListMsg struct {
	Type     string       `json:"type"`
	Requests []PendingRow `json:"requests"`
}

// IncomingContactMsg notifies the target of a new contact request (C8).
type IncomingContactMsg struct {
	Type            string `json:"type"`
	FromUsername    string `json:"fromUsername"`
	FromDisplayname string `json:"fromDisplayname"`
	FromAvatarUrl   string `json:"fromAvatarUrl"`
}

// SearchRow is one entry of a search_results response.
type SearchRow struct {
	Username      string `json:"username"`
	DisplayName   string `json:"displayname"`
	AvatarURL     string `json:"avatar_url"`
	StatusMessage string `json:"statusmessage"`
}

// SearchResultsMsg is the response to search_users (C8).
type SearchResultsMsg struct {
	Type    string      `json:"type"`
	Results []SearchRow `json:"results"`
}

// UnreadRow is one entry of an unread_counts response.
type UnreadRow struct {
	Username string `json:"username"`
	Count    int    `json:"count"`
}

// UnreadCountsMsg is pushed once at login (C7).
type UnreadCountsMsg struct {
	Type   string      `json:"type"`
	Unread []UnreadRow `json:"unread"`
}

// MessageView is the full server-side view of one message, used both as the
// echo/relay payload and inside history responses.
type MessageView struct {
	Type          string `json:"type"`
	ID            int64  `json:"id"`
	FromUser      string `json:"fromUser"`
	ToUser        string `json:"toUser"`
	Payload       string `json:"payload"`
	Timestamp     string `json:"timestamp"`
	IsDelivered   bool   `json:"is_delivered"`
	IsRead        bool   `json:"is_read"`
	IsEdited      bool   `json:"is_edited"`
	ReplyToID     int64  `json:"reply_to_id,omitempty"`
	ForwardedFrom string `json:"forwarded_from,omitempty"`
	FileID        string `json:"file_id,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	FileURL       string `json:"file_url,omitempty"`
	TempID        string `json:"temp_id,omitempty"`
}

// HistoryDataMsg is the response to get_history; Type is either
// history_data or old_history_data depending on whether a cursor was given.
type HistoryDataMsg struct {
	Type     string        `json:"type"`
	WithUser string        `json:"with_user"`
	History  []MessageView `json:"history"`
}

// CallRow is one entry of a call_history response, annotated from the
// requesting user's perspective.
type CallRow struct {
	CallID          string `json:"call_id"`
	CallerUsername  string `json:"caller_username"`
	CalleeUsername  string `json:"callee_username"`
	Status          string `json:"status"`
	StartTime       string `json:"start_time"`
	ConnectTime     string `json:"connect_time,omitempty"`
	EndTime         string `json:"end_time,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	CallType        string `json:"call_type"`
}

// CallHistoryMsg is the response to get_call_history (C9).
type CallHistoryMsg struct {
	Type  string    `json:"type"`
	Calls []CallRow `json:"calls"`
}

// ErrorMsg is a generic protocol-level error reply.
type ErrorMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Outbound type constants, exhaustive per the command surface.
const (
	TypeHandshake           = "handshake"
	TypeRegister            = "register"
	TypeRegisterSuccess     = "register_success"
	TypeRegisterFailure     = "register_failure"
	TypeLogin               = "login"
	TypeLoginSuccess        = "login_success"
	TypeLoginFailure        = "login_failure"
	TypeTokenLogin          = "token_login"
	TypeTokenLoginFailure   = "token_login_failure"
	TypeLogoutRequest       = "logout_request"
	TypeLogoutSuccess       = "logout_success"
	TypeLogoutFailure       = "logout_failure"
	TypeUpdateProfile       = "update_profile"
	TypeUpdateProfileResult = "update_profile_result"
	TypeUserList            = "user_list"
	TypeContactList         = "contact_list"
	TypePendingList         = "pending_requests_list"
	TypeSearchUsers         = "search_users"
	TypeSearchResults       = "search_results"
	TypeAddContactRequest   = "add_contact_request"
	TypeAddContactSuccess   = "add_contact_success"
	TypeAddContactFailure   = "add_contact_failure"
	TypeIncomingContact     = "incoming_contact_request"
	TypeContactResponse     = "contact_request_response"
	TypeUnreadCounts        = "unread_counts"
	TypePrivateMessage      = "private_message"
	TypeGetHistory          = "get_history"
	TypeHistoryData         = "history_data"
	TypeOldHistoryData      = "old_history_data"
	TypeEditMessage         = "edit_message"
	TypeDeleteMessage       = "delete_message"
	TypeTyping              = "typing"
	TypeMessageDelivered    = "message_delivered"
	TypeMessageRead         = "message_read"
	TypeCallRequest         = "call_request"
	TypeCallAccepted        = "call_accepted"
	TypeCallRejected        = "call_rejected"
	TypeCallEnd             = "call_end"
	TypeGetCallHistory      = "get_call_history"
	TypeCallHistory         = "call_history"
	TypeError               = "error"
)
