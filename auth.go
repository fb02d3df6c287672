package main

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"duskrelay/store"
)

// KDF parameters from §3: memory ~1 MiB, 3 passes, 1 lane, 32-byte output.
const (
	kdfMemoryKiB = 1024
	kdfPasses    = 3
	kdfLanes     = 1
	kdfKeyLen    = 32
	saltLen      = 16

	tokenValidity = 30 * 24 * time.Hour
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// sqlBlocklist rejects usernames containing SQL-keyword substrings,
// case-insensitively, as a defence-in-depth measure independent of the
// parameterized queries already used throughout the store.
var sqlBlocklist = []string{"select", "insert", "update", "delete", "drop", "union", "--", ";"}

// validateUsername enforces the shape rules in §3/§4.6.
func validateUsername(u string) error {
	if len(u) < 3 || len(u) > 20 {
		return fmt.Errorf("username must be 3-20 characters")
	}
	if !usernameRe.MatchString(u) {
		return fmt.Errorf("username must match [A-Za-z0-9_-]+")
	}
	lower := strings.ToLower(u)
	for _, kw := range sqlBlocklist {
		if strings.Contains(lower, kw) {
			return fmt.Errorf("username contains a reserved substring")
		}
	}
	return nil
}

// hashPassword derives the verifier for password with the given salt using
// the memory-hard KDF parameters mandated by §3.
func hashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, kdfPasses, kdfMemoryKiB, kdfLanes, kdfKeyLen)
}

// generateSalt returns a fresh random salt of saltLen bytes.
func generateSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	_, err := rand.Read(salt)
	return salt, err
}

// generateToken produces a 32-byte hash over a fresh UUID, the username and
// a millisecond timestamp, rendered as lowercase hex (§4.6).
func generateToken(username string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	seed := fmt.Sprintf("%s:%s:%d", id.String(), username, time.Now().UnixMilli())
	sum := sha256.Sum256([]byte(seed))
	return fmt.Sprintf("%x", sum), nil
}

// handleRegister implements §4.6 "Register".
func (h *Hub) handleRegister(conn *Connection, e Envelope) {
	if err := validateUsername(e.Username); err != nil {
		sendFailure(conn, TypeRegisterFailure, err.Error())
		return
	}
	if e.Password == "" {
		sendFailure(conn, TypeRegisterFailure, "password required")
		return
	}
	salt, err := generateSalt()
	if err != nil {
		log.Printf("[auth] generate salt: %v", err)
		sendFailure(conn, TypeRegisterFailure, "Database error")
		return
	}
	hash := hashPassword(e.Password, salt)

	displayName := e.DisplayName
	if displayName == "" {
		displayName = e.Username
	}

	if _, err := h.st.CreateUser(e.Username, displayName, hash, salt, time.Now()); err != nil {
		sendFailure(conn, TypeRegisterFailure, "Username already exists")
		return
	}
	_ = conn.Send(Envelope{Type: TypeRegisterSuccess})
}

// handleLogin implements §4.6 "Password login".
func (h *Hub) handleLogin(conn *Connection, e Envelope) {
	u, err := h.st.GetUserByUsername(e.Username)
	if err == sql.ErrNoRows {
		sendFailure(conn, TypeLoginFailure, "Invalid credentials")
		return
	}
	if err != nil {
		log.Printf("[auth] lookup %s: %v", e.Username, err)
		sendFailure(conn, TypeLoginFailure, "Database error")
		return
	}
	got := hashPassword(e.Password, u.Salt)
	if subtle.ConstantTimeCompare(got, u.PasswordHash) != 1 {
		sendFailure(conn, TypeLoginFailure, "Invalid credentials")
		return
	}

	token, expiresAt, err := h.issueToken(e.Username)
	if err != nil {
		log.Printf("[auth] issue token for %s: %v", e.Username, err)
		sendFailure(conn, TypeLoginFailure, "Database error")
		return
	}

	h.completeLogin(conn, u, token, expiresAt)
}

// handleTokenLogin implements §4.6 "Token login".
func (h *Hub) handleTokenLogin(conn *Connection, e Envelope) {
	if entry, ok := h.tokenGet(e.Username); ok && entry.token == e.Token {
		u, err := h.st.GetUserByUsername(e.Username)
		if err != nil {
			sendFailure(conn, TypeTokenLoginFailure, "Database error")
			return
		}
		h.completeLogin(conn, u, entry.token, entry.expiresAt)
		return
	}

	row, err := h.st.GetToken(e.Username)
	if err == sql.ErrNoRows {
		sendFailure(conn, TypeTokenLoginFailure, "Unknown token")
		return
	}
	if err != nil {
		sendFailure(conn, TypeTokenLoginFailure, "Database error")
		return
	}
	if row.Token != e.Token {
		sendFailure(conn, TypeTokenLoginFailure, "Unknown token")
		return
	}
	expiresAt, err := time.Parse(timeLayout, row.ExpiresAt)
	if err != nil {
		sendFailure(conn, TypeTokenLoginFailure, "Database error")
		return
	}
	if time.Now().After(expiresAt) {
		_ = h.st.DeleteToken(e.Username)
		sendFailure(conn, TypeTokenLoginFailure, "Token expired")
		return
	}

	u, err := h.st.GetUserByUsername(e.Username)
	if err != nil {
		sendFailure(conn, TypeTokenLoginFailure, "Database error")
		return
	}
	h.tokenSet(e.Username, row.Token, expiresAt)
	h.completeLogin(conn, u, row.Token, expiresAt)
}

// timeLayout mirrors the store's timestamp format so auth.go can parse rows
// it reads back.
const timeLayout = time.RFC3339

// issueToken generates and persists a fresh token for username, replacing
// any previous row, and updates the in-memory cache (§4.6).
func (h *Hub) issueToken(username string) (token string, expiresAt time.Time, err error) {
	token, err = generateToken(username)
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now()
	expiresAt = now.Add(tokenValidity)
	if err := h.st.UpsertToken(username, token, now, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	h.tokenSet(username, token, expiresAt)
	return token, expiresAt, nil
}

// completeLogin performs the shared tail of password and token login:
// bind, reply login_success, push contact list / pending requests / unread
// counts, then broadcast the updated online set (§4.6).
func (h *Hub) completeLogin(conn *Connection, u store.User, token string, expiresAt time.Time) {
	h.bind(u.Username, conn)

	_ = conn.Send(Envelope{
		Type:          TypeLoginSuccess,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		AvatarURL:     u.AvatarURL,
		StatusMessage: u.StatusMessage,
		Token:         token,
	})

	h.pushContactList(conn, u.Username)
	h.pushPendingList(conn, u.Username)
	h.pushUnreadCounts(conn, u.Username)

	h.broadcastUserList()
}

// handleLogoutRequest implements §4.6 "Logout".
func (h *Hub) handleLogoutRequest(conn *Connection, e Envelope) {
	username := conn.Username()
	if username == "" {
		return
	}
	h.tokenClear(username)
	if err := h.st.DeleteToken(username); err != nil {
		log.Printf("[auth] delete token for %s: %v", username, err)
	}
	h.unbindByConn(conn)
	_ = conn.Send(Envelope{Type: TypeLogoutSuccess})
}

// handleUpdateProfile implements §4.6 "Update profile".
func (h *Hub) handleUpdateProfile(conn *Connection, e Envelope) {
	username := conn.Username()
	if username == "" {
		return
	}
	if err := h.st.UpdateProfile(username, e.DisplayName, e.StatusMessage, e.AvatarURL); err != nil {
		log.Printf("[auth] update profile for %s: %v", username, err)
		return
	}
	_ = conn.Send(Envelope{
		Type:          TypeUpdateProfileResult,
		Username:      username,
		DisplayName:   e.DisplayName,
		StatusMessage: e.StatusMessage,
		AvatarURL:     e.AvatarURL,
	})
}

// sendFailure sends a {"type": typ, "reason": reason} reply.
func sendFailure(conn *Connection, typ, reason string) {
	_ = conn.Send(ErrorMsg{Type: typ, Reason: reason})
}
