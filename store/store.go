// Package store provides persistent server state backed by an embedded
// SQLite database. It owns the database lifecycle and exposes the typed
// operations used by the rest of the server: accounts, messages, the
// contact graph, call history and auth tokens.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string — never edit or reorder existing entries.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// migrations holds the ordered list of DDL statements that bring the schema
// up to date. Index i corresponds to version i+1.
var migrations = []string{
	// v1 — user accounts
	`CREATE TABLE IF NOT EXISTS users (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		username       TEXT UNIQUE NOT NULL,
		display_name   TEXT NOT NULL,
		password_hash  BLOB NOT NULL,
		salt           BLOB NOT NULL,
		creation_date  TEXT NOT NULL,
		last_seen      TEXT,
		avatar_url     TEXT NOT NULL DEFAULT '',
		status_message TEXT NOT NULL DEFAULT ''
	)`,
	// v2 — messages (v3, v4: its indexes)
	`CREATE TABLE IF NOT EXISTS messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		from_user       TEXT NOT NULL,
		to_user         TEXT NOT NULL,
		payload         TEXT NOT NULL,
		timestamp       TEXT NOT NULL,
		is_delivered    INTEGER NOT NULL DEFAULT 0,
		is_read         INTEGER NOT NULL DEFAULT 0,
		is_edited       INTEGER NOT NULL DEFAULT 0,
		reply_to_id     INTEGER,
		forwarded_from  TEXT NOT NULL DEFAULT '',
		file_id         TEXT NOT NULL DEFAULT '',
		file_name       TEXT NOT NULL DEFAULT '',
		file_url        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_user)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_user)`,
	// v5 — contact graph, canonical pair (user_id_1 < user_id_2)
	`CREATE TABLE IF NOT EXISTS contacts (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id_1     INTEGER NOT NULL,
		user_id_2     INTEGER NOT NULL,
		status        INTEGER NOT NULL DEFAULT 0,
		creation_date TEXT NOT NULL,
		FOREIGN KEY(user_id_1) REFERENCES users(id),
		FOREIGN KEY(user_id_2) REFERENCES users(id),
		UNIQUE(user_id_1, user_id_2),
		CHECK(user_id_1 < user_id_2)
	)`,
	// v6 — call history (v7-v9: its indexes)
	`CREATE TABLE IF NOT EXISTS call_history (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		call_id           TEXT UNIQUE NOT NULL,
		caller_username   TEXT NOT NULL,
		callee_username   TEXT NOT NULL,
		status            TEXT NOT NULL DEFAULT 'ringing',
		start_time        TEXT NOT NULL,
		connect_time      TEXT,
		end_time          TEXT,
		duration_seconds  INTEGER NOT NULL DEFAULT 0,
		caller_ip         TEXT NOT NULL DEFAULT '',
		caller_port       INTEGER NOT NULL DEFAULT 0,
		callee_ip         TEXT,
		callee_port       INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_call_caller ON call_history(caller_username)`,
	`CREATE INDEX IF NOT EXISTS idx_call_callee ON call_history(callee_username)`,
	`CREATE INDEX IF NOT EXISTS idx_call_start_time ON call_history(start_time DESC)`,
	// v10 — auth tokens, one row per username (v11: its index)
	`CREATE TABLE IF NOT EXISTS tokens (
		username   TEXT PRIMARY KEY,
		token      TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		FOREIGN KEY(username) REFERENCES users(username) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_username ON tokens(username)`,
	// v12 — uploaded-file metadata; the core only ever writes/reads this row,
	// it never dereferences file contents (the file service is external).
	`CREATE TABLE IF NOT EXISTS files (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		file_uuid          TEXT UNIQUE NOT NULL,
		owner_username     TEXT NOT NULL,
		original_filename  TEXT NOT NULL,
		filesize           INTEGER NOT NULL,
		status             INTEGER NOT NULL DEFAULT 0,
		upload_date        TEXT NOT NULL
	)`,
	// v13 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// timeLayout is the ISO-8601 layout used for every persisted timestamp.
const timeLayout = time.RFC3339

// Store wraps a SQLite database and exposes server-state operations.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and applies any pending
// migrations. Use ":memory:" for ephemeral in-process storage (tests).
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Allow multiple read connections but serialise writes.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.Printf("[store] WAL mode: %v (non-fatal)", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[store] busy_timeout: %v (non-fatal)", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		log.Printf("[store] foreign_keys: %v (non-fatal)", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema_migrations table (if absent) and applies any
// migrations whose version number exceeds the current maximum.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Printf("[store] applied migration v%d", v)
	}
	return nil
}

// PruneExpiredTokens deletes every token row whose expiry has passed. Called
// once at startup and available as an operator command via the CLI.
func (s *Store) PruneExpiredTokens(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM tokens WHERE expires_at < ?`, now.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// User is the persisted account row.
type User struct {
	ID            int64
	Username      string
	DisplayName   string
	PasswordHash  []byte
	Salt          []byte
	CreationDate  string
	LastSeen      string
	AvatarURL     string
	StatusMessage string
}

// CreateUser inserts a new account. Returns an error (typically a UNIQUE
// constraint violation) if the username already exists.
func (s *Store) CreateUser(username, displayName string, passwordHash, salt []byte, now time.Time) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users(username, display_name, password_hash, salt, creation_date, last_seen)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		username, displayName, passwordHash, salt, now.UTC().Format(timeLayout), now.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetUserByUsername returns the full row, or sql.ErrNoRows if absent.
func (s *Store) GetUserByUsername(username string) (User, error) {
	var u User
	err := s.db.QueryRow(
		`SELECT id, username, display_name, password_hash, salt, creation_date,
		        COALESCE(last_seen, ''), avatar_url, status_message
		 FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Salt, &u.CreationDate, &u.LastSeen, &u.AvatarURL, &u.StatusMessage)
	return u, err
}

// GetUserByID returns the full row, or sql.ErrNoRows if absent.
func (s *Store) GetUserByID(id int64) (User, error) {
	var u User
	err := s.db.QueryRow(
		`SELECT id, username, display_name, password_hash, salt, creation_date,
		        COALESCE(last_seen, ''), avatar_url, status_message
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Salt, &u.CreationDate, &u.LastSeen, &u.AvatarURL, &u.StatusMessage)
	return u, err
}

// TouchLastSeen updates a user's last-seen timestamp to now. Called both on
// disconnect and on explicit logout.
func (s *Store) TouchLastSeen(username string, now time.Time) error {
	_, err := s.db.Exec(`UPDATE users SET last_seen = ? WHERE username = ?`, now.UTC().Format(timeLayout), username)
	return err
}

// UpdateProfile mutates the mutable profile fields. username is immutable
// and is not accepted here.
func (s *Store) UpdateProfile(username, displayName, statusMessage, avatarURL string) error {
	res, err := s.db.Exec(
		`UPDATE users SET display_name = ?, status_message = ?, avatar_url = ? WHERE username = ?`,
		displayName, statusMessage, avatarURL, username,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SearchUsers returns up to limit users whose username or display name
// contains needle (case-insensitive), excluding excludeUsername.
func (s *Store) SearchUsers(needle, excludeUsername string, limit int) ([]User, error) {
	like := "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(needle) + "%"
	rows, err := s.db.Query(
		`SELECT id, username, display_name, avatar_url, status_message
		 FROM users
		 WHERE username != ? AND (username LIKE ? ESCAPE '\' OR display_name LIKE ? ESCAPE '\') COLLATE NOCASE
		 LIMIT ?`,
		excludeUsername, like, like, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.StatusMessage); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// Message is the persisted row.
type Message struct {
	ID            int64
	FromUser      string
	ToUser        string
	Payload       string
	Timestamp     string
	IsDelivered   bool
	IsRead        bool
	IsEdited      bool
	ReplyToID     int64 // 0 = none
	ForwardedFrom string
	FileID        string
	FileName      string
	FileURL       string
}

// InsertMessage persists a new message and returns its assigned id.
func (s *Store) InsertMessage(m Message) (int64, error) {
	var replyTo any
	if m.ReplyToID != 0 {
		replyTo = m.ReplyToID
	}
	res, err := s.db.Exec(
		`INSERT INTO messages(from_user, to_user, payload, timestamp, reply_to_id, forwarded_from, file_id, file_name, file_url)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.FromUser, m.ToUser, m.Payload, m.Timestamp, replyTo, m.ForwardedFrom, m.FileID, m.FileName, m.FileURL,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetMessage returns a message by id, or sql.ErrNoRows if absent.
func (s *Store) GetMessage(id int64) (Message, error) {
	var m Message
	var replyTo sql.NullInt64
	err := s.db.QueryRow(
		`SELECT id, from_user, to_user, payload, timestamp, is_delivered, is_read, is_edited,
		        reply_to_id, forwarded_from, file_id, file_name, file_url
		 FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.FromUser, &m.ToUser, &m.Payload, &m.Timestamp, &m.IsDelivered, &m.IsRead, &m.IsEdited,
		&replyTo, &m.ForwardedFrom, &m.FileID, &m.FileName, &m.FileURL)
	if err != nil {
		return Message{}, err
	}
	m.ReplyToID = replyTo.Int64
	return m, nil
}

// History returns at most limit messages exchanged between userA and userB,
// newest first, optionally cursored by beforeID (0 = no cursor).
func (s *Store) History(userA, userB string, beforeID int64, limit int) ([]Message, error) {
	query := `SELECT id, from_user, to_user, payload, timestamp, is_delivered, is_read, is_edited,
	                 reply_to_id, forwarded_from, file_id, file_name, file_url
	          FROM messages
	          WHERE ((from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?))`
	args := []any{userA, userB, userB, userA}
	if beforeID > 0 {
		query += ` AND id < ?`
		args = append(args, beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var replyTo sql.NullInt64
		if err := rows.Scan(&m.ID, &m.FromUser, &m.ToUser, &m.Payload, &m.Timestamp, &m.IsDelivered, &m.IsRead, &m.IsEdited,
			&replyTo, &m.ForwardedFrom, &m.FileID, &m.FileName, &m.FileURL); err != nil {
			return nil, err
		}
		m.ReplyToID = replyTo.Int64
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetDelivered flips is_delivered to 1. Monotone: a second call is a no-op.
func (s *Store) SetDelivered(id int64) error {
	_, err := s.db.Exec(`UPDATE messages SET is_delivered = 1 WHERE id = ?`, id)
	return err
}

// SetRead flips is_read to 1. Monotone: a second call is a no-op.
func (s *Store) SetRead(id int64) error {
	_, err := s.db.Exec(`UPDATE messages SET is_read = 1 WHERE id = ?`, id)
	return err
}

// EditMessage rewrites the payload and sets is_edited=1.
func (s *Store) EditMessage(id int64, payload string) error {
	res, err := s.db.Exec(`UPDATE messages SET payload = ?, is_edited = 1 WHERE id = ?`, payload, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteMessage removes a message row.
func (s *Store) DeleteMessage(id int64) error {
	_, err := s.db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	return err
}

// UnreadCounts returns, for every distinct sender with unread messages
// addressed to "me", the count of unread messages from that sender.
func (s *Store) UnreadCounts(me string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT from_user, COUNT(*) FROM messages WHERE to_user = ? AND is_read = 0 GROUP BY from_user`, me,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var from string
		var count int
		if err := rows.Scan(&from, &count); err != nil {
			return nil, err
		}
		out[from] = count
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Contacts
// ---------------------------------------------------------------------------

const (
	ContactPending  = 0
	ContactAccepted = 1
	ContactBlocked  = 2
)

// ContactEdge is a persisted (canonical) contact relation.
type ContactEdge struct {
	UserID1      int64
	UserID2      int64
	Status       int
	CreationDate string
}

// canonicalPair orders two user ids so that the first is always smaller.
func canonicalPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// GetContactEdge returns the edge between the two users, or sql.ErrNoRows.
func (s *Store) GetContactEdge(userA, userB int64) (ContactEdge, error) {
	id1, id2 := canonicalPair(userA, userB)
	var e ContactEdge
	err := s.db.QueryRow(
		`SELECT user_id_1, user_id_2, status, creation_date FROM contacts WHERE user_id_1 = ? AND user_id_2 = ?`,
		id1, id2,
	).Scan(&e.UserID1, &e.UserID2, &e.Status, &e.CreationDate)
	return e, err
}

// CreateContactEdge inserts a new edge with the given status in canonical order.
func (s *Store) CreateContactEdge(userA, userB int64, status int, now time.Time) error {
	id1, id2 := canonicalPair(userA, userB)
	_, err := s.db.Exec(
		`INSERT INTO contacts(user_id_1, user_id_2, status, creation_date) VALUES(?, ?, ?, ?)`,
		id1, id2, status, now.UTC().Format(timeLayout),
	)
	return err
}

// UpdateContactStatus updates the status of an existing edge.
func (s *Store) UpdateContactStatus(userA, userB int64, status int) error {
	id1, id2 := canonicalPair(userA, userB)
	res, err := s.db.Exec(
		`UPDATE contacts SET status = ? WHERE user_id_1 = ? AND user_id_2 = ?`, status, id1, id2,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteContactEdge removes an edge entirely (used to decline a pending request).
func (s *Store) DeleteContactEdge(userA, userB int64) error {
	id1, id2 := canonicalPair(userA, userB)
	_, err := s.db.Exec(`DELETE FROM contacts WHERE user_id_1 = ? AND user_id_2 = ?`, id1, id2)
	return err
}

// AcceptedContacts returns every user accepted as a contact of userID.
func (s *Store) AcceptedContacts(userID int64) ([]User, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.username, u.display_name, COALESCE(u.last_seen, ''), u.avatar_url, u.status_message
		 FROM users u
		 JOIN contacts c ON (c.user_id_1 = u.id OR c.user_id_2 = u.id)
		 WHERE c.status = ? AND (c.user_id_1 = ? OR c.user_id_2 = ?) AND u.id != ?`,
		ContactAccepted, userID, userID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.LastSeen, &u.AvatarURL, &u.StatusMessage); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// PendingContacts returns every user with a pending edge involving userID,
// in either direction (preserved as specified — see SPEC_FULL.md).
func (s *Store) PendingContacts(userID int64) ([]User, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.username, u.display_name, COALESCE(u.last_seen, ''), u.avatar_url, u.status_message
		 FROM users u
		 JOIN contacts c ON (c.user_id_1 = u.id OR c.user_id_2 = u.id)
		 WHERE c.status = ? AND (c.user_id_1 = ? OR c.user_id_2 = ?) AND u.id != ?`,
		ContactPending, userID, userID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.LastSeen, &u.AvatarURL, &u.StatusMessage); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Call history
// ---------------------------------------------------------------------------

// Call is a persisted call record.
type Call struct {
	CallID          string
	CallerUsername  string
	CalleeUsername  string
	Status          string
	StartTime       string
	ConnectTime     string // empty if never connected
	EndTime         string // empty if not yet terminal
	DurationSeconds int
	CallerIP        string
	CallerPort      int
	CalleeIP        string // empty if unset
	CalleePort      int    // 0 if unset
}

// CreateCall inserts a new ringing call record.
func (s *Store) CreateCall(c Call) error {
	_, err := s.db.Exec(
		`INSERT INTO call_history(call_id, caller_username, callee_username, status, start_time, caller_ip, caller_port)
		 VALUES(?, ?, ?, 'ringing', ?, ?, ?)`,
		c.CallID, c.CallerUsername, c.CalleeUsername, c.StartTime, c.CallerIP, c.CallerPort,
	)
	return err
}

// GetCall returns a call by id, or sql.ErrNoRows if absent.
func (s *Store) GetCall(callID string) (Call, error) {
	var c Call
	var connectTime, endTime, calleeIP sql.NullString
	var calleePort sql.NullInt64
	err := s.db.QueryRow(
		`SELECT call_id, caller_username, callee_username, status, start_time, connect_time, end_time,
		        duration_seconds, caller_ip, caller_port, callee_ip, callee_port
		 FROM call_history WHERE call_id = ?`, callID,
	).Scan(&c.CallID, &c.CallerUsername, &c.CalleeUsername, &c.Status, &c.StartTime, &connectTime, &endTime,
		&c.DurationSeconds, &c.CallerIP, &c.CallerPort, &calleeIP, &calleePort)
	if err != nil {
		return Call{}, err
	}
	c.ConnectTime = connectTime.String
	c.EndTime = endTime.String
	c.CalleeIP = calleeIP.String
	c.CalleePort = int(calleePort.Int64)
	return c, nil
}

// MarkConnected transitions a call to connected, filling the callee endpoint.
func (s *Store) MarkConnected(callID, connectTime, calleeIP string, calleePort int) error {
	_, err := s.db.Exec(
		`UPDATE call_history SET status = 'connected', connect_time = ?, callee_ip = ?, callee_port = ? WHERE call_id = ?`,
		connectTime, calleeIP, calleePort, callID,
	)
	return err
}

// MarkTerminal transitions a call to a terminal status (rejected, missed or
// completed), filling end_time and duration_seconds.
func (s *Store) MarkTerminal(callID, status, endTime string, durationSeconds int) error {
	_, err := s.db.Exec(
		`UPDATE call_history SET status = ?, end_time = ?, duration_seconds = ? WHERE call_id = ?`,
		status, endTime, durationSeconds, callID,
	)
	return err
}

// CallHistory returns up to limit calls involving username, newest first.
func (s *Store) CallHistory(username string, limit int) ([]Call, error) {
	rows, err := s.db.Query(
		`SELECT call_id, caller_username, callee_username, status, start_time, connect_time, end_time,
		        duration_seconds, caller_ip, caller_port, callee_ip, callee_port
		 FROM call_history
		 WHERE caller_username = ? OR callee_username = ?
		 ORDER BY start_time DESC LIMIT ?`,
		username, username, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		var c Call
		var connectTime, endTime, calleeIP sql.NullString
		var calleePort sql.NullInt64
		if err := rows.Scan(&c.CallID, &c.CallerUsername, &c.CalleeUsername, &c.Status, &c.StartTime, &connectTime, &endTime,
			&c.DurationSeconds, &c.CallerIP, &c.CallerPort, &calleeIP, &calleePort); err != nil {
			return nil, err
		}
		c.ConnectTime = connectTime.String
		c.EndTime = endTime.String
		c.CalleeIP = calleeIP.String
		c.CalleePort = int(calleePort.Int64)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// Token is a persisted re-authentication token.
type Token struct {
	Username  string
	Token     string
	ExpiresAt string
}

// UpsertToken replaces any existing token row for username.
func (s *Store) UpsertToken(username, token string, createdAt, expiresAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO tokens(username, token, created_at, expires_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET token = excluded.token, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		username, token, createdAt.UTC().Format(timeLayout), expiresAt.UTC().Format(timeLayout),
	)
	return err
}

// GetToken returns the token row for username, or sql.ErrNoRows if absent.
func (s *Store) GetToken(username string) (Token, error) {
	var t Token
	err := s.db.QueryRow(
		`SELECT username, token, expires_at FROM tokens WHERE username = ?`, username,
	).Scan(&t.Username, &t.Token, &t.ExpiresAt)
	return t, err
}

// DeleteToken removes the token row for username.
func (s *Store) DeleteToken(username string) error {
	_, err := s.db.Exec(`DELETE FROM tokens WHERE username = ?`, username)
	return err
}

// ---------------------------------------------------------------------------
// Files (external file service durability point; never dereferenced here)
// ---------------------------------------------------------------------------

// CreateFileRecord records metadata for a file the (external) file service
// has accepted on the core's behalf.
func (s *Store) CreateFileRecord(fileUUID, owner, originalFilename string, size int64, now time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO files(file_uuid, owner_username, original_filename, filesize, status, upload_date)
		 VALUES(?, ?, ?, ?, 1, ?)`,
		fileUUID, owner, originalFilename, size, now.UTC().Format(timeLayout),
	)
	return err
}

// Counts returns row counts used by the "status" CLI subcommand.
func (s *Store) Counts() (users, messages, calls int, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&users); err != nil {
		return
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&messages); err != nil {
		return
	}
	err = s.db.QueryRow(`SELECT COUNT(*) FROM call_history`).Scan(&calls)
	return
}
