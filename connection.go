package main

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/gorilla/websocket"
)

// transport is the capability each listener implements so that command
// handlers never need to know which wire format or encryption state a
// connection uses (§9, "Polymorphism over transports").
type transport interface {
	// readPayload blocks for the next inbound JSON payload, post-decryption
	// if the transport applies any.
	readPayload() ([]byte, error)
	// writePayload sends one JSON payload, applying framing/encryption as
	// the transport requires.
	writePayload(jsonBytes []byte) error
	// writeCleartext sends one JSON payload in the transport's cleartext
	// frame form regardless of handshake state, used only for the
	// handshake reply itself (§4.3).
	writeCleartext(jsonBytes []byte) error
	close() error
	remoteAddr() string
}

// streamTransport is the stream-oriented, framed, optionally AEAD-sealed
// transport (C2 + C3).
type streamTransport struct {
	conn   net.Conn
	crypto *CryptoSession
}

func newStreamTransport(conn net.Conn) (*streamTransport, error) {
	cs, err := NewCryptoSession()
	if err != nil {
		return nil, err
	}
	return &streamTransport{conn: conn, crypto: cs}, nil
}

func (t *streamTransport) readPayload() ([]byte, error) {
	frame, err := ReadFrame(t.conn)
	if err != nil {
		return nil, err
	}
	if t.crypto.Ready() {
		nonce, tagCiphertext, err := DecodeEncrypted(frame)
		if err != nil {
			return nil, fmt.Errorf("decode encrypted frame: %w", err)
		}
		plaintext, err := t.crypto.Open(nonce, tagCiphertext)
		if err != nil {
			return nil, fmt.Errorf("open frame: %w", err)
		}
		return plaintext, nil
	}
	return DecodeCleartext(frame)
}

func (t *streamTransport) writePayload(jsonBytes []byte) error {
	if t.crypto.Ready() {
		nonce, tagCiphertext, err := t.crypto.Seal(jsonBytes)
		if err != nil {
			return fmt.Errorf("seal frame: %w", err)
		}
		return WriteFrame(t.conn, EncodeEncrypted(nonce, tagCiphertext))
	}
	return WriteFrame(t.conn, EncodeCleartext(jsonBytes))
}

func (t *streamTransport) writeCleartext(jsonBytes []byte) error {
	return WriteFrame(t.conn, EncodeCleartext(jsonBytes))
}

func (t *streamTransport) close() error { return t.conn.Close() }

func (t *streamTransport) remoteAddr() string { return t.conn.RemoteAddr().String() }

// messageTransport is the whole-message, plaintext WebSocket transport.
// It has no crypto session; payloads are never encrypted (§4.1).
type messageTransport struct {
	ws *websocket.Conn
}

func newMessageTransport(ws *websocket.Conn) *messageTransport {
	return &messageTransport{ws: ws}
}

func (t *messageTransport) readPayload() ([]byte, error) {
	_, data, err := t.ws.ReadMessage()
	return data, err
}

func (t *messageTransport) writePayload(jsonBytes []byte) error {
	return t.ws.WriteMessage(websocket.TextMessage, jsonBytes)
}

// writeCleartext is identical to writePayload here: the message transport
// never encrypts at this layer (§4.1).
func (t *messageTransport) writeCleartext(jsonBytes []byte) error {
	return t.writePayload(jsonBytes)
}

func (t *messageTransport) close() error { return t.ws.Close() }

func (t *messageTransport) remoteAddr() string { return t.ws.RemoteAddr().String() }

// Connection is the per-accept context (§3, "Connection context"). It owns
// a transport capability and, once login succeeds, the bound username.
type Connection struct {
	mu       sync.Mutex
	t        transport
	username string // "" until bound
}

func newConnection(t transport) *Connection {
	return &Connection{t: t}
}

// Send marshals v to JSON and writes it through the transport. Safe for
// concurrent use — a single connection is processed by one handler at a
// time per §5, but background sweeps (disconnect cleanup, receipts from
// other connections) may write concurrently with the owning goroutine.
func (c *Connection) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t.writePayload(data)
}

// SendCleartext marshals v to JSON and writes it in cleartext frame form,
// bypassing AEAD even if the session is ready. Used only for the handshake
// reply (§4.3), which the client must receive unencrypted to finish
// deriving its own key.
func (c *Connection) SendCleartext(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t.writeCleartext(data)
}

// ReadEnvelope blocks for the next inbound JSON object and decodes it into
// an Envelope. A frame that cannot be decoded or decrypted, JSON that does
// not parse to an object, or an object without a type is a protocol error
// per §7 kind 1 and is returned to the caller, which must abort the
// connection.
func (c *Connection) ReadEnvelope() (Envelope, error) {
	data, err := c.t.readPayload()
	if err != nil {
		return Envelope{}, err
	}
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("parse json: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, fmt.Errorf("missing type field")
	}
	return e, nil
}

// Username returns the bound username, or "" if the connection has not yet
// authenticated.
func (c *Connection) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// bind records the successful-login username on the connection.
func (c *Connection) bind(username string) {
	c.mu.Lock()
	c.username = username
	c.mu.Unlock()
}

// unbind clears the bound username (used by logout and disconnect).
func (c *Connection) unbind() {
	c.mu.Lock()
	c.username = ""
	c.mu.Unlock()
}

// Close releases the underlying transport.
func (c *Connection) Close() error {
	return c.t.close()
}

func (c *Connection) RemoteAddr() string {
	return c.t.remoteAddr()
}
