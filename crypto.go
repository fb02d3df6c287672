package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// CryptoSession is the per-stream-connection handshake + AEAD state (C3). The
// message transport has no session at all (the server passes nil for it),
// since that transport's payloads travel in the clear.
type CryptoSession struct {
	privateKey [32]byte
	publicKey  [32]byte
	ready      bool
	sharedKey  [32]byte
	disabled   bool
}

// NewCryptoSession generates a fresh Curve25519 keypair for a new stream
// connection awaiting handshake.
func NewCryptoSession() (*CryptoSession, error) {
	cs := &CryptoSession{}
	if _, err := rand.Read(cs.privateKey[:]); err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	pub, err := curve25519.X25519(cs.privateKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	copy(cs.publicKey[:], pub)
	return cs, nil
}

// NewDisabledCryptoSession returns a session that never becomes ready and
// refuses every handshake. No server path currently constructs one.
func NewDisabledCryptoSession() *CryptoSession {
	return &CryptoSession{disabled: true}
}

// Ready reports whether the handshake has completed and AEAD is active.
func (cs *CryptoSession) Ready() bool {
	return cs.ready
}

// Handshake processes an inbound {"type":"handshake","key":base64} request,
// returning the base64-encoded server public key to echo back in the reply,
// or an error if the session is not eligible for a handshake (§4.3 step 1).
func (cs *CryptoSession) Handshake(clientKeyB64 string) (serverKeyB64 string, err error) {
	if cs.disabled {
		return "", fmt.Errorf("crypto disabled on this transport")
	}
	if cs.ready {
		return "", fmt.Errorf("handshake already completed")
	}
	clientKey, err := base64.StdEncoding.DecodeString(clientKeyB64)
	if err != nil {
		return "", fmt.Errorf("decode client key: %w", err)
	}
	if len(clientKey) != 32 {
		return "", fmt.Errorf("client key must be 32 bytes, got %d", len(clientKey))
	}
	shared, err := curve25519.X25519(cs.privateKey[:], clientKey)
	if err != nil {
		return "", fmt.Errorf("compute shared secret: %w", err)
	}
	copy(cs.sharedKey[:], shared)
	cs.ready = true
	return base64.StdEncoding.EncodeToString(cs.publicKey[:]), nil
}

// Seal encrypts plaintext with a fresh random 24-byte nonce and returns the
// nonce plus the tag-prepended ciphertext, matching the wire layout in
// §4.2/§4.3. Seal must only be called once Ready() is true.
func (cs *CryptoSession) Seal(plaintext []byte) (nonce, tagCiphertext []byte, err error) {
	aead, err := chacha20poly1305.NewX(cs.sharedKey[:])
	if err != nil {
		return nil, nil, fmt.Errorf("init aead: %w", err)
	}
	nonce = make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	// Seal appends the 16-byte tag after the ciphertext; the wire format
	// wants tag first, so the sealed output is rearranged below.
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ctLen := len(sealed) - aead.Overhead()
	tagCiphertext = make([]byte, len(sealed))
	copy(tagCiphertext, sealed[ctLen:])      // tag first
	copy(tagCiphertext[aead.Overhead():], sealed[:ctLen]) // then ciphertext
	return nonce, tagCiphertext, nil
}

// Open decrypts a nonce + tag-prepended-ciphertext pair produced by Seal on
// the peer side. A failed open (tag mismatch, bad nonce length) is fatal for
// the connection per §4.2.
func (cs *CryptoSession) Open(nonce, tagCiphertext []byte) ([]byte, error) {
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", chacha20poly1305.NonceSizeX, len(nonce))
	}
	aead, err := chacha20poly1305.NewX(cs.sharedKey[:])
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	if len(tagCiphertext) < aead.Overhead() {
		return nil, fmt.Errorf("encrypted blob shorter than tag: %d bytes", len(tagCiphertext))
	}
	tag := tagCiphertext[:aead.Overhead()]
	ciphertext := tagCiphertext[aead.Overhead():]
	// chacha20poly1305 expects ciphertext||tag, so rebuild that order for Open.
	sealed := append(append([]byte{}, ciphertext...), tag...)
	return aead.Open(nil, nonce, sealed, nil)
}
