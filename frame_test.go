package main

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello world")
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestReadFrameMultiplePerBuffer(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, []byte("one"))
	WriteFrame(&buf, []byte("two"))

	first, err := ReadFrame(&buf)
	if err != nil || string(first) != "one" {
		t.Fatalf("first frame: %q, %v", first, err)
	}
	second, err := ReadFrame(&buf)
	if err != nil || string(second) != "two" {
		t.Fatalf("second frame: %q, %v", second, err)
	}
}

func TestReadFrameWaitsForPartialData(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, []byte("partial-test"))
	full := buf.Bytes()

	// Split the frame into two reads to simulate data arriving in pieces.
	r := &stepReader{chunks: [][]byte{full[:3], full[3:]}}
	got, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(got) != "partial-test" {
		t.Fatalf("got %q", got)
	}
}

// stepReader returns one chunk per Read call, simulating a stream that
// delivers bytes in arbitrary pieces.
type stepReader struct {
	chunks [][]byte
}

func (r *stepReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestCleartextRoundTrip(t *testing.T) {
	json := []byte(`{"type":"handshake"}`)
	encoded := EncodeCleartext(json)
	decoded, err := DecodeCleartext(encoded)
	if err != nil {
		t.Fatalf("DecodeCleartext: %v", err)
	}
	if !bytes.Equal(decoded, json) {
		t.Fatalf("got %q, want %q", decoded, json)
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	nonce := bytes.Repeat([]byte{0x01}, 24)
	tagCiphertext := bytes.Repeat([]byte{0x02}, 16+10)
	encoded := EncodeEncrypted(nonce, tagCiphertext)

	gotNonce, gotTagCiphertext, err := DecodeEncrypted(encoded)
	if err != nil {
		t.Fatalf("DecodeEncrypted: %v", err)
	}
	if !bytes.Equal(gotNonce, nonce) {
		t.Fatalf("nonce mismatch")
	}
	if !bytes.Equal(gotTagCiphertext, tagCiphertext) {
		t.Fatalf("tag+ciphertext mismatch")
	}
}

func TestDecodeEncryptedRejectsShortNonce(t *testing.T) {
	encoded := EncodeEncrypted([]byte("too short"), bytes.Repeat([]byte{0x02}, 16))
	if _, _, err := DecodeEncrypted(encoded); err == nil {
		t.Fatalf("expected error for short nonce")
	}
}

func TestDecodeEncryptedRejectsShortTag(t *testing.T) {
	nonce := bytes.Repeat([]byte{0x01}, 24)
	encoded := EncodeEncrypted(nonce, []byte("short"))
	if _, _, err := DecodeEncrypted(encoded); err == nil {
		t.Fatalf("expected error for undersized tag+ciphertext")
	}
}
