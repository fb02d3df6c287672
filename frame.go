package main

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame to guard against a hostile length
// prefix exhausting memory before the payload is even read.
const maxFrameSize = 16 * 1024 * 1024

// ReadFrame reads one outer frame from r: a 4-byte big-endian length prefix
// followed by exactly that many bytes. It blocks until the full frame has
// arrived, which is what the reassembly rule in §4.2 amounts to when frames
// are read directly off a blocking stream.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes one outer frame: a 4-byte big-endian length prefix
// followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readBlob consumes one nested length-delimited value from buf, returning
// the value and the number of bytes consumed.
func readBlob(buf []byte) (value []byte, consumed int, err error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("short blob header: %d bytes", len(buf))
	}
	n := binary.BigEndian.Uint32(buf[:4])
	if int(n) > len(buf)-4 {
		return nil, 0, fmt.Errorf("blob length %d exceeds remaining %d bytes", n, len(buf)-4)
	}
	return buf[4 : 4+n], 4 + int(n), nil
}

// appendBlob appends value to buf as one nested length-delimited blob.
func appendBlob(buf []byte, value []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(value)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, value...)
}

// EncodeCleartext wraps jsonBytes as the single nested blob that makes up a
// cleartext frame body (§4.2).
func EncodeCleartext(jsonBytes []byte) []byte {
	return appendBlob(nil, jsonBytes)
}

// DecodeCleartext unwraps a cleartext frame body, returning the JSON bytes.
func DecodeCleartext(payload []byte) ([]byte, error) {
	value, consumed, err := readBlob(payload)
	if err != nil {
		return nil, err
	}
	if consumed != len(payload) {
		return nil, fmt.Errorf("trailing bytes after cleartext blob: %d", len(payload)-consumed)
	}
	return value, nil
}

// EncodeEncrypted wraps nonce and tagCiphertext as the two nested blobs that
// make up an encrypted frame body (§4.2).
func EncodeEncrypted(nonce, tagCiphertext []byte) []byte {
	buf := appendBlob(nil, nonce)
	return appendBlob(buf, tagCiphertext)
}

// DecodeEncrypted unwraps an encrypted frame body into its nonce and
// tag+ciphertext blob, validating the lengths required by §4.2.
func DecodeEncrypted(payload []byte) (nonce, tagCiphertext []byte, err error) {
	nonce, n, err := readBlob(payload)
	if err != nil {
		return nil, nil, err
	}
	if len(nonce) != 24 {
		return nil, nil, fmt.Errorf("nonce must be 24 bytes, got %d", len(nonce))
	}
	rest := payload[n:]
	tagCiphertext, n2, err := readBlob(rest)
	if err != nil {
		return nil, nil, err
	}
	if n2 != len(rest) {
		return nil, nil, fmt.Errorf("trailing bytes after encrypted blob: %d", len(rest)-n2)
	}
	if len(tagCiphertext) < 16 {
		return nil, nil, fmt.Errorf("encrypted blob shorter than tag: %d bytes", len(tagCiphertext))
	}
	return nonce, tagCiphertext, nil
}
