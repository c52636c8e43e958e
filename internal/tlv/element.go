// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package tlv

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ProtocolError represents a framing or element-level violation. The
// Reason byte is the REASON value the session engine should attempt to
// report back to the peer in a best-effort END_SESSION before closing the
// connection.
type ProtocolError struct {
	Reason byte
	Msg    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("tlv: %s", e.Msg)
}

func protoErr(reason byte, format string, args ...interface{}) error {
	return &ProtocolError{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// Set is a dictionary of elements keyed by tag, kept in the order tags were
// first added. Duplicate tags
// seen while decoding overwrite the previous value (last-wins), per
// spec.md §4.1.
type Set struct {
	values map[byte][]byte
	order  []byte // encode order, as elements are added
}

// NewSet returns an empty element set ready for encoding.
func NewSet() *Set {
	return &Set{values: make(map[byte][]byte)}
}

func (s *Set) put(tag byte, raw []byte) {
	if _, exists := s.values[tag]; !exists {
		s.order = append(s.order, tag)
	}
	s.values[tag] = raw
}

// PutUint8 adds a single-byte numeric element.
func (s *Set) PutUint8(tag, v byte) { s.put(tag, []byte{v}) }

// PutUint16 adds a big-endian two-byte numeric element.
func (s *Set) PutUint16(tag byte, v uint16) {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	s.put(tag, b)
}

// PutUint32 adds a big-endian four-byte numeric element.
func (s *Set) PutUint32(tag byte, v uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	s.put(tag, b)
}

// PutString adds a UTF-8 string element with the trailing NUL spec.md §4.1
// requires producers to append.
func (s *Set) PutString(tag byte, v string) {
	b := append([]byte(v), 0x00)
	s.put(tag, b)
}

// PutBytes adds a raw byte-string element (e.g. PUBLIC_KEY, SIGNED_DATA).
func (s *Set) PutBytes(tag byte, v []byte) { s.put(tag, v) }

// PutCert adds a CERTIFICATE element, wrapping the DER bytes in the 5-byte
// inner header spec.md §4.1 defines.
func (s *Set) PutCert(tag, certType byte, der []byte) {
	inner := make([]byte, 0, 5+len(der))
	inner = append(inner, 0x01)
	innerLen := uint16(len(der) + 2)
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, innerLen)
	inner = append(inner, lenBuf...)
	inner = append(inner, 0x00, certType)
	inner = append(inner, der...)
	s.put(tag, inner)
}

// Has reports whether tag is present.
func (s *Set) Has(tag byte) bool {
	_, ok := s.values[tag]
	return ok
}

// Raw returns the raw payload bytes for tag, if present.
func (s *Set) Raw(tag byte) ([]byte, bool) {
	v, ok := s.values[tag]
	return v, ok
}

// Uint8 decodes a single-byte numeric element.
func (s *Set) Uint8(tag byte) (byte, error) {
	v, ok := s.values[tag]
	if !ok || len(v) != 1 {
		return 0, protoErr(ReasonInvalidElement, "missing or malformed element tag=%d", tag)
	}
	return v[0], nil
}

// Uint16 decodes a big-endian two-byte numeric element.
func (s *Set) Uint16(tag byte) (uint16, error) {
	v, ok := s.values[tag]
	if !ok || len(v) != 2 {
		return 0, protoErr(ReasonInvalidElement, "missing or malformed element tag=%d", tag)
	}
	return binary.BigEndian.Uint16(v), nil
}

// Uint32 decodes a big-endian four-byte numeric element.
func (s *Set) Uint32(tag byte) (uint32, error) {
	v, ok := s.values[tag]
	if !ok || len(v) != 4 {
		return 0, protoErr(ReasonInvalidElement, "missing or malformed element tag=%d", tag)
	}
	return binary.BigEndian.Uint32(v), nil
}

// String decodes a NUL-terminated UTF-8 string element, stripping the
// trailing NUL.
func (s *Set) String(tag byte) (string, error) {
	v, ok := s.values[tag]
	if !ok {
		return "", protoErr(ReasonInvalidElement, "missing element tag=%d", tag)
	}
	if len(v) == 0 || v[len(v)-1] != 0x00 {
		return "", protoErr(ReasonInvalidElement, "string element tag=%d missing trailing NUL", tag)
	}
	return string(v[:len(v)-1]), nil
}

// Bytes decodes a raw byte-string element.
func (s *Set) Bytes(tag byte) ([]byte, error) {
	v, ok := s.values[tag]
	if !ok {
		return nil, protoErr(ReasonInvalidElement, "missing element tag=%d", tag)
	}
	return v, nil
}

// Cert decodes a CERTIFICATE element, stripping the 5-byte inner header and
// returning the DER bytes and the cert_type byte.
func (s *Set) Cert(tag byte) (der []byte, certType byte, err error) {
	v, ok := s.values[tag]
	if !ok {
		return nil, 0, protoErr(ReasonInvalidElement, "missing element tag=%d", tag)
	}
	if len(v) < 5 || v[0] != 0x01 || v[3] != 0x00 {
		return nil, 0, protoErr(ReasonInvalidElement, "malformed certificate element tag=%d", tag)
	}
	innerLen := binary.BigEndian.Uint16(v[1:3])
	if int(innerLen) != len(v)-3 {
		return nil, 0, protoErr(ReasonInvalidElement, "certificate inner length mismatch tag=%d", tag)
	}
	return v[5:], v[4], nil
}

// Require verifies every tag in tags is present, returning a ProtocolError
// for the first one missing.
func (s *Set) Require(tags ...byte) error {
	for _, t := range tags {
		if !s.Has(t) {
			return protoErr(ReasonInvalidElement, "missing required element tag=%d", t)
		}
	}
	return nil
}

// Encode serializes the set in insertion order into the body of a frame.
func (s *Set) Encode() []byte {
	var buf bytes.Buffer
	for _, tag := range s.order {
		v := s.values[tag]
		buf.WriteByte(tag)
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(len(v)))
		buf.Write(lenBuf)
		buf.Write(v)
	}
	return buf.Bytes()
}

// Decode parses a frame body into a Set. allowed, if non-nil, is the set of
// tags valid for the command currently being decoded; any tag outside it
// is a protocol error, per spec.md §4.1 ("unknown tags on receive are a
// protocol error").
func Decode(body []byte, allowed map[byte]bool) (*Set, error) {
	s := NewSet()
	for len(body) > 0 {
		if len(body) < 3 {
			return nil, protoErr(ReasonInvalidElement, "truncated element header")
		}
		tag := body[0]
		length := binary.BigEndian.Uint16(body[1:3])
		body = body[3:]
		if int(length) > len(body) {
			return nil, protoErr(ReasonInvalidElement, "element tag=%d length exceeds body", tag)
		}
		if allowed != nil && !allowed[tag] {
			return nil, protoErr(ReasonInvalidElement, "unknown element tag=%d", tag)
		}
		s.put(tag, body[:length])
		body = body[length:]
	}
	return s, nil
}

// AllowedSet is a convenience constructor for the `allowed` argument to
// Decode.
func AllowedSet(tags ...byte) map[byte]bool {
	m := make(map[byte]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return m
}
