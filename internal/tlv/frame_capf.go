// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package tlv

import (
	"encoding/binary"
	"fmt"
	"io"
)

// CAPFHeaderLen is the fixed 8-byte CAPF frame header length, per
// spec.md §4.1: protocol_id(1) | command(1) | session_id(4) | body_length(2).
const CAPFHeaderLen = 8

// CAPFFrame is a decoded CAPF frame: command, the session_id the peer
// echoed (or the server assigned), and its parsed element set.
type CAPFFrame struct {
	Command   byte
	SessionID uint32
	Elements  *Set
}

// EncodeCAPFFrame serializes a single CAPF frame, header and body together,
// so the caller can hand the whole buffer to one Conn.Write call — Cisco
// phones fail if a frame is split across kernel write calls.
func EncodeCAPFFrame(command byte, sessionID uint32, elements *Set) []byte {
	body := elements.Encode()
	buf := make([]byte, CAPFHeaderLen+len(body))
	buf[0] = ProtocolCAPF
	buf[1] = command
	binary.BigEndian.PutUint32(buf[2:6], sessionID)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(body)))
	copy(buf[CAPFHeaderLen:], body)
	return buf
}

// ReadCAPFFrame reads and decodes exactly one CAPF frame from r. allowed
// restricts which element tags are valid for the frame's command; pass nil
// to skip tag validation (e.g. when the command itself is still unknown to
// the caller and will be validated separately).
func ReadCAPFFrame(r io.Reader, allowed map[byte]bool) (*CAPFFrame, error) {
	header := make([]byte, CAPFHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("tlv: read capf header: %w", err)
	}
	if header[0] != ProtocolCAPF {
		return nil, protoErr(ReasonInvalidElement, "bad capf protocol_id=%d", header[0])
	}
	command := header[1]
	sessionID := binary.BigEndian.Uint32(header[2:6])
	bodyLen := binary.BigEndian.Uint16(header[6:8])

	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("tlv: read capf body: %w", err)
		}
	}
	elements, err := Decode(body, allowed)
	if err != nil {
		return nil, err
	}
	return &CAPFFrame{Command: command, SessionID: sessionID, Elements: elements}, nil
}
