// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package tlv

import (
	"encoding/binary"
	"fmt"
	"io"
)

// TVSHeaderLen is the fixed 10-byte TVS frame header length, per
// spec.md §4.1: protocol_id(1) | version(1) | command(1) | reserved(1) |
// session_id(4) | body_length(2).
const TVSHeaderLen = 10

// TVSFrame is a decoded TVS frame.
type TVSFrame struct {
	Command   byte
	SessionID uint32
	Elements  *Set
}

// EncodeTVSFrame serializes a single TVS frame for one atomic write.
func EncodeTVSFrame(command byte, sessionID uint32, elements *Set) []byte {
	body := elements.Encode()
	buf := make([]byte, TVSHeaderLen+len(body))
	buf[0] = ProtocolTVS
	buf[1] = TVSVersion
	buf[2] = command
	buf[3] = 0x00
	binary.BigEndian.PutUint32(buf[4:8], sessionID)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(body)))
	copy(buf[TVSHeaderLen:], body)
	return buf
}

// ReadTVSFrame reads and decodes exactly one TVS frame from r.
func ReadTVSFrame(r io.Reader, allowed map[byte]bool) (*TVSFrame, error) {
	header := make([]byte, TVSHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("tlv: read tvs header: %w", err)
	}
	if header[0] != ProtocolTVS {
		return nil, protoErr(ReasonInvalidElement, "bad tvs protocol_id=%d", header[0])
	}
	if header[1] != TVSVersion {
		return nil, protoErr(ReasonInvalidElement, "bad tvs version=%d", header[1])
	}
	command := header[2]
	sessionID := binary.BigEndian.Uint32(header[4:8])
	bodyLen := binary.BigEndian.Uint16(header[8:10])

	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("tlv: read tvs body: %w", err)
		}
	}
	elements, err := Decode(body, allowed)
	if err != nil {
		return nil, err
	}
	return &TVSFrame{Command: command, SessionID: sessionID, Elements: elements}, nil
}
