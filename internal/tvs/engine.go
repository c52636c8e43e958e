// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

// Package tvs implements the TVS session engine: a single VERIFY_REQUEST
// answered by one VERIFY_RESPONSE, per spec.md §4.5.
package tvs

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"regexp"

	"capf-tvs-gateway/internal/store"
	"capf-tvs-gateway/internal/tlv"
	"capf-tvs-gateway/internal/tvserr"
)

// deviceNamePattern is the DEVICE_NAME syntax spec.md §4.5 mandates.
var deviceNamePattern = regexp.MustCompile(`^CP-[0-9]{4}-SEP[0-9A-F]{12}$`)

// Engine holds the shared, read-only trust-record store.
type Engine struct {
	Store store.TVSStore
}

// HandleConn runs one TVS session to completion. Unlike CAPF, TVS never
// sends a best-effort error frame on protocol failure — the spec names no
// such fallback for this simpler single-shot protocol — it just logs and
// closes.
func (e *Engine) HandleConn(conn net.Conn) {
	log := slog.With("peer", conn.RemoteAddr().String())

	frame, err := tlv.ReadTVSFrame(conn, tlv.AllowedSet(tlv.TagTVSDeviceName, tlv.TagTVSCertificate))
	if err != nil {
		log.Error("read verify request failed", "error", &tvserr.Protocol{Msg: "read frame", Err: err})
		return
	}
	if frame.Command != tlv.CmdVerifyRequest {
		log.Error("unexpected command", "command", frame.Command)
		return
	}

	deviceName, err := decodeDeviceName(frame.Elements)
	if err != nil {
		log.Error("malformed DEVICE_NAME", "error", err)
		return
	}
	if !deviceNamePattern.MatchString(deviceName) {
		log.Error("device name failed syntax check", "device_name", deviceName)
		return
	}

	certDER, _, err := frame.Elements.Cert(tlv.TagTVSCertificate)
	if err != nil {
		log.Error("missing CERTIFICATE", "error", err)
		return
	}
	if _, err := x509.ParseCertificate(certDER); err != nil {
		log.Error("undecodable certificate", "error", err)
		return
	}

	fingerprint := sha256.Sum256(certDER)
	fingerprintHex := hex.EncodeToString(fingerprint[:])

	record, err := e.Store.GetTrustRecord(fingerprintHex)
	if err != nil {
		log.Error("trust record lookup failed", "error", &tvserr.Store{Msg: "lookup", Err: err})
		return
	}

	resp := tlv.NewSet()
	if record == nil {
		resp.PutUint8(tlv.TagTVSStatus, tlv.TVSStatusInvalid)
	} else {
		resp.PutUint8(tlv.TagTVSStatus, tlv.TVSStatusValid)
		resp.PutBytes(tlv.TagTVSRoles, packRoles(record.Roles))
		resp.PutUint32(tlv.TagTVSTTL, uint32(record.TTL))
	}

	frameOut := tlv.EncodeTVSFrame(tlv.CmdVerifyResponse, frame.SessionID, resp)
	if _, err := conn.Write(frameOut); err != nil {
		log.Error("write verify response failed", "error", &tvserr.IO{Msg: "write frame", Err: err})
	}
}

// decodeDeviceName strips the 1-byte device-type prefix spec.md §6 names
// for the DEVICE_NAME element, then reuses the shared UTF-8/NUL string
// decoding by re-wrapping the remainder.
func decodeDeviceName(elements *tlv.Set) (string, error) {
	raw, err := elements.Bytes(tlv.TagTVSDeviceName)
	if err != nil {
		return "", err
	}
	if len(raw) < 2 {
		return "", fmt.Errorf("tvs: DEVICE_NAME too short")
	}
	// raw = device_type(1) || utf8_name || 0x00
	body := raw[1:]
	if body[len(body)-1] != 0x00 {
		return "", fmt.Errorf("tvs: DEVICE_NAME missing trailing NUL")
	}
	return string(body[:len(body)-1]), nil
}

// packRoles encodes the ordered role-name subset into the packed u8 code
// list, per spec.md §4.5's canonical role table.
func packRoles(roles []string) []byte {
	packed := make([]byte, 0, len(roles))
	for _, r := range tlv.RoleNames {
		for _, want := range roles {
			if want == r.Name {
				packed = append(packed, r.Code)
				break
			}
		}
	}
	return packed
}
