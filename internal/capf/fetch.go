// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package capf

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"

	"capf-tvs-gateway/internal/capferr"
	"capf-tvs-gateway/internal/tlv"
)

// doFetch implements the Fetch transition (FETCH_WAIT), per spec.md §4.2.
func (s *session) doFetch() error {
	if err := s.send(tlv.CmdFetchCertRequest, tlv.NewSet()); err != nil {
		return err
	}

	frame, err := s.recv(tlv.AllowedSet(tlv.TagReason, tlv.TagCertificate))
	if err != nil {
		return err
	}
	if frame.Command != tlv.CmdFetchCertResponse {
		return &capferr.Protocol{Msg: fmt.Sprintf("expected FETCH_CERT_RESPONSE, got command=%d", frame.Command)}
	}

	reason, err := frame.Elements.Uint8(tlv.TagReason)
	if err != nil {
		return &capferr.Protocol{Msg: "FETCH_CERT_RESPONSE missing REASON", Err: err}
	}

	if reason == tlv.ReasonUpdateCertificate && frame.Elements.Has(tlv.TagCertificate) {
		der, _, err := frame.Elements.Cert(tlv.TagCertificate)
		if err != nil {
			return &capferr.Protocol{Msg: "malformed CERTIFICATE in FETCH_CERT_RESPONSE", Err: err}
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return &capferr.Protocol{Msg: "undecodable fetched certificate", Err: err}
		}

		pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
		serialHex := fmt.Sprintf("%x", trimLeadingZeroByte(cert.SerialNumber))

		if err := s.engine.Store.UpdateDeviceIssued(s.device.DeviceName, serialHex, string(pemBytes), cert.NotBefore, cert.NotAfter); err != nil {
			return &capferr.Store{Msg: "persist fetched certificate", Err: err}
		}
		if err := writeFileAtomic(s.pemFilePath(s.device.DeviceName), pemBytes); err != nil {
			return &capferr.Store{Msg: "write certificate PEM file", Err: err}
		}
	}

	return s.send(tlv.CmdEndSession, endSessionElements(tlv.ReasonNoAction))
}

// trimLeadingZeroByte renders a serial number as the standard big-endian
// minimum-width byte slice spec.md §4.7 requires.
func trimLeadingZeroByte(n *big.Int) []byte {
	b := n.Bytes()
	for len(b) > 1 && b[0] == 0 {
		b = b[1:]
	}
	return b
}
