// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package capf

import (
	"crypto"
	"crypto/x509"
	"fmt"

	"capf-tvs-gateway/internal/capferr"
	"capf-tvs-gateway/internal/tlv"
)

var curveCodes = map[string]byte{
	"secp256r1": tlv.CurveSecp256r1,
	"secp384r1": tlv.CurveSecp384r1,
	"secp521r1": tlv.CurveSecp521r1,
}

// doInstall implements the Install transition (KEYGEN_WAIT -> STORE_WAIT),
// per spec.md §4.2.
func (s *session) doInstall() error {
	req := tlv.NewSet()
	if s.device.Curve != "" {
		code, ok := curveCodes[s.device.Curve]
		if !ok {
			return &capferr.Protocol{Msg: fmt.Sprintf("device %q has unsupported curve %q", s.device.DeviceName, s.device.Curve)}
		}
		req.PutUint8(tlv.TagKeyType, tlv.KeyTypeEC)
		req.PutUint8(tlv.TagCurve, code)
	} else {
		req.PutUint8(tlv.TagKeyType, tlv.KeyTypeRSA)
		req.PutUint16(tlv.TagKeySize, uint16(s.device.KeySize))
	}
	if err := s.send(tlv.CmdKeyGenRequest, req); err != nil {
		return err
	}

	pub, err := s.awaitKeyGenResponse()
	if err != nil {
		return err
	}

	leaf, err := s.engine.Issuer.IssueLeaf(s.device.DeviceName, pub)
	if err != nil {
		return &capferr.Protocol{Msg: "issue leaf certificate", Err: err}
	}

	if err := s.engine.Store.UpdateDeviceIssued(s.device.DeviceName, leaf.SerialHex, string(leaf.PEM), leaf.NotBefore, leaf.NotAfter); err != nil {
		return &capferr.Store{Msg: "persist issued certificate", Err: err}
	}
	if err := writeFileAtomic(s.pemFilePath(s.device.DeviceName), leaf.PEM); err != nil {
		return &capferr.Store{Msg: "write certificate PEM file", Err: err}
	}

	storeReq := tlv.NewSet()
	storeReq.PutCert(tlv.TagCertificate, tlv.CertTypeLSC, leaf.DER)
	if err := s.send(tlv.CmdStoreCertRequest, storeReq); err != nil {
		return err
	}

	// Regardless of the STORE_CERT_RESPONSE's REASON, the session finishes
	// with UPDATE_CERTIFICATE, per spec.md §4.2.
	if _, err := s.recv(tlv.AllowedSet(tlv.TagReason)); err != nil {
		return err
	}

	return s.send(tlv.CmdEndSession, endSessionElements(tlv.ReasonUpdateCertificate))
}

// awaitKeyGenResponse accepts an optional REQUEST_IN_PROGRESS heartbeat
// before the real KEY_GEN_RESPONSE, for either key type — the source is
// inconsistent about whether it's expected for EC, so spec.md §9 accepts
// it for both.
func (s *session) awaitKeyGenResponse() (crypto.PublicKey, error) {
	allowed := tlv.AllowedSet(tlv.TagPublicKey, tlv.TagKeyType, tlv.TagCurve, tlv.TagKeySize)
	frame, err := s.recv(allowed)
	if err != nil {
		return nil, err
	}
	if frame.Command == tlv.CmdRequestInProgress {
		frame, err = s.recv(allowed)
		if err != nil {
			return nil, err
		}
	}
	if frame.Command != tlv.CmdKeyGenResponse {
		return nil, &capferr.Protocol{Msg: fmt.Sprintf("expected KEY_GEN_RESPONSE, got command=%d", frame.Command)}
	}

	pubDER, err := frame.Elements.Bytes(tlv.TagPublicKey)
	if err != nil {
		s.log.Warn("KEY_GEN_RESPONSE missing PUBLIC_KEY", "device_name", s.device.DeviceName)
		return nil, &capferr.Protocol{Msg: "KEY_GEN_RESPONSE missing PUBLIC_KEY", Err: err}
	}
	pub, err := x509.ParsePKIXPublicKey(pubDER)
	if err != nil {
		return nil, &capferr.Protocol{Msg: "malformed PUBLIC_KEY", Err: err}
	}
	return pub, nil
}
