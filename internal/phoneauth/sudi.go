// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package phoneauth

import (
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

const (
	sudiSegCert       byte = 0x00
	sudiSegSignedSHA1 byte = 0x01
	sudiSegSignedSHA512 byte = 0x03
)

// parseSUDISegments splits the SUDI_DATA blob into its three length-tagged
// segments, per spec.md §4.4: `tag(1) | len(u16) | payload`, repeated.
func parseSUDISegments(raw []byte) (map[byte][]byte, error) {
	segments := make(map[byte][]byte, 3)
	s := cryptobyte.String(raw)
	for !s.Empty() {
		var tag uint8
		if !s.ReadUint8(&tag) {
			return nil, fmt.Errorf("phoneauth: sudi data: truncated segment tag")
		}
		var payload cryptobyte.String
		if !s.ReadUint16LengthPrefixed(&payload) {
			return nil, fmt.Errorf("phoneauth: sudi data: malformed length-prefixed segment tag=%d", tag)
		}
		segments[tag] = []byte(payload)
	}
	return segments, nil
}

// VerifySUDI performs the optional Cisco SUDI attestation check, per
// spec.md §4.4. sessionID is encoded little-endian into the signed blob,
// matching "whatever the host uses, little-endian in practice" (spec.md §9).
// A nil error with ok=false means SUDI was absent and the caller should
// simply skip it; a non-nil error means SUDI was present but invalid.
func VerifySUDI(ts *TrustStore, sudiData []byte, sessionID uint32) (ok bool, err error) {
	if len(sudiData) == 0 {
		return false, nil
	}
	segments, err := parseSUDISegments(sudiData)
	if err != nil {
		return false, err
	}
	certDER, present := segments[sudiSegCert]
	if !present {
		return false, fmt.Errorf("phoneauth: sudi data missing certificate segment")
	}
	sudiCert, err := ParseDER(certDER)
	if err != nil {
		return false, fmt.Errorf("phoneauth: sudi certificate: %w", err)
	}

	if _, err := ts.VerifyChain(sudiCert); err != nil {
		return false, err
	}

	rsaPub, isRSA := sudiCert.PublicKey.(*rsa.PublicKey)
	if !isRSA {
		// Non-RSA SUDI keys are accepted on chain trust alone, per
		// spec.md §4.4 ("if the SUDI cert's key is not RSA, skip").
		return true, nil
	}

	authData := make([]byte, 4+len(certDER))
	binary.LittleEndian.PutUint32(authData[:4], sessionID)
	copy(authData[4:], certDER)

	sha1Signed, hasSHA1 := segments[sudiSegSignedSHA1]
	if !hasSHA1 {
		return false, fmt.Errorf("phoneauth: sudi data missing sha1 signature segment")
	}
	sha1Sum := sha1.Sum(authData)
	if !rawRSAVerify(rsaPub, sha1Signed, sha1Sum[:]) {
		return false, fmt.Errorf("phoneauth: sudi sha1 signature invalid")
	}

	sha512Signed, hasSHA512 := segments[sudiSegSignedSHA512]
	if !hasSHA512 {
		return false, fmt.Errorf("phoneauth: sudi data missing sha512 signature segment")
	}
	sha512Sum := sha512.Sum512(authData)
	if !rawRSAVerify(rsaPub, sha512Signed, sha512Sum[:]) {
		return false, fmt.Errorf("phoneauth: sudi sha512 signature invalid")
	}

	return true, nil
}
