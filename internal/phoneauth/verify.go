// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package phoneauth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha512"
	"crypto/x509"
	"fmt"
)

// AuthFailure identifies which stage of the certificate-mode authentication
// checklist rejected the phone, so the CAPF session engine can log and map
// it to the right END_SESSION reason.
type AuthFailure struct {
	Stage string
	Err   error
}

func (f *AuthFailure) Error() string {
	return fmt.Sprintf("phoneauth: %s: %v", f.Stage, f.Err)
}

func (f *AuthFailure) Unwrap() error { return f.Err }

func fail(stage string, err error) *AuthFailure {
	return &AuthFailure{Stage: stage, Err: err}
}

// Request bundles the wire elements the CAPF session engine collects for a
// certificate-mode AUTH_REQUEST, per spec.md §4.4.
type Request struct {
	DeviceName     string
	CertificateDER []byte
	SignedData     []byte // SIGNED_DATA: SHA-1 digest signature
	SHA2SignedData []byte // SHA2_SIGNED_DATA: hash_algo | len | signature
	SUDIData       []byte // optional
	SessionID      uint32
}

// VerifyPhoneAuth runs the full certificate-mode authentication checklist
// from spec.md §4.4:
//
//  1. the phone certificate chains to a configured trust anchor;
//  2. auth_data = device_name (UTF-8) || 0x00 || phone_cert_DER is verified
//     against SIGNED_DATA using SHA-1;
//  3. the same auth_data is verified against SHA2_SIGNED_DATA using SHA-512;
//  4. if SUDI_DATA is present, the SUDI attestation chain and signatures
//     are checked as well.
//
// RSA phone keys use the manual raw-RSA "public decrypt" comparison
// (rawRSAVerify); EC phone keys use standard ecdsa.VerifyASN1, since the
// phone's EC signatures are conventionally DER-encoded (spec.md §9).
func VerifyPhoneAuth(ts *TrustStore, req Request) error {
	cert, err := ParseDER(req.CertificateDER)
	if err != nil {
		return fail("parse-certificate", err)
	}

	if _, err := ts.VerifyChain(cert); err != nil {
		return fail("chain", err)
	}

	authData := make([]byte, 0, len(req.DeviceName)+1+len(req.CertificateDER))
	authData = append(authData, req.DeviceName...)
	authData = append(authData, 0x00)
	authData = append(authData, req.CertificateDER...)

	sha1Sum := sha1.Sum(authData)
	if err := verifySignature(cert, req.SignedData, sha1Sum[:]); err != nil {
		return fail("signed-data", err)
	}

	sha2, err := parseSHA2Signed(req.SHA2SignedData)
	if err != nil {
		return fail("sha2-signed-data", err)
	}
	sha512Sum := sha512.Sum512(authData)
	if err := verifySignature(cert, sha2.Signature, sha512Sum[:]); err != nil {
		return fail("sha2-signed-data", err)
	}

	if len(req.SUDIData) > 0 {
		if ok, err := VerifySUDI(ts, req.SUDIData, req.SessionID); err != nil {
			return fail("sudi", err)
		} else if !ok {
			return fail("sudi", fmt.Errorf("sudi attestation absent despite SUDI_DATA element"))
		}
	}

	return nil
}

// verifySignature dispatches to the raw-RSA "public decrypt" comparison or
// to standard ASN.1 ECDSA verification, depending on the phone certificate's
// key type. RSA never uses crypto/rsa's own PKCS#1 v1.5 verifier: the
// phone's encoding lacks the DigestInfo prefix a conformant verifier
// requires (spec.md §4.4, §9).
func verifySignature(cert *x509.Certificate, signature, digest []byte) error {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		if !rawRSAVerify(pub, signature, digest) {
			return fmt.Errorf("raw-rsa signature mismatch")
		}
		return nil
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pub, digest, signature) {
			return fmt.Errorf("ecdsa signature mismatch")
		}
		return nil
	default:
		return fmt.Errorf("unsupported phone public key type %T", pub)
	}
}
