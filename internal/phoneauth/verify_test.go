// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package phoneauth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"math/big"
	"testing"
	"time"
)

// rawRSASign is the inverse of rawRSAVerify: a raw "private encrypt" over
// the trailing bytes of a full-width block, used only to build fixtures.
// The leading byte stays 0x00 so the block is smaller than N.
func rawRSASign(t *testing.T, priv *rsa.PrivateKey, digest []byte) []byte {
	t.Helper()
	k := (priv.N.BitLen() + 7) / 8
	padded := make([]byte, k)
	copy(padded[k-len(digest):], digest)
	for i := 1; i < k-len(digest); i++ {
		padded[i] = 0xFF
	}
	m := new(big.Int).SetBytes(padded)
	c := new(big.Int).Exp(m, priv.D, priv.N)
	return c.Bytes()
}

func issueTestCert(t *testing.T, caPriv *rsa.PrivateKey, caCert *x509.Certificate, leafPriv *rsa.PrivateKey, cn string) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Unix(1700000000, 0),
		NotAfter:     time.Unix(1800000000, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &leafPriv.PublicKey, caPriv)
	if err != nil {
		t.Fatalf("create leaf: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}
	return cert
}

func selfSignedCA(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate ca key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:                pkix.Name{CommonName: "Test CA"},
		NotBefore:              time.Unix(1700000000, 0),
		NotAfter:               time.Unix(1900000000, 0),
		IsCA:                   true,
		BasicConstraintsValid:  true,
		KeyUsage:               x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create ca: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse ca: %v", err)
	}
	return priv, cert
}

func TestVerifyPhoneAuthAcceptsValidChecklist(t *testing.T) {
	caPriv, caCert := selfSignedCA(t)
	leafPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate leaf key: %v", err)
	}
	leafCert := issueTestCert(t, caPriv, caCert, leafPriv, "CP-7937-SEP001122334455")

	ts := &TrustStore{Anchors: []*x509.Certificate{caCert}}

	deviceName := "CP-7937-SEP001122334455"
	authData := append([]byte(deviceName), 0x00)
	authData = append(authData, leafCert.Raw...)

	sha1Sum := sha1.Sum(authData)
	signedData := rawRSASign(t, leafPriv, sha1Sum[:])

	sha512Sum := sha512.Sum512(authData)
	sha2Sig := rawRSASign(t, leafPriv, sha512Sum[:])
	sha2SignedData := make([]byte, 0, 3+len(sha2Sig))
	sha2SignedData = append(sha2SignedData, 0x03) // HashSHA512
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(sha2Sig)))
	sha2SignedData = append(sha2SignedData, lenBuf[:]...)
	sha2SignedData = append(sha2SignedData, sha2Sig...)

	err = VerifyPhoneAuth(ts, Request{
		DeviceName:     deviceName,
		CertificateDER: leafCert.Raw,
		SignedData:     signedData,
		SHA2SignedData: sha2SignedData,
		SessionID:      1,
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestVerifyPhoneAuthRejectsUnknownIssuer(t *testing.T) {
	_, otherCA := selfSignedCA(t)
	caPriv, caCert := selfSignedCA(t)
	leafPriv, _ := rsa.GenerateKey(rand.Reader, 2048)
	leafCert := issueTestCert(t, caPriv, caCert, leafPriv, "CP-7937-SEP001122334455")

	ts := &TrustStore{Anchors: []*x509.Certificate{otherCA}}

	err := VerifyPhoneAuth(ts, Request{
		DeviceName:     "CP-7937-SEP001122334455",
		CertificateDER: leafCert.Raw,
		SignedData:     []byte{0x00},
		SHA2SignedData: []byte{0x03, 0x00, 0x00},
	})
	if err == nil {
		t.Fatal("expected chain verification failure")
	}
	af, ok := err.(*AuthFailure)
	if !ok || af.Stage != "chain" {
		t.Fatalf("expected chain-stage AuthFailure, got %v", err)
	}
}

func TestRawRSAVerifyRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := sha1.Sum([]byte("hello phone"))
	sig := rawRSASign(t, priv, digest[:])
	if !rawRSAVerify(&priv.PublicKey, sig, digest[:]) {
		t.Fatal("expected raw-RSA verification to succeed")
	}
	wrongDigest := sha1.Sum([]byte("tampered"))
	if rawRSAVerify(&priv.PublicKey, sig, wrongDigest[:]) {
		t.Fatal("expected raw-RSA verification to fail on tampered digest")
	}
}

func TestParseSUDISegments(t *testing.T) {
	var blob []byte
	blob = append(blob, 0x00, 0x00, 0x02, 0xAA, 0xBB) // cert segment
	blob = append(blob, 0x01, 0x00, 0x01, 0xCC)       // sha1 segment
	segments, err := parseSUDISegments(blob)
	if err != nil {
		t.Fatalf("parse segments: %v", err)
	}
	if string(segments[0x00]) != "\xAA\xBB" {
		t.Fatalf("unexpected cert segment: %x", segments[0x00])
	}
	if string(segments[0x01]) != "\xCC" {
		t.Fatalf("unexpected sha1 segment: %x", segments[0x01])
	}
}
