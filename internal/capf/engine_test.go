// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package capf

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"capf-tvs-gateway/internal/issuer"
	"capf-tvs-gateway/internal/phoneauth"
	"capf-tvs-gateway/internal/store"
	"capf-tvs-gateway/internal/store/memtest"
	"capf-tvs-gateway/internal/tlv"
)

func testIssuer(t *testing.T) *issuer.Issuer {
	t.Helper()
	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate ca key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CAPF CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create ca cert: %v", err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "ca.pem")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()
	pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: der})
	pem.Encode(f, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(caKey)})

	iss, err := issuer.Load(path, 30)
	if err != nil {
		t.Fatalf("load issuer: %v", err)
	}
	return iss
}

func newTestEngine(t *testing.T, s *memtest.CAPFStore) *Engine {
	t.Helper()
	iss := testIssuer(t)
	ts := &phoneauth.TrustStore{Anchors: []*x509.Certificate{iss.CACertificate()}}
	return &Engine{
		Store:           s,
		Issuer:          iss,
		TrustStore:      ts,
		CertificatesDir: t.TempDir(),
	}
}

// runSession spawns Engine.HandleConn on one end of a net.Pipe and returns
// the other end for the test to drive as the simulated phone.
func runSession(e *Engine) net.Conn {
	server, client := net.Pipe()
	go e.HandleConn(server)
	return client
}

func TestInstallRSAScenario(t *testing.T) {
	s := memtest.NewCAPFStore(&store.Device{
		DeviceName: "SEP000000000001",
		Operation:  store.OperationInstall,
		AuthMode:   store.AuthModeNoPassword,
		KeySize:    2048,
	})
	e := newTestEngine(t, s)
	conn := runSession(e)
	defer conn.Close()

	// AUTH_REQUEST
	frame, err := tlv.ReadCAPFFrame(conn, nil)
	if err != nil {
		t.Fatalf("read auth request: %v", err)
	}
	if frame.Command != tlv.CmdAuthRequest {
		t.Fatalf("command = %d, want AUTH_REQUEST", frame.Command)
	}

	resp := tlv.NewSet()
	resp.PutUint8(tlv.TagVersion, tlv.CAPFVersion)
	resp.PutString(tlv.TagDeviceName, "SEP000000000001")
	if _, err := conn.Write(tlv.EncodeCAPFFrame(tlv.CmdAuthResponse, frame.SessionID, resp)); err != nil {
		t.Fatalf("write auth response: %v", err)
	}

	// KEY_GEN_REQUEST
	frame, err = tlv.ReadCAPFFrame(conn, nil)
	if err != nil {
		t.Fatalf("read keygen request: %v", err)
	}
	if frame.Command != tlv.CmdKeyGenRequest {
		t.Fatalf("command = %d, want KEY_GEN_REQUEST", frame.Command)
	}
	if kt, _ := frame.Elements.Uint8(tlv.TagKeyType); kt != tlv.KeyTypeRSA {
		t.Fatalf("key type = %d, want RSA", kt)
	}

	devKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate device key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&devKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	keyResp := tlv.NewSet()
	keyResp.PutBytes(tlv.TagPublicKey, pubDER)
	if _, err := conn.Write(tlv.EncodeCAPFFrame(tlv.CmdKeyGenResponse, frame.SessionID, keyResp)); err != nil {
		t.Fatalf("write keygen response: %v", err)
	}

	// STORE_CERT_REQUEST
	frame, err = tlv.ReadCAPFFrame(conn, nil)
	if err != nil {
		t.Fatalf("read store cert request: %v", err)
	}
	if frame.Command != tlv.CmdStoreCertRequest {
		t.Fatalf("command = %d, want STORE_CERT_REQUEST", frame.Command)
	}
	storeResp := tlv.NewSet()
	storeResp.PutUint8(tlv.TagReason, tlv.ReasonNoAction)
	if _, err := conn.Write(tlv.EncodeCAPFFrame(tlv.CmdStoreCertResponse, frame.SessionID, storeResp)); err != nil {
		t.Fatalf("write store cert response: %v", err)
	}

	// END_SESSION
	frame, err = tlv.ReadCAPFFrame(conn, nil)
	if err != nil {
		t.Fatalf("read end session: %v", err)
	}
	if frame.Command != tlv.CmdEndSession {
		t.Fatalf("command = %d, want END_SESSION", frame.Command)
	}
	reason, _ := frame.Elements.Uint8(tlv.TagReason)
	if reason != tlv.ReasonUpdateCertificate {
		t.Fatalf("end reason = %d, want UPDATE_CERTIFICATE", reason)
	}

	dev, ok := s.Snapshot("SEP000000000001")
	if !ok {
		t.Fatal("device row missing")
	}
	if dev.Operation != store.OperationNone {
		t.Fatalf("operation = %q, want none", dev.Operation)
	}
	if dev.SerialHex == "" {
		t.Fatal("expected serial hex to be set")
	}
	if _, err := os.Stat(filepath.Join(e.CertificatesDir, "SEP000000000001.pem")); err != nil {
		t.Fatalf("expected PEM file to exist: %v", err)
	}
}

func TestUnknownDeviceScenario(t *testing.T) {
	s := memtest.NewCAPFStore()
	e := newTestEngine(t, s)
	conn := runSession(e)
	defer conn.Close()

	frame, err := tlv.ReadCAPFFrame(conn, nil)
	if err != nil {
		t.Fatalf("read auth request: %v", err)
	}

	resp := tlv.NewSet()
	resp.PutUint8(tlv.TagVersion, tlv.CAPFVersion)
	resp.PutString(tlv.TagDeviceName, "SEP000000000099")
	conn.Write(tlv.EncodeCAPFFrame(tlv.CmdAuthResponse, frame.SessionID, resp))

	frame, err = tlv.ReadCAPFFrame(conn, nil)
	if err != nil {
		t.Fatalf("read end session: %v", err)
	}
	if frame.Command != tlv.CmdEndSession {
		t.Fatalf("command = %d, want END_SESSION", frame.Command)
	}
	reason, _ := frame.Elements.Uint8(tlv.TagReason)
	if reason != tlv.ReasonUnknownDevice {
		t.Fatalf("reason = %d, want UNKNOWN_DEVICE(9)", reason)
	}
}

func TestBadPasswordScenario(t *testing.T) {
	s := memtest.NewCAPFStore(&store.Device{
		DeviceName: "SEP000000000002",
		Operation:  store.OperationNone,
		AuthMode:   store.AuthModePassword,
		Password:   "1234",
	})
	e := newTestEngine(t, s)
	conn := runSession(e)
	defer conn.Close()

	frame, err := tlv.ReadCAPFFrame(conn, nil)
	if err != nil {
		t.Fatalf("read auth request: %v", err)
	}

	resp := tlv.NewSet()
	resp.PutUint8(tlv.TagVersion, tlv.CAPFVersion)
	resp.PutString(tlv.TagDeviceName, "SEP000000000002")
	resp.PutString(tlv.TagPassword, "0000")
	conn.Write(tlv.EncodeCAPFFrame(tlv.CmdAuthResponse, frame.SessionID, resp))

	frame, err = tlv.ReadCAPFFrame(conn, nil)
	if err != nil {
		t.Fatalf("read end session: %v", err)
	}
	reason, _ := frame.Elements.Uint8(tlv.TagReason)
	if reason != tlv.ReasonInvalidElement {
		t.Fatalf("reason = %d, want INVALID_ELEMENT(7)", reason)
	}

	dev, _ := s.Snapshot("SEP000000000002")
	if dev.CertificatePEM != "" {
		t.Fatal("expected no DB mutation on bad password")
	}
}

func TestFetchRoundtripScenario(t *testing.T) {
	s := memtest.NewCAPFStore(&store.Device{
		DeviceName: "SEP000000000003",
		Operation:  store.OperationFetch,
		AuthMode:   store.AuthModeNoPassword,
	})
	e := newTestEngine(t, s)
	conn := runSession(e)
	defer conn.Close()

	frame, err := tlv.ReadCAPFFrame(conn, nil)
	if err != nil {
		t.Fatalf("read auth request: %v", err)
	}
	resp := tlv.NewSet()
	resp.PutUint8(tlv.TagVersion, tlv.CAPFVersion)
	resp.PutString(tlv.TagDeviceName, "SEP000000000003")
	conn.Write(tlv.EncodeCAPFFrame(tlv.CmdAuthResponse, frame.SessionID, resp))

	frame, err = tlv.ReadCAPFFrame(conn, nil)
	if err != nil {
		t.Fatalf("read fetch cert request: %v", err)
	}
	if frame.Command != tlv.CmdFetchCertRequest {
		t.Fatalf("command = %d, want FETCH_CERT_REQUEST", frame.Command)
	}

	leaf := testIssuer(t)
	issued, err := leaf.IssueLeaf("SEP000000000003", &mustRSAKey(t).PublicKey)
	if err != nil {
		t.Fatalf("issue test cert: %v", err)
	}

	fetchResp := tlv.NewSet()
	fetchResp.PutUint8(tlv.TagReason, tlv.ReasonUpdateCertificate)
	fetchResp.PutCert(tlv.TagCertificate, tlv.CertTypeLSC, issued.DER)
	conn.Write(tlv.EncodeCAPFFrame(tlv.CmdFetchCertResponse, frame.SessionID, fetchResp))

	frame, err = tlv.ReadCAPFFrame(conn, nil)
	if err != nil {
		t.Fatalf("read end session: %v", err)
	}
	reason, _ := frame.Elements.Uint8(tlv.TagReason)
	if reason != tlv.ReasonNoAction {
		t.Fatalf("reason = %d, want NO_ACTION", reason)
	}

	dev, _ := s.Snapshot("SEP000000000003")
	if dev.Operation != store.OperationNone {
		t.Fatalf("operation = %q, want none", dev.Operation)
	}
	if dev.SerialHex != issued.SerialHex {
		t.Fatalf("serial hex = %q, want %q", dev.SerialHex, issued.SerialHex)
	}
}

func mustRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return k
}
