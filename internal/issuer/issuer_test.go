// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package issuer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestCA(t *testing.T) string {
	t.Helper()
	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate ca key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "Test CAPF CA",
			Organization: []string{"Acme Corp"},
			Country:      []string{"US"},
		},
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

	if err := pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		t.Fatalf("encode cert: %v", err)
	}
	keyDER := x509.MarshalPKCS1PrivateKey(caKey)
	if err := pem.Encode(f, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: keyDER}); err != nil {
		t.Fatalf("encode key: %v", err)
	}
	return path
}

func TestIssueLeafValidityWindow(t *testing.T) {
	caPath := writeTestCA(t)
	iss, err := Load(caPath, 30)
	if err != nil {
		t.Fatalf("load issuer: %v", err)
	}

	devKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate device key: %v", err)
	}

	leaf, err := iss.IssueLeaf("SEP000000000001", &devKey.PublicKey)
	if err != nil {
		t.Fatalf("issue leaf: %v", err)
	}

	cert, err := x509.ParseCertificate(leaf.DER)
	if err != nil {
		t.Fatalf("parse issued cert: %v", err)
	}
	if cert.Subject.CommonName != "SEP000000000001" {
		t.Fatalf("cn = %q", cert.Subject.CommonName)
	}
	if cert.IsCA {
		t.Fatalf("leaf must not be a CA")
	}
	gotDays := cert.NotAfter.Sub(cert.NotBefore)
	wantDays := 30 * 24 * time.Hour
	if diff := gotDays - wantDays; diff > time.Second || diff < -time.Second {
		t.Fatalf("validity window = %v, want %v", gotDays, wantDays)
	}
	if len(cert.URIs) != 1 || cert.URIs[0].Opaque != "SEP000000000001" {
		t.Fatalf("SAN URI = %+v", cert.URIs)
	}
	if cert.Issuer.CommonName != "Test CAPF CA" {
		t.Fatalf("issuer DN should carry the CA's Issuer (self-signed): got %q", cert.Issuer.CommonName)
	}
	if len(cert.Subject.Organization) != 1 || cert.Subject.Organization[0] != "Acme Corp" {
		t.Fatalf("expected Organization copied from issuer Subject, got %v", cert.Subject.Organization)
	}
}

func TestLoadRejectsOutOfRangeValidity(t *testing.T) {
	caPath := writeTestCA(t)
	if _, err := Load(caPath, 0); err == nil {
		t.Fatalf("expected error for validity 0")
	}
	if _, err := Load(caPath, 3561); err == nil {
		t.Fatalf("expected error for validity 3561")
	}
}
