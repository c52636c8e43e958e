// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

// Package issuer builds and signs LSC leaf certificates off the operator's
// CAPF issuing CA, per spec.md §4.3.
package issuer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"time"

	"capf-tvs-gateway/internal/issuer/external"
)

// serialBits is the width of the random serial number spec.md §4.3 mandates:
// 128 cryptographically-random bits, treated as a positive big-endian
// integer.
const serialBits = 128

// ipsecEndSystemOID is the 1.3.6.1.5.5.7.3.5 "IPsec End System" extended
// key usage OID spec.md §4.3 requires alongside serverAuth/clientAuth.
var ipsecEndSystemOID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 5}

// RFC 4519 attribute OIDs used to copy O/OU/L/ST/C verbatim from the
// issuer's Subject.
var (
	oidCountry            = asn1.ObjectIdentifier{2, 5, 4, 6}
	oidOrganization       = asn1.ObjectIdentifier{2, 5, 4, 10}
	oidOrganizationalUnit = asn1.ObjectIdentifier{2, 5, 4, 11}
	oidLocality           = asn1.ObjectIdentifier{2, 5, 4, 7}
	oidStateOrProvince    = asn1.ObjectIdentifier{2, 5, 4, 8}
)

func readFile(path string) ([]byte, error) { return os.ReadFile(path) }

func deviceNameURI(deviceName string) (*url.URL, error) {
	// SubjectAltName{URI=device_name}: the device name itself is the URI
	// value, matching the deployed CAPF behavior of using the bare name
	// rather than a structured URN.
	return &url.URL{Opaque: deviceName}, nil
}

// Issuer holds the operator's immutable CA certificate and private key,
// loaded once at process startup and shared read-only across sessions
// (spec.md §3 "Issuer material").
type Issuer struct {
	caCert       *x509.Certificate
	caKey        crypto.Signer
	validityDays int
}

// Load reads the concatenated CA certificate + private key PEM file and the
// configured validity window (in days, spec.md §6 bounds this 1–3560).
func Load(caCertAndKeyPath string, validityDays int) (*Issuer, error) {
	data, err := readFile(caCertAndKeyPath)
	if err != nil {
		return nil, fmt.Errorf("issuer: read CA file: %w", err)
	}

	var cert *x509.Certificate
	var key crypto.Signer

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("issuer: parse CA certificate: %w", err)
			}
			cert = c
		case "RSA PRIVATE KEY":
			k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("issuer: parse CA RSA key: %w", err)
			}
			key = k
		case "EC PRIVATE KEY":
			k, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("issuer: parse CA EC key: %w", err)
			}
			key = k
		case "PRIVATE KEY":
			k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("issuer: parse CA PKCS8 key: %w", err)
			}
			signer, ok := k.(crypto.Signer)
			if !ok {
				return nil, fmt.Errorf("issuer: CA private key does not implement crypto.Signer")
			}
			key = signer
		}
	}
	if cert == nil {
		return nil, fmt.Errorf("issuer: no CERTIFICATE block found in %s", caCertAndKeyPath)
	}
	if key == nil {
		return nil, fmt.Errorf("issuer: no private key block found in %s", caCertAndKeyPath)
	}
	if validityDays < 1 || validityDays > 3560 {
		return nil, fmt.Errorf("issuer: validity days %d out of range [1,3560]", validityDays)
	}

	return &Issuer{caCert: cert, caKey: key, validityDays: validityDays}, nil
}

// LoadExternal reads a CA certificate-only PEM file (no private key — the
// key stays in an external HSM) and returns an Issuer whose signing
// operations are delegated to commandTemplate via external.Signer. This is
// an alternative to Load for deployments where the CA key must never touch
// the capfd process's memory.
func LoadExternal(caCertPath, commandTemplate string, commandTimeout time.Duration, validityDays int) (*Issuer, error) {
	data, err := readFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("issuer: read CA certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("issuer: no CERTIFICATE block found in %s", caCertPath)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("issuer: parse CA certificate: %w", err)
	}
	if validityDays < 1 || validityDays > 3560 {
		return nil, fmt.Errorf("issuer: validity days %d out of range [1,3560]", validityDays)
	}

	executor := external.NewCommandExecutor(commandTemplate, commandTimeout)
	signer := external.NewSigner(cert.PublicKey, executor, cert.Subject.CommonName)

	return &Issuer{caCert: cert, caKey: signer, validityDays: validityDays}, nil
}

// IssuedLeaf is the result of IssueLeaf: the DER and PEM encodings plus the
// metadata the CAPF store persists alongside them.
type IssuedLeaf struct {
	DER          []byte
	PEM          []byte
	SerialHex    string
	NotBefore    time.Time
	NotAfter     time.Time
}

// IssueLeaf signs a new X.509 v3 leaf certificate for deviceName, over the
// phone's public key, per the field and extension layout in spec.md §4.3.
// The extensions are written in crypto/x509's own order (key usage,
// extended key usage, basic constraints, authority key identifier when
// the CA has a subject key identifier, then subject alternative name);
// the order is not configurable here.
func (iss *Issuer) IssueLeaf(deviceName string, pub crypto.PublicKey) (*IssuedLeaf, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), serialBits))
	if err != nil {
		return nil, fmt.Errorf("issuer: generate serial: %w", err)
	}

	notBefore := time.Now().UTC()
	notAfter := notBefore.AddDate(0, 0, iss.validityDays)

	subject := pkix.Name{CommonName: deviceName}
	// Copy O/OU/L/ST/C verbatim, in source order, from the issuer's
	// Subject, per spec.md §4.3 and the source-order-preservation note in
	// spec.md §9.
	for _, atv := range iss.caCert.Subject.Names {
		switch {
		case atv.Type.Equal(oidOrganization):
			subject.Organization = append(subject.Organization, atv.Value.(string))
		case atv.Type.Equal(oidOrganizationalUnit):
			subject.OrganizationalUnit = append(subject.OrganizationalUnit, atv.Value.(string))
		case atv.Type.Equal(oidLocality):
			subject.Locality = append(subject.Locality, atv.Value.(string))
		case atv.Type.Equal(oidStateOrProvince):
			subject.Province = append(subject.Province, atv.Value.(string))
		case atv.Type.Equal(oidCountry):
			subject.Country = append(subject.Country, atv.Value.(string))
		}
	}

	uri, err := deviceNameURI(deviceName)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		// The leaf's Issuer DN is the issuer certificate's *Issuer*, not
		// its Subject — preserved deliberately per the open question in
		// spec.md §9; this is the deployed CAPF behavior even when the
		// issuer is self-signed.
		Issuer:                iss.caCert.Issuer,
		Subject:               subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
		IsCA:                  false,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		UnknownExtKeyUsage:    []asn1.ObjectIdentifier{ipsecEndSystemOID},
		URIs:                  []*url.URL{uri},
		SignatureAlgorithm:    signatureAlgorithmFor(iss.caKey),
	}

	// CreateCertificate takes the leaf's Issuer DN from the parent's
	// Subject and ignores template.Issuer, so the parent handed to it
	// carries the CA's Issuer as its raw Subject.
	parent := *iss.caCert
	parent.RawSubject = iss.caCert.RawIssuer

	der, err := x509.CreateCertificate(rand.Reader, template, &parent, pub, iss.caKey)
	if err != nil {
		return nil, fmt.Errorf("issuer: create certificate: %w", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	return &IssuedLeaf{
		DER:       der,
		PEM:       pemBytes,
		SerialHex: serialHex(serial),
		NotBefore: notBefore,
		NotAfter:  notAfter,
	}, nil
}

func serialHex(s *big.Int) string {
	return fmt.Sprintf("%x", s.Bytes())
}

// signatureAlgorithmFor switches on the signer's public key rather than its
// concrete type, so an external.Signer (HSM-backed, holding no private key
// material in-process) picks the right algorithm the same as a local key.
func signatureAlgorithmFor(key crypto.Signer) x509.SignatureAlgorithm {
	switch key.Public().(type) {
	case *rsa.PublicKey:
		return x509.SHA256WithRSA
	case *ecdsa.PublicKey:
		return x509.ECDSAWithSHA256
	default:
		return x509.UnknownSignatureAlgorithm
	}
}

// CACertificate returns the loaded issuer certificate, used as the first
// trust anchor by internal/phoneauth.
func (iss *Issuer) CACertificate() *x509.Certificate { return iss.caCert }
