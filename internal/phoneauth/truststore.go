// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

// Package phoneauth implements the CAPF certificate-mode phone
// authentication checks: X.509 chain verification against the configured
// trust anchors, the manual raw-RSA / ECDSA signature checks over the
// phone's auth data, and the optional SUDI attestation check, per
// spec.md §4.4.
package phoneauth

import (
	"bytes"
	"crypto/x509"
	"errors"
	"os"
)

// ErrUnknownIssuer is returned when no configured trust anchor's Subject
// matches the candidate certificate's Issuer and validates its signature.
var ErrUnknownIssuer = errors.New("unknown certificate issuer")

// TrustStore is the ordered list of anchors used for both the phone
// certificate chain check and the SUDI chain check: the CAPF issuer
// certificate first, then any explicit verify-certificate files, in
// configuration order (spec.md §4.4).
type TrustStore struct {
	Anchors []*x509.Certificate
}

// NewTrustStore builds a trust store from the issuer certificate and a list
// of additional verify-certificate PEM file paths, read in order.
func NewTrustStore(issuerCert *x509.Certificate, verifyCertPaths []string) (*TrustStore, error) {
	anchors := make([]*x509.Certificate, 0, 1+len(verifyCertPaths))
	anchors = append(anchors, issuerCert)
	for _, path := range verifyCertPaths {
		cert, err := loadPEMCertificate(path)
		if err != nil {
			return nil, err
		}
		anchors = append(anchors, cert)
	}
	return &TrustStore{Anchors: anchors}, nil
}

func loadPEMCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseCertificate(data)
}

// VerifyChain returns the first anchor whose Subject equals candidate's
// Issuer and whose public key validates candidate's signature over its
// TBSCertificate, per spec.md §4.4. No revocation or name-constraint check
// is performed (spec.md Non-goals).
func (ts *TrustStore) VerifyChain(candidate *x509.Certificate) (*x509.Certificate, error) {
	for _, anchor := range ts.Anchors {
		if !bytes.Equal(candidate.RawIssuer, anchor.RawSubject) {
			continue
		}
		if err := candidate.CheckSignatureFrom(anchor); err != nil {
			continue
		}
		return anchor, nil
	}
	return nil, ErrUnknownIssuer
}
