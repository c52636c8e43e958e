// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package phoneauth

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// parseCertificate accepts either raw DER or PEM-wrapped certificate bytes,
// since verify-certificate files are normally PEM but the wire CERTIFICATE
// element and SUDI segments always carry DER.
func parseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("phoneauth: parse certificate: %w", err)
	}
	return cert, nil
}

// ParseDER parses a raw DER-encoded certificate, as carried in the
// CERTIFICATE wire element.
func ParseDER(der []byte) (*x509.Certificate, error) {
	return x509.ParseCertificate(der)
}
