// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package phoneauth

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"capf-tvs-gateway/internal/tlv"
)

// sha2Signed is the parsed form of the SHA2_SIGNED_DATA element:
// hash_algo(u8) | len(u16) | signature, per spec.md §4.4.
type sha2Signed struct {
	HashAlgo  byte
	Signature []byte
}

func parseSHA2Signed(raw []byte) (*sha2Signed, error) {
	s := cryptobyte.String(raw)
	var algo uint8
	if !s.ReadUint8(&algo) {
		return nil, fmt.Errorf("phoneauth: sha2 signed data: missing hash-algorithm byte")
	}
	var sig cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&sig) {
		return nil, fmt.Errorf("phoneauth: sha2 signed data: malformed length-prefixed signature")
	}
	if algo != tlv.HashSHA512 {
		return nil, fmt.Errorf("invalid sha2 hash-algorithm")
	}
	return &sha2Signed{HashAlgo: algo, Signature: []byte(sig)}, nil
}
