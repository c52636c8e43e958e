// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package phoneauth

import (
	"bytes"
	"crypto/rsa"
	"math/big"
)

// rawRSAVerify implements the phone's truncated-padding variant of PKCS#1
// v1.5 signature verification: "public decrypt" by modular exponentiation
// with (e, n), taking only the last len(expectedHash) bytes of the
// recovered block and comparing them bytewise to the expected digest. A
// conformant PKCS#1 v1.5 verifier (requiring the ASN.1 DigestInfo prefix)
// rejects this encoding, so this is done manually with math/big per the
// redesign note in spec.md §9.
func rawRSAVerify(pub *rsa.PublicKey, signed []byte, expectedHash []byte) bool {
	if pub == nil || pub.N == nil || len(signed) == 0 {
		return false
	}
	c := new(big.Int).SetBytes(signed)
	if c.Cmp(pub.N) >= 0 {
		return false
	}
	e := big.NewInt(int64(pub.E))
	m := new(big.Int).Exp(c, e, pub.N)

	k := (pub.N.BitLen() + 7) / 8
	padded := make([]byte, k)
	decoded := m.Bytes()
	if len(decoded) > k {
		return false
	}
	copy(padded[k-len(decoded):], decoded)

	if len(padded) < len(expectedHash) {
		return false
	}
	tail := padded[len(padded)-len(expectedHash):]
	return bytes.Equal(tail, expectedHash)
}
