// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

// Package tlv implements the shared binary framing and element codec used
// by both the CAPF enrollment protocol and the TVS verification protocol.
//
// Both protocols share the same element encoding (tag/length/value, numeric
// payloads big-endian, string payloads NUL-terminated UTF-8) but differ in
// their fixed frame header layout, so the header encode/decode lives in
// separate CAPF/TVS files while the element machinery is shared.
package tlv

// Frame protocol identifiers, carried as the first header byte.
const (
	ProtocolCAPF = 0x55 // 85
	ProtocolTVS  = 0x57 // 87
)

// TVS wire version.
const TVSVersion = 1

// CAPFVersion is the AUTH_REQUEST/AUTH_RESPONSE VERSION element value both
// sides must agree on.
const CAPFVersion = 3

// CAPF command codes.
const (
	CmdAuthRequest        byte = 1
	CmdAuthResponse       byte = 2
	CmdKeyGenRequest       byte = 3
	CmdKeyGenResponse      byte = 4
	CmdRequestInProgress   byte = 5
	CmdStoreCertRequest    byte = 6
	CmdStoreCertResponse   byte = 7
	CmdFetchCertRequest    byte = 8
	CmdFetchCertResponse   byte = 9
	CmdDeleteCertRequest   byte = 10
	CmdDeleteCertResponse  byte = 11
	CmdEndSession          byte = 12
)

// TVS command codes.
const (
	CmdVerifyRequest  byte = 1
	CmdVerifyResponse byte = 2
)

// CAPF element tags.
const (
	TagVersion        byte = 1
	TagAuthType       byte = 2
	TagDeviceName     byte = 3
	TagPassword       byte = 4
	TagCertificate    byte = 5
	TagSignedData     byte = 6
	TagSHA2SignedData byte = 7
	TagSUDIData       byte = 8
	TagKeyType        byte = 9
	TagKeySize        byte = 10
	TagCurve          byte = 11
	TagPublicKey      byte = 12
	TagCertType       byte = 13
	TagReason         byte = 14
)

// TVS element tags, per spec.md §6.
const (
	TagTVSDeviceName  byte = 1
	TagTVSCertificate byte = 2
	TagTVSStatus      byte = 7
	TagTVSRoles       byte = 8
	TagTVSTTL         byte = 9
)

// END_SESSION / response REASON values, shared vocabulary across CAPF
// responses.
const (
	ReasonNoAction          byte = 0
	ReasonUpdateCertificate byte = 1
	ReasonInvalidElement    byte = 7
	ReasonUnknownDevice     byte = 9
)

// AUTH_TYPE values.
const (
	AuthTypeNone     byte = 0
	AuthTypePassword byte = 1
)

// CERTIFICATE_TYPE values.
const (
	CertTypeLSC byte = 1
	CertTypeMIC byte = 2
)

// KEY_TYPE values.
const (
	KeyTypeRSA byte = 0
	KeyTypeEC  byte = 1
)

// CURVE values.
const (
	CurveSecp256r1 byte = 0
	CurveSecp384r1 byte = 1
	CurveSecp521r1 byte = 2
)

// HASH values, used inside SHA2_SIGNED_DATA and SUDI_DATA segments.
const (
	HashSHA1   byte = 1
	HashSHA256 byte = 2
	HashSHA512 byte = 3
)

// TVS STATUS values.
const (
	TVSStatusInvalid byte = 0
	TVSStatusValid   byte = 1
)

// TVS role codes, per spec.md §4.5.
const (
	RoleSAST       byte = 0
	RoleCCM        byte = 1
	RoleCCMTFTP    byte = 2
	RoleTFTP       byte = 3
	RoleCAPF       byte = 4
	RoleAppServer  byte = 7
	RoleTVS        byte = 21
)

// RoleNames maps the canonical role string (as stored comma-joined in the
// TVS store) to its packed wire code, in the canonical ordering spec.md §3
// mandates for the ordered subset.
var RoleNames = []struct {
	Name string
	Code byte
}{
	{"SAST", RoleSAST},
	{"CCM", RoleCCM},
	{"CCM+TFTP", RoleCCMTFTP},
	{"TFTP", RoleTFTP},
	{"CAPF", RoleCAPF},
	{"APP-SERVER", RoleAppServer},
	{"TVS", RoleTVS},
}
