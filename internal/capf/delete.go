// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package capf

import (
	"fmt"
	"os"

	"capf-tvs-gateway/internal/capferr"
	"capf-tvs-gateway/internal/tlv"
)

// doDelete implements the Delete transition (DELETE_WAIT), per spec.md
// §4.2.
func (s *session) doDelete() error {
	if err := s.send(tlv.CmdDeleteCertRequest, tlv.NewSet()); err != nil {
		return err
	}

	frame, err := s.recv(tlv.AllowedSet(tlv.TagReason))
	if err != nil {
		return err
	}
	if frame.Command != tlv.CmdDeleteCertResponse {
		return &capferr.Protocol{Msg: fmt.Sprintf("expected DELETE_CERT_RESPONSE, got command=%d", frame.Command)}
	}

	reason, err := frame.Elements.Uint8(tlv.TagReason)
	if err != nil {
		return &capferr.Protocol{Msg: "DELETE_CERT_RESPONSE missing REASON", Err: err}
	}

	if reason == tlv.ReasonUpdateCertificate {
		if err := s.engine.Store.ClearDeviceCertificate(s.device.DeviceName); err != nil {
			return &capferr.Store{Msg: "clear device certificate", Err: err}
		}
		path := s.pemFilePath(s.device.DeviceName)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn("failed to unlink certificate PEM file", "path", path, "error", err)
		}
	}

	return s.send(tlv.CmdEndSession, endSessionElements(tlv.ReasonUpdateCertificate))
}
