// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

// Package capf implements the CAPF connection-lifetime protocol engine:
// authenticate, dispatch on the device's scheduled operation, issue or
// fetch or delete a certificate, end the session. Per spec.md §4.2.
package capf

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"capf-tvs-gateway/internal/capferr"
	"capf-tvs-gateway/internal/issuer"
	"capf-tvs-gateway/internal/phoneauth"
	"capf-tvs-gateway/internal/store"
	"capf-tvs-gateway/internal/tlv"
)

// sessionCounter is the process-wide, atomically-incremented session-id
// source; spec.md §5 requires it be incremented atomically, and it wraps
// at 2^32 (spec.md §8) via ordinary uint32 overflow.
var sessionCounter atomic.Uint32

func nextSessionID() uint32 { return sessionCounter.Add(1) }

// Engine holds the shared, read-only, process-wide dependencies every
// session needs: the device store, the certificate issuer, and the phone
// trust store (spec.md §3 "Issuer material").
type Engine struct {
	Store           store.CAPFStore
	Issuer          *issuer.Issuer
	TrustStore      *phoneauth.TrustStore
	CertificatesDir string
}

// HandleConn runs one CAPF session to completion over conn. It never
// returns an error to the caller: every failure is logged and mapped to a
// best-effort END_SESSION frame or a silent close, per spec.md §7.
func (e *Engine) HandleConn(conn net.Conn) {
	sessionID := nextSessionID()
	log := slog.With("peer", conn.RemoteAddr().String(), "session_id", sessionID)

	sess := &session{conn: conn, id: sessionID, log: log, engine: e}
	sess.run()
}

type session struct {
	conn   net.Conn
	id     uint32
	log    *slog.Logger
	engine *Engine
	device *store.Device
}

func (s *session) send(command byte, elements *tlv.Set) error {
	frame := tlv.EncodeCAPFFrame(command, s.id, elements)
	if _, err := s.conn.Write(frame); err != nil {
		return &capferr.IO{Msg: "write frame", Err: err}
	}
	return nil
}

func (s *session) recv(allowed map[byte]bool) (*tlv.CAPFFrame, error) {
	frame, err := tlv.ReadCAPFFrame(s.conn, allowed)
	if err != nil {
		if err == io.EOF {
			return nil, &capferr.IO{Msg: "peer closed connection", Err: err}
		}
		if pe, ok := err.(*tlv.ProtocolError); ok {
			return nil, &capferr.Protocol{Msg: pe.Error(), Err: pe}
		}
		return nil, &capferr.IO{Msg: "read frame", Err: err}
	}
	if frame.SessionID != s.id {
		return nil, &capferr.Protocol{Msg: fmt.Sprintf("session id mismatch: got %d want %d", frame.SessionID, s.id)}
	}
	return frame, nil
}

// run implements the full state machine from spec.md §4.2. Any error ends
// the session through terminate, which sends a best-effort
// END_SESSION{INVALID_ELEMENT} except for IO and store failures.
func (s *session) run() {
	ended, err := s.authenticate()
	if err != nil {
		s.terminate(err)
		return
	}
	if ended {
		return
	}

	switch s.device.Operation {
	case store.OperationInstall:
		err = s.doInstall()
	case store.OperationFetch:
		err = s.doFetch()
	case store.OperationDelete:
		err = s.doDelete()
	default:
		err = s.send(tlv.CmdEndSession, endSessionElements(tlv.ReasonNoAction))
	}
	if err != nil {
		s.terminate(err)
		return
	}

	if err := s.engine.Store.RecordSession(s.device.DeviceName, s.id, time.Now()); err != nil {
		s.log.Warn("failed to record session bookkeeping", "error", err)
	}
}

// terminate logs the failure and attempts one best-effort END_SESSION
// frame carrying the failure's REASON, per spec.md §7 and §9. IO and store
// errors skip the END_SESSION attempt: the peer socket is unusable, or the
// failure isn't the peer's to know about.
func (s *session) terminate(err error) {
	s.log.Error("session terminated", "error", err)

	switch err.(type) {
	case *capferr.IO, *capferr.Store:
		return
	default:
		_ = s.send(tlv.CmdEndSession, endSessionElements(tlv.ReasonInvalidElement))
	}
}

func endSessionElements(reason byte) *tlv.Set {
	el := tlv.NewSet()
	el.PutUint8(tlv.TagReason, reason)
	return el
}

// authenticate implements spec.md §4.2 steps 1-2: HELLO, AUTH_REQUEST /
// AUTH_RESPONSE, device lookup, and credential validation. The bool return
// reports whether the session has already been ended (unknown device or
// bad credentials): a documented protocol outcome, not a capferr failure,
// so run() must not call terminate() again on top of it.
func (s *session) authenticate() (ended bool, err error) {
	hello := tlv.NewSet()
	hello.PutUint8(tlv.TagVersion, tlv.CAPFVersion)
	hello.PutUint8(tlv.TagAuthType, tlv.AuthTypeNone)
	if err := s.send(tlv.CmdAuthRequest, hello); err != nil {
		return false, err
	}

	allowed := tlv.AllowedSet(
		tlv.TagVersion, tlv.TagDeviceName, tlv.TagPassword,
		tlv.TagCertificate, tlv.TagSignedData, tlv.TagSHA2SignedData, tlv.TagSUDIData,
	)
	frame, err := s.recv(allowed)
	if err != nil {
		return false, err
	}
	if frame.Command != tlv.CmdAuthResponse {
		return false, &capferr.Protocol{Msg: fmt.Sprintf("expected AUTH_RESPONSE, got command=%d", frame.Command)}
	}

	version, err := frame.Elements.Uint8(tlv.TagVersion)
	if err != nil {
		return false, &capferr.Protocol{Msg: "missing VERSION", Err: err}
	}
	if version != tlv.CAPFVersion {
		return true, s.send(tlv.CmdEndSession, endSessionElements(tlv.ReasonInvalidElement))
	}

	deviceName, err := frame.Elements.String(tlv.TagDeviceName)
	if err != nil {
		return false, &capferr.Protocol{Msg: "missing DEVICE_NAME", Err: err}
	}

	device, err := s.engine.Store.GetDevice(deviceName)
	if err != nil {
		return false, &capferr.Store{Msg: "lookup device", Err: err}
	}
	if device == nil {
		authErr := &capferr.Auth{Msg: fmt.Sprintf("unknown device %q", deviceName)}
		s.log.Warn("session denied", "error", authErr)
		return true, s.send(tlv.CmdEndSession, endSessionElements(tlv.ReasonUnknownDevice))
	}
	s.device = device

	if err := s.checkCredentials(device, frame.Elements); err != nil {
		authErr := &capferr.Auth{Msg: fmt.Sprintf("device %q", deviceName), Err: err}
		s.log.Warn("session denied", "error", authErr)
		return true, s.send(tlv.CmdEndSession, endSessionElements(tlv.ReasonInvalidElement))
	}
	return false, nil
}

func (s *session) checkCredentials(device *store.Device, elements *tlv.Set) error {
	switch device.AuthMode {
	case store.AuthModeNoPassword:
		return nil
	case store.AuthModePassword:
		pass, err := elements.String(tlv.TagPassword)
		if err != nil {
			return fmt.Errorf("missing PASSWORD")
		}
		if pass != device.Password {
			return fmt.Errorf("password mismatch")
		}
		return nil
	case store.AuthModeCertificate:
		certDER, _, err := elements.Cert(tlv.TagCertificate)
		if err != nil {
			return fmt.Errorf("missing CERTIFICATE: %w", err)
		}
		signedData, err := elements.Bytes(tlv.TagSignedData)
		if err != nil {
			return fmt.Errorf("missing SIGNED_DATA: %w", err)
		}
		sha2Data, err := elements.Bytes(tlv.TagSHA2SignedData)
		if err != nil {
			return fmt.Errorf("missing SHA2_SIGNED_DATA: %w", err)
		}
		sudiData, _ := elements.Bytes(tlv.TagSUDIData)

		return phoneauth.VerifyPhoneAuth(s.engine.TrustStore, phoneauth.Request{
			DeviceName:     device.DeviceName,
			CertificateDER: certDER,
			SignedData:     signedData,
			SHA2SignedData: sha2Data,
			SUDIData:       sudiData,
			SessionID:      s.id,
		})
	default:
		return fmt.Errorf("unknown auth mode %q", device.AuthMode)
	}
}

// pemFilePath is the persisted-certificate path spec.md §6 names:
// <certificates_dir>/<device_name>.pem.
func (s *session) pemFilePath(deviceName string) string {
	return filepath.Join(s.engine.CertificatesDir, deviceName+".pem")
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
