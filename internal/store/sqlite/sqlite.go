// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

// Package sqlite implements the CAPF and TVS store interfaces on top of
// database/sql using the pure-Go, cgo-free github.com/ncruces/go-sqlite3
// driver. The server only reads from and UPDATEs existing rows; schema
// management is an external admin-tool concern (spec.md §6).
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"capf-tvs-gateway/internal/capferr"
	"capf-tvs-gateway/internal/store"
	"capf-tvs-gateway/internal/tvserr"
)

const timestampLayout = "2006-01-02 15:04:05"

// CAPFStore is a database/sql-backed store.CAPFStore.
type CAPFStore struct {
	db *sql.DB
}

// OpenCAPFStore opens the SQLite database at path. SQLite creates an empty
// file if none exists; no schema is created.
func OpenCAPFStore(path string) (*CAPFStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &capferr.Store{Msg: "opening store", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &capferr.Store{Msg: "opening store", Err: err}
	}
	return &CAPFStore{db: db}, nil
}

func (s *CAPFStore) Close() error { return s.db.Close() }

// GetDevice reads the device row by name. A missing row returns (nil, nil).
func (s *CAPFStore) GetDevice(name string) (*store.Device, error) {
	row := s.db.QueryRow(`
		SELECT device_name, operation, auth_mode, password, key_size, curve,
		       certificate_pem, serial_hex, not_valid_before, not_valid_after,
		       last_session_id, last_seen_at
		FROM devices WHERE device_name = ?`, name)

	var d store.Device
	var password, curve, certPEM, serialHex, nvb, nva, lastSeen sql.NullString
	var keySize, lastSessionID sql.NullInt64
	err := row.Scan(&d.DeviceName, &d.Operation, &d.AuthMode, &password, &keySize, &curve,
		&certPEM, &serialHex, &nvb, &nva, &lastSessionID, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &capferr.Store{Msg: fmt.Sprintf("reading device %q", name), Err: err}
	}

	d.Password = password.String
	d.Curve = curve.String
	d.CertificatePEM = certPEM.String
	d.SerialHex = serialHex.String
	d.KeySize = int(keySize.Int64)
	d.LastSessionID = uint32(lastSessionID.Int64)
	if nvb.Valid && nvb.String != "" {
		if t, err := time.Parse(timestampLayout, nvb.String); err == nil {
			d.NotValidBefore = t
		}
	}
	if nva.Valid && nva.String != "" {
		if t, err := time.Parse(timestampLayout, nva.String); err == nil {
			d.NotValidAfter = t
		}
	}
	if lastSeen.Valid && lastSeen.String != "" {
		if t, err := time.Parse(timestampLayout, lastSeen.String); err == nil {
			d.LastSeenAt = t
		}
	}
	return &d, nil
}

// UpdateDeviceIssued persists a newly issued (or re-fetched) certificate
// and resets the row's operation to none, per spec.md §4.2.
func (s *CAPFStore) UpdateDeviceIssued(name, serialHex, certPEM string, notBefore, notAfter time.Time) error {
	_, err := s.db.Exec(`
		UPDATE devices
		SET operation = ?, serial_hex = ?, certificate_pem = ?,
		    not_valid_before = ?, not_valid_after = ?
		WHERE device_name = ?`,
		string(store.OperationNone), serialHex, certPEM,
		notBefore.UTC().Format(timestampLayout), notAfter.UTC().Format(timestampLayout), name)
	if err != nil {
		return &capferr.Store{Msg: fmt.Sprintf("updating issued certificate for %q", name), Err: err}
	}
	return nil
}

// ClearDeviceCertificate NULLs out the certificate columns rather than
// deleting the row, per the "mutable column update semantics" design note.
func (s *CAPFStore) ClearDeviceCertificate(name string) error {
	_, err := s.db.Exec(`
		UPDATE devices
		SET operation = ?, serial_hex = NULL, certificate_pem = NULL,
		    not_valid_before = NULL, not_valid_after = NULL
		WHERE device_name = ?`, string(store.OperationNone), name)
	if err != nil {
		return &capferr.Store{Msg: fmt.Sprintf("clearing certificate for %q", name), Err: err}
	}
	return nil
}

// RecordSession stamps the device row with the session that last touched
// it, a supplemented bookkeeping feature beyond the distilled spec.
func (s *CAPFStore) RecordSession(name string, sessionID uint32, at time.Time) error {
	_, err := s.db.Exec(`
		UPDATE devices SET last_session_id = ?, last_seen_at = ?
		WHERE device_name = ?`, sessionID, at.UTC().Format(timestampLayout), name)
	if err != nil {
		return &capferr.Store{Msg: fmt.Sprintf("recording session for %q", name), Err: err}
	}
	return nil
}

// ListDevices returns every device row, ordered by name. It exists for
// capfadmin's read-only inspection use case and is not part of the
// store.CAPFStore interface the session engine depends on.
func (s *CAPFStore) ListDevices() ([]*store.Device, error) {
	rows, err := s.db.Query(`
		SELECT device_name, operation, auth_mode, password, key_size, curve,
		       certificate_pem, serial_hex, not_valid_before, not_valid_after,
		       last_session_id, last_seen_at
		FROM devices ORDER BY device_name`)
	if err != nil {
		return nil, &capferr.Store{Msg: "listing devices", Err: err}
	}
	defer rows.Close()

	var out []*store.Device
	for rows.Next() {
		var d store.Device
		var password, curve, certPEM, serialHex, nvb, nva, lastSeen sql.NullString
		var keySize, lastSessionID sql.NullInt64
		if err := rows.Scan(&d.DeviceName, &d.Operation, &d.AuthMode, &password, &keySize, &curve,
			&certPEM, &serialHex, &nvb, &nva, &lastSessionID, &lastSeen); err != nil {
			return nil, &capferr.Store{Msg: "scanning device row", Err: err}
		}
		d.Password = password.String
		d.Curve = curve.String
		d.CertificatePEM = certPEM.String
		d.SerialHex = serialHex.String
		d.KeySize = int(keySize.Int64)
		d.LastSessionID = uint32(lastSessionID.Int64)
		if nvb.Valid && nvb.String != "" {
			if t, err := time.Parse(timestampLayout, nvb.String); err == nil {
				d.NotValidBefore = t
			}
		}
		if nva.Valid && nva.String != "" {
			if t, err := time.Parse(timestampLayout, nva.String); err == nil {
				d.NotValidAfter = t
			}
		}
		if lastSeen.Valid && lastSeen.String != "" {
			if t, err := time.Parse(timestampLayout, lastSeen.String); err == nil {
				d.LastSeenAt = t
			}
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// TVSStore is a database/sql-backed store.TVSStore.
type TVSStore struct {
	db *sql.DB
}

// OpenTVSStore opens the SQLite trust database at path.
func OpenTVSStore(path string) (*TVSStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &tvserr.Store{Msg: "opening store", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &tvserr.Store{Msg: "opening store", Err: err}
	}
	return &TVSStore{db: db}, nil
}

func (s *TVSStore) Close() error { return s.db.Close() }

// GetTrustRecord looks up a certificate by its hex-lowercase SHA-256
// fingerprint. A miss returns (nil, nil).
func (s *TVSStore) GetTrustRecord(fingerprintHex string) (*store.TrustRecord, error) {
	row := s.db.QueryRow(`
		SELECT certificate_hash, serial_number, subject_name, issuer_name,
		       certificate_pem, roles, ttl
		FROM trust_records WHERE certificate_hash = ?`, fingerprintHex)

	var r store.TrustRecord
	var rolesCSV string
	err := row.Scan(&r.CertificateHash, &r.SerialNumber, &r.SubjectName, &r.IssuerName,
		&r.CertificatePEM, &rolesCSV, &r.TTL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &tvserr.Store{Msg: fmt.Sprintf("reading trust record %q", fingerprintHex), Err: err}
	}
	if rolesCSV != "" {
		r.Roles = strings.Split(rolesCSV, ",")
	}
	return &r, nil
}
