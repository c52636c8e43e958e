// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

// Package memtest implements store.CAPFStore and store.TVSStore in memory,
// for use by internal/capf and internal/tvs tests in place of a real
// SQLite database.
package memtest

import (
	"sync"
	"time"

	"capf-tvs-gateway/internal/store"
)

// CAPFStore is an in-memory store.CAPFStore backed by a map, guarded by a
// mutex since sessions may run on separate goroutines in tests.
type CAPFStore struct {
	mu      sync.Mutex
	devices map[string]*store.Device
}

// NewCAPFStore builds a store seeded with the given devices, keyed by
// DeviceName.
func NewCAPFStore(devices ...*store.Device) *CAPFStore {
	m := make(map[string]*store.Device, len(devices))
	for _, d := range devices {
		cp := *d
		m[d.DeviceName] = &cp
	}
	return &CAPFStore{devices: m}
}

func (s *CAPFStore) GetDevice(name string) (*store.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[name]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *CAPFStore) UpdateDeviceIssued(name, serialHex, certPEM string, notBefore, notAfter time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[name]
	if !ok {
		return nil
	}
	d.Operation = store.OperationNone
	d.SerialHex = serialHex
	d.CertificatePEM = certPEM
	d.NotValidBefore = notBefore
	d.NotValidAfter = notAfter
	return nil
}

func (s *CAPFStore) ClearDeviceCertificate(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[name]
	if !ok {
		return nil
	}
	d.Operation = store.OperationNone
	d.SerialHex = ""
	d.CertificatePEM = ""
	d.NotValidBefore = time.Time{}
	d.NotValidAfter = time.Time{}
	return nil
}

func (s *CAPFStore) RecordSession(name string, sessionID uint32, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[name]
	if !ok {
		return nil
	}
	d.LastSessionID = sessionID
	d.LastSeenAt = at
	return nil
}

func (s *CAPFStore) Close() error { return nil }

// Snapshot returns a copy of the device row for test assertions.
func (s *CAPFStore) Snapshot(name string) (store.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[name]
	if !ok {
		return store.Device{}, false
	}
	return *d, true
}

// TVSStore is an in-memory store.TVSStore.
type TVSStore struct {
	mu      sync.Mutex
	records map[string]*store.TrustRecord
}

// NewTVSStore builds a trust store seeded with the given records, keyed by
// CertificateHash.
func NewTVSStore(records ...*store.TrustRecord) *TVSStore {
	m := make(map[string]*store.TrustRecord, len(records))
	for _, r := range records {
		cp := *r
		m[r.CertificateHash] = &cp
	}
	return &TVSStore{records: m}
}

func (s *TVSStore) GetTrustRecord(fingerprintHex string) (*store.TrustRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[fingerprintHex]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *TVSStore) Close() error { return nil }
